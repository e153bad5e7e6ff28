package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/inngest/atree"
)

// Fixture declares a schema, the subscriptions to index and the events to
// match against them.
type Fixture struct {
	Attributes    []FixtureAttribute    `yaml:"attributes"`
	Subscriptions []FixtureSubscription `yaml:"subscriptions"`
	// Events are documents read with each attribute's path.  A null value
	// marks an attribute undefined.
	Events []map[string]any `yaml:"events"`
}

type FixtureAttribute struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
	// Path is an optional JSONPath, defaulting to `$.<name>`.
	Path string `yaml:"path,omitempty"`
}

// FixtureSubscription implements atree.Evaluable.
type FixtureSubscription struct {
	ID   uint64 `yaml:"id"`
	Expr string `yaml:"expression"`
}

func (s FixtureSubscription) Identifier() uint64 { return s.ID }
func (s FixtureSubscription) Expression() string { return s.Expr }

// LoadFixture reads and decodes a YAML fixture.
func LoadFixture(path string) (*Fixture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeFixture(f)
}

// DecodeFixture decodes a YAML fixture, rejecting unknown fields.
func DecodeFixture(r io.Reader) (*Fixture, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	fx := &Fixture{}
	if err := dec.Decode(fx); err != nil {
		return nil, fmt.Errorf("decoding fixture: %w", err)
	}
	if len(fx.Attributes) == 0 {
		return nil, fmt.Errorf("fixture declares no attributes")
	}
	return fx, nil
}

// Schema builds the fixture's schema.
func (fx *Fixture) Schema() (*atree.Schema, error) {
	defs := make([]atree.AttributeDefinition, len(fx.Attributes))
	for i, a := range fx.Attributes {
		t, err := atree.ParseAttributeType(a.Type)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", a.Name, err)
		}
		defs[i] = atree.AttributeDefinition{Name: a.Name, Type: t, Path: a.Path}
	}
	return atree.NewSchema(defs...)
}

// Index builds an index holding every subscription in the fixture.
func (fx *Fixture) Index(ctx context.Context, opts ...atree.Option) (*atree.Index, error) {
	schema, err := fx.Schema()
	if err != nil {
		return nil, err
	}
	idx, err := atree.New(schema, opts...)
	if err != nil {
		return nil, err
	}
	for _, sub := range fx.Subscriptions {
		if err := idx.Add(ctx, sub); err != nil {
			_ = idx.Close()
			return nil, fmt.Errorf("subscription %d: %w", sub.ID, err)
		}
	}
	return idx, nil
}

// Events builds the fixture's events against the index's schema.
func (fx *Fixture) Events(idx *atree.Index) ([]*atree.Event, error) {
	events := make([]*atree.Event, len(fx.Events))
	for n, doc := range fx.Events {
		b := idx.NewEventBuilder()
		if err := b.WithDocument(doc); err != nil {
			return nil, fmt.Errorf("event %d: %w", n, err)
		}
		ev, err := b.Build()
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", n, err)
		}
		events[n] = ev
	}
	return events, nil
}
