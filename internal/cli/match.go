package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/inngest/atree"
)

// MatchResult holds the subscriptions matched by one fixture event.
type MatchResult struct {
	Event   int      `json:"event"`
	Matches []uint64 `json:"matches"`
}

// MatchResults prints one line per event in text mode.
type MatchResults []MatchResult

func (r MatchResults) String() string {
	b := &strings.Builder{}
	for n, res := range r {
		if n > 0 {
			b.WriteByte('\n')
		}
		ids := make([]string, len(res.Matches))
		for i, id := range res.Matches {
			ids[i] = fmt.Sprint(id)
		}
		fmt.Fprintf(b, "event %d: [%s]", res.Event, strings.Join(ids, ", "))
	}
	return b.String()
}

// NewMatchCommand creates the match command.
func NewMatchCommand(rootOpts *RootOptions) *cobra.Command {
	var concurrency int

	cmd := &cobra.Command{
		Use:   "match <fixture.yaml>",
		Short: "Match a fixture's events against its subscriptions",
		Long: `Build an index from the subscriptions declared in a YAML fixture and
print the subscriptions matched by each of its events.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMatch(cmd, rootOpts, args[0], concurrency)
		},
	}

	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 1, "number of events searched in parallel")
	return cmd
}

func runMatch(cmd *cobra.Command, opts *RootOptions, path string, concurrency int) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	ctx := cmd.Context()

	fx, idx, err := loadIndex(cmd, opts, formatter, path, atree.WithConcurrency(concurrency))
	if err != nil {
		return err
	}
	defer idx.Close()

	events, err := fx.Events(idx)
	if err != nil {
		return formatter.Fail(ErrCodeEvent, "invalid event", err)
	}

	reports, err := idx.SearchBatch(ctx, events)
	if err != nil {
		return formatter.Fail(ErrCodeEvent, "search failed", err)
	}

	results := make(MatchResults, len(reports))
	for n, r := range reports {
		results[n] = MatchResult{Event: n, Matches: r.Matches()}
		if results[n].Matches == nil {
			results[n].Matches = []uint64{}
		}
	}
	return formatter.Success(results)
}

// loadIndex loads a fixture and indexes its subscriptions, writing any error
// with the formatter.
func loadIndex(cmd *cobra.Command, opts *RootOptions, formatter *OutputFormatter, path string, extra ...atree.Option) (*Fixture, *atree.Index, error) {
	fx, err := LoadFixture(path)
	if err != nil {
		return nil, nil, formatter.Fail(ErrCodeFixture, "invalid fixture", err)
	}

	logger := atree.NoopLogger()
	if opts.Verbose {
		logger = atree.NewTextLogger(cmd.ErrOrStderr(), slog.LevelDebug)
	}

	idx, err := fx.Index(cmd.Context(), append(extra, atree.WithLogger(logger))...)
	switch {
	case errors.Is(err, atree.ErrSchema):
		return nil, nil, formatter.Fail(ErrCodeFixture, "invalid schema", err)
	case err != nil:
		return nil, nil, formatter.Fail(ErrCodeSubscription, "invalid subscription", err)
	}
	return fx, idx, nil
}
