package atree

import (
	"context"
	"slices"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/sync/errgroup"
)

// MatchReport holds the subscriptions matched by an event.
type MatchReport struct {
	// ids is sorted.
	ids []uint64
}

// Matches returns the matched subscription ids in ascending order.
func (r *MatchReport) Matches() []uint64 {
	return slices.Clone(r.ids)
}

func (r *MatchReport) Len() int {
	return len(r.ids)
}

func (r *MatchReport) Contains(id uint64) bool {
	_, ok := slices.BinarySearch(r.ids, id)
	return ok
}

// Search returns every subscription whose expression is satisfied by the
// event.  Only predicates over attributes the event defines are evaluated.
func (i *Index) Search(ctx context.Context, ev *Event) (*MatchReport, error) {
	start := time.Now()

	i.lock.RLock()
	report, err := i.search(ctx, ev)
	i.lock.RUnlock()

	matches, defined := 0, 0
	if err == nil {
		matches = report.Len()
		defined = len(ev.defined())
	}
	i.opts.logger.LogSearch(ctx, defined, matches, err)
	i.opts.metricsCollector.RecordSearch(time.Since(start), matches, err)
	return report, err
}

// SearchBatch searches many events concurrently, returning one report per
// event in the same order.  The index can't be modified until every event has
// been searched.
func (i *Index) SearchBatch(ctx context.Context, events []*Event) ([]*MatchReport, error) {
	reports := make([]*MatchReport, len(events))

	i.lock.RLock()
	p := pool.New().
		WithMaxGoroutines(i.opts.concurrency).
		WithErrors().
		WithContext(ctx)
	for n, ev := range events {
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			report, err := i.search(ctx, ev)
			if err != nil {
				i.opts.metricsCollector.RecordSearch(time.Since(start), 0, err)
				return err
			}
			i.opts.metricsCollector.RecordSearch(time.Since(start), report.Len(), nil)
			reports[n] = report
			return nil
		})
	}
	err := p.Wait()
	i.lock.RUnlock()

	i.opts.logger.LogSearchBatch(ctx, len(events), err)
	if err != nil {
		return nil, err
	}
	return reports, nil
}

// search matches an event with the read lock held.
func (i *Index) search(ctx context.Context, ev *Event) (*MatchReport, error) {
	if i.closed {
		return nil, ErrClosed
	}
	if ev == nil {
		return nil, typeError("", "event is nil")
	}
	if ev.schema != i.schema {
		return nil, ErrSchemaMismatch
	}

	g := i.graph
	defined := ev.defined()

	s := searcher{
		g:         g,
		satisfied: roaring.New(),
		counts:    map[NodeID]int{},
	}

	// Leaf predicates.
	if i.opts.concurrency > 1 && len(defined) > 1 {
		results := make([][]NodeID, len(defined))
		eg := errgroup.Group{}
		eg.SetLimit(i.opts.concurrency)
		for n, attr := range defined {
			eg.Go(func() error {
				g.attrs[attr].engine.Match(ev.values[attr], func(id NodeID) {
					results[n] = append(results[n], id)
				})
				return nil
			})
		}
		_ = eg.Wait()
		for _, ids := range results {
			for _, id := range ids {
				s.mark(id)
			}
		}
	} else {
		for _, attr := range defined {
			g.attrs[attr].engine.Match(ev.values[attr], s.mark)
		}
	}

	// Negations are satisfied when their predicate isn't, but only over
	// defined attributes:  an undefined value satisfies neither.
	for _, attr := range defined {
		for pred, not := range g.attrs[attr].negations {
			if !s.satisfied.Contains(uint32(pred)) {
				s.mark(not)
			}
		}
	}

	s.propagate()

	slices.Sort(s.matches)
	return &MatchReport{ids: s.matches}, nil
}

type searcher struct {
	g *graph

	satisfied *roaring.Bitmap
	// counts holds the number of satisfied children of each AND node seen.
	counts map[NodeID]int
	queue  []NodeID

	matches []uint64
}

func (s *searcher) mark(id NodeID) {
	if s.satisfied.CheckedAdd(uint32(id)) {
		s.queue = append(s.queue, id)
	}
}

// propagate walks upwards from every satisfied node, satisfying each OR on
// its first satisfied child and each AND once all of its children are
// satisfied.
func (s *searcher) propagate() {
	for n := 0; n < len(s.queue); n++ {
		node := &s.g.nodes[s.queue[n]]
		s.matches = append(s.matches, node.subs...)

		for _, p := range node.parents {
			parent := &s.g.nodes[p]
			switch parent.kind {
			case KindOr:
				s.mark(p)
			case KindAnd:
				s.counts[p]++
				if s.counts[p] == len(parent.children) {
					s.mark(p)
				}
			}
		}
	}
}
