package dag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/specialistvlad/bundlegrid/internal/ctxlog"
)

// Cache decides whether an incremental node can be skipped and records the
// state of a node after it ran successfully.
type Cache interface {
	Probe(ctx context.Context, n *Node) (bool, error)
	Commit(ctx context.Context, n *Node) error
}

// Executor runs a frozen graph on a fixed-size worker pool.
type Executor struct {
	Graph      *Graph
	numWorkers int
	cache      Cache

	mu   sync.Mutex
	last []*Node
}

// NewExecutor creates an executor. A nil cache disables incremental skipping.
func NewExecutor(g *Graph, numWorkers int, cache Cache) *Executor {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &Executor{Graph: g, numWorkers: numWorkers, cache: cache}
}

// run holds the bookkeeping of a single Executor.Run call.
type run struct {
	members map[string]*Node
	cache   Cache
	wg      sync.WaitGroup
	seq     atomic.Int64
	failSeq map[string]int64
	failMu  sync.Mutex
}

// Run executes the targets and everything they depend on, or the whole graph
// when no target is given. It returns an error naming every node that failed
// on its own account and wrapping the earliest such failure.
func (e *Executor) Run(ctx context.Context, targets ...string) error {
	logger := ctxlog.FromContext(ctx)
	if !e.Graph.Frozen() {
		return ErrNotFrozen
	}

	nodes, err := e.Graph.Subgraph(targets...)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.last = nodes
	e.mu.Unlock()
	if len(nodes) == 0 {
		logger.Warn("No nodes selected, execution not required.")
		return nil
	}

	r := &run{
		members: make(map[string]*Node, len(nodes)),
		cache:   e.cache,
		failSeq: make(map[string]int64),
	}
	for _, n := range nodes {
		n.reset()
		r.members[n.ID] = n
	}
	for _, n := range nodes {
		n.depCount.Store(int32(len(n.deps)))
	}

	readyChan := make(chan *Node, len(nodes))
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger.Debug("Initializing executor, finding root nodes...")
	for _, n := range nodes {
		if n.depCount.Load() == 0 {
			logger.Debug("Found root node.", "nodeID", n.ID)
			readyChan <- n
		}
	}

	r.wg.Add(len(nodes))
	logger.Debug("Starting worker pool.", "workers", e.numWorkers, "nodes", len(nodes))
	for i := 0; i < e.numWorkers; i++ {
		go r.worker(runCtx, readyChan, cancel, i)
	}

	r.wg.Wait()
	close(readyChan)
	logger.Debug("All nodes settled.")

	return r.rootCause(logger)
}

// Report returns the per-node result of the most recent Run, sorted by ID.
func (e *Executor) Report() []NodeReport {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]NodeReport, 0, len(e.last))
	for _, n := range e.last {
		out = append(out, n.report())
	}
	return out
}

func (r *run) worker(ctx context.Context, readyChan chan *Node, cancel context.CancelFunc, workerID int) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Worker started.", "workerID", workerID)

	for n := range readyChan {
		workerLogger := logger.With("workerID", workerID, "nodeID", n.ID)

		if ctx.Err() != nil {
			workerLogger.Warn("Context canceled, skipping node execution.")
			r.fail(ctx, n, ctx.Err())
			continue
		}

		if err := n.transition(Registered, Running); err != nil {
			workerLogger.Error("Refusing to run node.", "error", err)
			r.fail(ctx, n, err)
			cancel()
			continue
		}
		n.mu.Lock()
		n.started = time.Now()
		n.mu.Unlock()

		workerLogger.Debug("Worker picked up node for execution.")
		nodeCtx := ctxlog.WithLogger(ctx, workerLogger)
		outcome, err := r.execute(nodeCtx, n)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				workerLogger.Error("Node execution failed.", "error", err)
				err = &NodeError{ID: n.ID, Err: err}
			}
			r.fail(ctx, n, err)
			cancel()
			continue
		}

		next := Executed
		if outcome == OutcomeSkipped {
			next = Skipped
			workerLogger.Info("⏭️  Up to date", "kind", n.Kind)
		} else {
			workerLogger.Info("✅ Finished", "kind", n.Kind)
		}
		if err := n.transition(Running, next); err != nil {
			r.fail(ctx, n, err)
			cancel()
			continue
		}
		n.mu.Lock()
		n.outcome = outcome
		n.finished = time.Now()
		n.mu.Unlock()
		if err := n.transition(next, Done); err != nil {
			r.fail(ctx, n, err)
			cancel()
			continue
		}

		for _, id := range sortedKeys(n.dependents) {
			dependent, ok := r.members[id]
			if !ok {
				continue
			}
			if dependent.depCount.Add(-1) == 0 {
				workerLogger.Debug("Unlocking dependent node.", "dependentID", dependent.ID)
				readyChan <- dependent
			}
		}
		r.wg.Done()
	}
	logger.Debug("Worker finished.", "workerID", workerID)
}

// execute runs a node's action, consulting the cache for incremental nodes.
func (r *run) execute(ctx context.Context, n *Node) (Outcome, error) {
	incremental := n.Incremental && r.cache != nil
	if incremental {
		hit, err := r.cache.Probe(ctx, n)
		if err != nil {
			return OutcomeExecuted, fmt.Errorf("probing cache: %w", err)
		}
		if hit {
			return OutcomeSkipped, nil
		}
	}
	if n.Action == nil {
		return OutcomeExecuted, nil
	}

	outcome, err := n.Action(ctx)
	if err != nil {
		return outcome, err
	}
	if incremental {
		if err := r.cache.Commit(ctx, n); err != nil {
			return outcome, fmt.Errorf("recording fingerprint: %w", err)
		}
	}
	return outcome, nil
}

// fail settles n as Failed and cascades to every member downstream of it.
func (r *run) fail(ctx context.Context, n *Node, err error) {
	n.settle.Do(func() {
		n.state.Store(int32(Failed))
		n.mu.Lock()
		n.err = err
		n.finished = time.Now()
		n.mu.Unlock()
		r.failMu.Lock()
		r.failSeq[n.ID] = r.seq.Add(1)
		r.failMu.Unlock()
		r.wg.Done()
		r.skipDependents(ctx, n)
	})
}

// skipDependents marks all downstream members as failed due to n.
func (r *run) skipDependents(ctx context.Context, n *Node) {
	logger := ctxlog.FromContext(ctx)
	for _, id := range sortedKeys(n.dependents) {
		dependent, ok := r.members[id]
		if !ok {
			continue
		}
		dependent.settle.Do(func() {
			logger.Warn("Skipping dependent node due to upstream failure.", "nodeID", dependent.ID, "dependency", n.ID)
			dependent.state.Store(int32(Failed))
			dependent.mu.Lock()
			dependent.err = &UpstreamError{Upstream: n.ID}
			dependent.mu.Unlock()
			r.wg.Done()
			r.skipDependents(ctx, dependent)
		})
	}
}

// rootCause builds the run's error from nodes that failed on their own.
func (r *run) rootCause(logger *slog.Logger) error {
	type failure struct {
		id  string
		seq int64
		err error
	}
	var causes []failure
	for id, n := range r.members {
		if n.State() != Failed {
			continue
		}
		err := n.Err()
		var upstream *UpstreamError
		if err == nil || errors.As(err, &upstream) || errors.Is(err, context.Canceled) {
			continue
		}
		r.failMu.Lock()
		seq := r.failSeq[id]
		r.failMu.Unlock()
		causes = append(causes, failure{id: id, seq: seq, err: err})
	}
	if len(causes) == 0 {
		for _, n := range r.members {
			if n.State() == Failed {
				// Only cancellations: the caller's context was cancelled.
				return fmt.Errorf("execution cancelled: %w", n.Err())
			}
		}
		return nil
	}

	sort.Slice(causes, func(i, j int) bool { return causes[i].seq < causes[j].seq })
	ids := make([]string, 0, len(causes))
	for _, c := range causes {
		logger.Error("Node failed execution.", "nodeID", c.id, "error", c.err)
		ids = append(ids, c.id)
	}
	sort.Strings(ids)
	return fmt.Errorf("execution failed for %s: %w", strings.Join(ids, ", "), causes[0].err)
}
