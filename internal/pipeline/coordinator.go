// Package pipeline implements the agent pipeline coordinator (C8): a
// stateful single-writer orchestrator that turns one observation into
// a perception → context → navigation → communication result with
// bounded latency and backpressure, adapted from the teacher's
// AgentOrchestrator (internal/agent/orchestrator.go) but reshaped from
// classify-and-route into the fixed fan-out/sequential pipeline
// described for this domain.
package pipeline

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/trinityvector/trinitymemory/internal/collab"
	"github.com/trinityvector/trinitymemory/internal/embedding"
	"github.com/trinityvector/trinitymemory/internal/memstore"
	"github.com/trinityvector/trinitymemory/internal/models"
	"github.com/trinityvector/trinitymemory/internal/retry"
	"github.com/trinityvector/trinitymemory/internal/telemetry"
)

// pendingMax is the bounded FIFO capacity; beyond it, the oldest
// queued observation is dropped (spec §4.6).
const pendingMax = 10

// Collaborators groups the four external agents the coordinator calls
// into during one iteration's fan-out/sequential flow.
type Collaborators struct {
	Perception    collab.PerceptionAgent
	Context       collab.ContextAgent
	Navigation    collab.NavigationAgent
	Communication collab.CommunicationAgent
}

// IterationResult reports one completed (or failed) iteration on the
// coordinator's observable status channel, per spec §7: no error
// escapes into the delivery path itself.
type IterationResult struct {
	Observation *models.Observation
	Delivery    collab.DeliveryPayload
	Stored      bool
	Err         error
}

// Coordinator is the stateful single-observation-stream orchestrator
// described in spec §4.6. The zero value is not usable; construct via
// New.
type Coordinator struct {
	mgr      *memstore.Manager
	embedder embedding.Provider
	agents   Collaborators
	limiter  *embeddingLimiter
	topK     int

	mu               sync.Mutex
	pending          []*models.Observation
	inFlight         bool
	lastSpokenMessage string

	status chan IterationResult

	cancel context.CancelFunc
}

// New builds a Coordinator bound to mgr, embedder, and agents, using
// cfg's performance/agents settings for concurrency and thresholds.
func New(mgr *memstore.Manager, embedder embedding.Provider, agents Collaborators, cfg *models.Config) *Coordinator {
	if cfg == nil {
		cfg = models.DefaultConfig()
	}
	return &Coordinator{
		mgr:      mgr,
		embedder: embedder,
		agents:   agents,
		limiter:  newEmbeddingLimiter(cfg.Performance.MaxConcurrentEmbeddings, cfg.Performance.ProcessingInterval),
		topK:     cfg.Performance.VectorSearchTopK,
		status:   make(chan IterationResult, pendingMax),
	}
}

// Status returns the channel on which completed (or failed) iteration
// reports are published. Callers should drain it; the coordinator
// never blocks indefinitely trying to publish (it drops the oldest
// unread status the same way it drops the oldest pending observation).
func (c *Coordinator) Status() <-chan IterationResult {
	return c.status
}

// Submit enqueues an observation arriving from the (external)
// subscription. If an iteration is already in flight, obs is appended
// to pending; if that would exceed pendingMax, the oldest queued
// observation is dropped first (backpressure, spec §4.6 and the
// Backpressure testable property in §8).
func (c *Coordinator) Submit(ctx context.Context, obs *models.Observation) {
	c.mu.Lock()
	if c.inFlight {
		if len(c.pending) >= pendingMax {
			c.pending = c.pending[1:]
		}
		c.pending = append(c.pending, obs)
		c.mu.Unlock()
		return
	}
	c.inFlight = true
	chainCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	go c.runChain(chainCtx, obs)
}

// runChain executes obs's iteration, then pops and runs the next
// pending observation (if any), preserving single-active-flag
// scheduling across the whole queue.
func (c *Coordinator) runChain(ctx context.Context, obs *models.Observation) {
	for obs != nil {
		c.runIteration(ctx, obs)

		c.mu.Lock()
		if len(c.pending) == 0 {
			c.inFlight = false
			c.cancel = nil
			c.mu.Unlock()
			return
		}
		obs = c.pending[0]
		c.pending = c.pending[1:]
		c.mu.Unlock()
	}
}

// fanOutResult carries the joined outputs of the perception+embedding
// sibling tasks.
type fanOutResult struct {
	perception collab.PerceptionOutput
	vector     []float32
}

// runIteration drives one full pass of the per-iteration flow in
// spec §4.6: parallel fan-out, admission-gated ingest/search join,
// sequential context→navigation→communication, then delivery.
func (c *Coordinator) runIteration(ctx context.Context, obs *models.Observation) {
	ctx, span := telemetry.StartSpan(ctx, "pipeline.iteration")
	defer span.End()

	result := IterationResult{Observation: obs}

	fanOut, err := c.fanOut(ctx, obs)
	if err != nil {
		result.Err = err
		c.publish(result)
		return
	}

	entry, stored, searchResults := c.ingestAndSearch(obs, fanOut.vector)
	result.Stored = stored
	_ = entry

	ctxOut, err := c.agents.Context.AssembleContext(ctx, obs, searchResults)
	if err != nil {
		result.Err = err
		c.publish(result)
		return
	}

	navOut, err := c.agents.Navigation.Navigate(ctx, fanOut.perception.Spatial, fanOut.perception.Detections, obs.DeviceOrientation)
	if err != nil {
		result.Err = err
		c.publish(result)
		return
	}

	priority := collab.PriorityFromSafety(navOut.Safety)

	delivery, err := c.agents.Communication.Communicate(ctx, fanOut.perception, navOut, ctxOut, priority)
	if err != nil {
		result.Err = err
		c.publish(result)
		return
	}

	c.mu.Lock()
	c.lastSpokenMessage = delivery.Message
	c.mu.Unlock()

	result.Delivery = delivery
	c.publish(result)
}

// fanOut runs perception and embedding concurrently via an errgroup
// task-group that joins on first-error-or-all-success (spec §9's
// asynchronous fan-out design note); if either sibling fails the
// coordinator does not proceed past the join.
func (c *Coordinator) fanOut(ctx context.Context, obs *models.Observation) (fanOutResult, error) {
	var out fanOutResult

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		perception, err := c.agents.Perception.Perceive(gctx, obs.CameraImage)
		if err != nil {
			return err
		}
		out.perception = perception
		return nil
	})

	g.Go(func() error {
		if err := c.limiter.Acquire(gctx); err != nil {
			return err
		}
		defer c.limiter.Release()

		var vec []float32
		err := retry.Do(gctx, func() error {
			v, genErr := c.embedder.Generate(gctx, observationText(obs))
			if genErr != nil {
				return models.Wrap(models.ErrEmbeddingFailed, genErr)
			}
			vec = v
			return nil
		})
		if err != nil {
			return err
		}
		out.vector = vec
		return nil
	})

	if err := g.Wait(); err != nil {
		return fanOutResult{}, err
	}
	return out, nil
}

// ingestAndSearch implements step 2 of spec §4.6: if the admission
// predicate accepts, add_observation inserts and the manager's own
// search context is used; otherwise the observation is only searched
// against, never stored.
func (c *Coordinator) ingestAndSearch(obs *models.Observation, vector []float32) (*models.Entry, bool, []*models.Entry) {
	entry, stored := c.mgr.AddObservation(obs, vector)
	results := c.mgr.Search(vector, c.topK, nil)
	return entry, stored, results
}

// publish reports an iteration's outcome, dropping the oldest
// unconsumed status if the channel is full rather than blocking the
// scheduling loop.
func (c *Coordinator) publish(result IterationResult) {
	if result.Err != nil {
		log.Error().Err(result.Err).Msg("pipeline iteration failed")
	}
	select {
	case c.status <- result:
	default:
		select {
		case <-c.status:
		default:
		}
		select {
		case c.status <- result:
		default:
		}
	}
}

// LastSpokenMessage returns the most recent delivery message
// communicated to the user.
func (c *Coordinator) LastSpokenMessage() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSpokenMessage
}

// PendingLen reports the current backlog depth, for tests and
// diagnostics.
func (c *Coordinator) PendingLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Stop halts further scheduling: queued pending observations are
// discarded (the spec's default cancellation choice), any embedding
// in flight is canceled via ctx, and persistence is flushed
// best-effort. In-flight inserts that already completed remain
// durable; there is no rollback (spec §5 Cancellation, §9(c)).
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	c.pending = nil
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if err := c.mgr.Save(); err != nil && !errors.Is(err, models.ErrPersistenceFailed) {
		return err
	}
	return nil
}

func observationText(obs *models.Observation) string {
	label := obs.PrimaryLabel()
	if label == "" {
		return "observation"
	}
	return label
}
