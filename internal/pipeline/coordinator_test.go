package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/trinityvector/trinitymemory/internal/collab"
	"github.com/trinityvector/trinitymemory/internal/memstore"
	"github.com/trinityvector/trinitymemory/internal/models"
)

type fakePerception struct {
	mu    sync.Mutex
	calls int
	delay time.Duration
}

func (f *fakePerception) Perceive(ctx context.Context, frame []byte) (collab.PerceptionOutput, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return collab.PerceptionOutput{}, ctx.Err()
		}
	}
	return collab.PerceptionOutput{Detections: []models.Detected{{Label: "chair", Confidence: 0.9}}}, nil
}

type fakeEmbedder struct {
	dim int
}

func (f *fakeEmbedder) Generate(ctx context.Context, text string) ([]float32, error) {
	v := make([]float32, f.dim)
	v[0] = 1
	return v, nil
}

func (f *fakeEmbedder) GenerateBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		v, _ := f.Generate(ctx, texts[i])
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int { return f.dim }

type fakeContext struct{}

func (fakeContext) AssembleContext(ctx context.Context, obs *models.Observation, results []*models.Entry) (collab.ContextOutput, error) {
	return collab.ContextOutput{Summary: "ctx"}, nil
}

type fakeNavigation struct {
	safety collab.SafetyLevel
}

func (f fakeNavigation) Navigate(ctx context.Context, spatial *models.SpatialData, detections []models.Detected, heading models.Orientation) (collab.NavigationOutput, error) {
	return collab.NavigationOutput{Safety: f.safety, Message: "clear"}, nil
}

type fakeCommunication struct {
	mu        sync.Mutex
	delivered []collab.DeliveryPayload
}

func (f *fakeCommunication) Communicate(ctx context.Context, p collab.PerceptionOutput, n collab.NavigationOutput, c collab.ContextOutput, priority collab.Priority) (collab.DeliveryPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	payload := collab.DeliveryPayload{Message: "chair ahead", Priority: priority}
	f.delivered = append(f.delivered, payload)
	return payload, nil
}

func newTestCoordinator(t *testing.T, perception collab.PerceptionAgent, nav collab.NavigationAgent) (*Coordinator, *memstore.Manager, *fakeCommunication) {
	t.Helper()
	cfg := models.DefaultConfig()
	cfg.StoragePath = filepath.Join(t.TempDir(), "store")
	cfg.Performance.MaxConcurrentEmbeddings = 2
	cfg.Performance.ProcessingInterval = 0

	mgr := memstore.New(cfg)
	comm := &fakeCommunication{}
	agents := Collaborators{
		Perception:    perception,
		Context:       fakeContext{},
		Navigation:    nav,
		Communication: comm,
	}
	coord := New(mgr, &fakeEmbedder{dim: 3}, agents, cfg)
	return coord, mgr, comm
}

func drainStatus(t *testing.T, coord *Coordinator, n int) []IterationResult {
	t.Helper()
	var results []IterationResult
	deadline := time.After(2 * time.Second)
	for len(results) < n {
		select {
		case r := <-coord.Status():
			results = append(results, r)
		case <-deadline:
			t.Fatalf("timed out waiting for %d iterations, got %d", n, len(results))
		}
	}
	return results
}

func TestSubmitRunsIterationAndDelivers(t *testing.T) {
	coord, _, comm := newTestCoordinator(t, &fakePerception{}, fakeNavigation{safety: collab.SafetyNone})

	coord.Submit(context.Background(), &models.Observation{DetectedObjects: []models.Detected{{Label: "chair", Confidence: 0.9}}})

	results := drainStatus(t, coord, 1)
	if results[0].Err != nil {
		t.Fatalf("unexpected iteration error: %v", results[0].Err)
	}

	comm.mu.Lock()
	defer comm.mu.Unlock()
	if len(comm.delivered) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(comm.delivered))
	}
}

func TestPriorityDerivedFromSafety(t *testing.T) {
	coord, _, comm := newTestCoordinator(t, &fakePerception{}, fakeNavigation{safety: collab.SafetyCritical})

	coord.Submit(context.Background(), &models.Observation{DetectedObjects: []models.Detected{{Label: "chair", Confidence: 0.9}}})
	drainStatus(t, coord, 1)

	comm.mu.Lock()
	defer comm.mu.Unlock()
	if comm.delivered[0].Priority != collab.PriorityCritical {
		t.Fatalf("expected critical priority, got %v", comm.delivered[0].Priority)
	}
}

func TestBackpressureDropsOldestPending(t *testing.T) {
	slow := &fakePerception{delay: 200 * time.Millisecond}
	coord, _, _ := newTestCoordinator(t, slow, fakeNavigation{safety: collab.SafetyNone})

	ctx := context.Background()
	// First submission occupies in_flight; the rest queue up.
	coord.Submit(ctx, &models.Observation{DetectedObjects: []models.Detected{{Label: "first", Confidence: 0.9}}})
	time.Sleep(10 * time.Millisecond)

	for i := 0; i < 25; i++ {
		coord.Submit(ctx, &models.Observation{DetectedObjects: []models.Detected{{Label: fmt.Sprintf("queued-%d", i), Confidence: 0.9}}})
	}

	if got := coord.PendingLen(); got > pendingMax {
		t.Fatalf("expected pending to be capped at %d, got %d", pendingMax, got)
	}

	// The 15 oldest queued observations were dropped; the newest 10 remain
	// in arrival order.
	coord.mu.Lock()
	defer coord.mu.Unlock()
	if len(coord.pending) != pendingMax {
		t.Fatalf("expected %d pending, got %d", pendingMax, len(coord.pending))
	}
	if got := coord.pending[0].DetectedObjects[0].Label; got != "queued-15" {
		t.Fatalf("expected oldest surviving pending to be queued-15, got %s", got)
	}
	if got := coord.pending[pendingMax-1].DetectedObjects[0].Label; got != "queued-24" {
		t.Fatalf("expected newest pending to be queued-24, got %s", got)
	}
}

func TestStopDiscardsPendingAndCancelsInFlight(t *testing.T) {
	slow := &fakePerception{delay: 5 * time.Second}
	coord, _, _ := newTestCoordinator(t, slow, fakeNavigation{safety: collab.SafetyNone})

	ctx := context.Background()
	coord.Submit(ctx, &models.Observation{DetectedObjects: []models.Detected{{Label: "first", Confidence: 0.9}}})
	time.Sleep(10 * time.Millisecond)
	coord.Submit(ctx, &models.Observation{DetectedObjects: []models.Detected{{Label: "second", Confidence: 0.9}}})

	if err := coord.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if got := coord.PendingLen(); got != 0 {
		t.Fatalf("expected pending discarded, got %d", got)
	}

	results := drainStatus(t, coord, 1)
	if results[0].Err == nil || !errors.Is(results[0].Err, context.Canceled) {
		t.Fatalf("expected in-flight iteration to observe cancellation, got %v", results[0].Err)
	}
}
