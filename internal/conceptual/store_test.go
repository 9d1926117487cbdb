package conceptual

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/trinityvector/trinitymemory/internal/models"
	"github.com/trinityvector/trinitymemory/internal/vectorindex"
)

func newTestStore(t *testing.T) *Store {
	idx := vectorindex.New(vectorindex.Config{BruteThreshold: 1000})
	path := filepath.Join(t.TempDir(), "conceptual.db")
	s, err := New(path, idx)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func thoughtRecord(id string, embedding []float32) *models.ConceptualRecord {
	now := time.Now()
	return &models.ConceptualRecord{
		ID:           id,
		Kind:         models.KindThought,
		Embedding:    embedding,
		Created:      now,
		LastAccessed: now,
		Thought: &models.Thought{
			Content:  "remember to water the plants",
			Category: models.ThoughtReminder,
		},
	}
}

func TestPutAndGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	rec := thoughtRecord("t1", []float32{1, 0, 0})

	if err := s.Put(rec); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, ok, err := s.Get("t1")
	if err != nil || !ok {
		t.Fatalf("Get failed: ok=%v err=%v", ok, err)
	}
	if got.Thought.Content != rec.Thought.Content {
		t.Fatalf("expected thought content to round-trip, got %q", got.Thought.Content)
	}
}

func TestByKindFiltersVariant(t *testing.T) {
	s := newTestStore(t)
	s.Put(thoughtRecord("t1", []float32{1, 0, 0}))
	s.Put(thoughtRecord("t2", []float32{0, 1, 0}))

	results, err := s.ByKind(models.KindThought)
	if err != nil {
		t.Fatalf("ByKind failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 thoughts, got %d", len(results))
	}
}

func TestSearchFindsConceptualRecordOverSharedIndex(t *testing.T) {
	s := newTestStore(t)
	v := []float32{1, 0, 0}
	s.Put(thoughtRecord("t1", v))

	ids := s.Search(v, 1)
	if len(ids) != 1 || ids[0] != "t1" {
		t.Fatalf("expected search to find t1, got %+v", ids)
	}
}

func TestDeleteRemovesFromStoreAndIndex(t *testing.T) {
	s := newTestStore(t)
	v := []float32{1, 0, 0}
	s.Put(thoughtRecord("t1", v))

	if err := s.Delete("t1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, ok, _ := s.Get("t1"); ok {
		t.Fatalf("expected record to be gone after delete")
	}
	if ids := s.Search(v, 5); len(ids) != 0 {
		t.Fatalf("expected deleted record absent from search, got %+v", ids)
	}
}

func TestIngestConversationMergesWithinWindow(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	v := []float32{1, 0, 0}
	first := &models.ConceptualRecord{
		ID: "c1", Kind: models.KindConversation, Embedding: v,
		Created: now.Add(-1 * time.Hour), LastAccessed: now.Add(-1 * time.Hour),
		Conversation: &models.Conversation{KeyInsights: []string{"insight-a"}},
	}
	if _, err := s.IngestConversation(first, now.Add(-1*time.Hour)); err != nil {
		t.Fatalf("ingest first failed: %v", err)
	}

	second := &models.ConceptualRecord{
		ID: "c2", Kind: models.KindConversation, Embedding: v,
		Created: now, LastAccessed: now,
		Conversation: &models.Conversation{KeyInsights: []string{"insight-b"}},
	}
	merged, err := s.IngestConversation(second, now)
	if err != nil {
		t.Fatalf("ingest second failed: %v", err)
	}
	if merged.ID != "c1" {
		t.Fatalf("expected merge to preserve first conversation's id, got %q", merged.ID)
	}
	if merged.Conversation.Occurrences != 1 {
		t.Fatalf("expected occurrences incremented to 1, got %d", merged.Conversation.Occurrences)
	}
	if len(merged.Conversation.KeyInsights) != 2 {
		t.Fatalf("expected unioned key insights, got %v", merged.Conversation.KeyInsights)
	}
}
