package memstore

import (
	"path/filepath"
	"testing"

	"github.com/trinityvector/trinitymemory/internal/models"
)

func newTestTriggerStore(t *testing.T) *BadgerTriggerStore {
	t.Helper()
	store, err := NewBadgerTriggerStore(filepath.Join(t.TempDir(), "triggers"))
	if err != nil {
		t.Fatalf("NewBadgerTriggerStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestBadgerTriggerStorePutGet(t *testing.T) {
	store := newTestTriggerStore(t)

	trigger := models.Trigger{
		ID:        "t1",
		Type:      models.TriggerObjectDetected,
		Condition: "label == \"person\"",
		Action:    models.ActionNotify,
		Priority:  1,
		Active:    true,
	}
	if err := store.Put(trigger); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, ok, err := store.Get("t1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok {
		t.Fatalf("expected trigger t1 to be found")
	}
	if got.Type != models.TriggerObjectDetected || got.Action != models.ActionNotify {
		t.Fatalf("round-tripped trigger mismatch: %+v", got)
	}
}

func TestBadgerTriggerStoreGetMissing(t *testing.T) {
	store := newTestTriggerStore(t)

	_, ok, err := store.Get("missing")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ok {
		t.Fatalf("expected missing trigger to report not found")
	}
}

func TestBadgerTriggerStoreByTypeAndActive(t *testing.T) {
	store := newTestTriggerStore(t)

	triggers := []models.Trigger{
		{ID: "t1", Type: models.TriggerObjectDetected, Action: models.ActionNotify, Active: true},
		{ID: "t2", Type: models.TriggerObjectDetected, Action: models.ActionLog, Active: false},
		{ID: "t3", Type: models.TriggerTimeOfDay, Action: models.ActionSpeak, Active: true},
	}
	for _, tr := range triggers {
		if err := store.Put(tr); err != nil {
			t.Fatalf("Put %s failed: %v", tr.ID, err)
		}
	}

	byType, err := store.ByType(models.TriggerObjectDetected)
	if err != nil {
		t.Fatalf("ByType failed: %v", err)
	}
	if len(byType) != 2 {
		t.Fatalf("expected 2 objectDetected triggers, got %d", len(byType))
	}

	active, err := store.Active()
	if err != nil {
		t.Fatalf("Active failed: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("expected 2 active triggers, got %d", len(active))
	}
}

func TestBadgerTriggerStoreDelete(t *testing.T) {
	store := newTestTriggerStore(t)

	trigger := models.Trigger{ID: "t1", Type: models.TriggerPattern, Action: models.ActionCustom}
	if err := store.Put(trigger); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := store.Delete("t1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	_, ok, err := store.Get("t1")
	if err != nil {
		t.Fatalf("Get after delete failed: %v", err)
	}
	if ok {
		t.Fatalf("expected trigger t1 to be gone after Delete")
	}
}
