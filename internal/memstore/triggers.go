package memstore

import (
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/trinityvector/trinitymemory/internal/models"
)

// TriggerStore indexes trigger definitions for fast type/condition
// lookup, independent of the entries they're attached to.
type TriggerStore interface {
	Put(trigger models.Trigger) error
	Get(id string) (models.Trigger, bool, error)
	ByType(t models.TriggerType) ([]models.Trigger, error)
	Active() ([]models.Trigger, error)
	Delete(id string) error
	Close() error
}

// BadgerTriggerStore is an embedded-KV-backed TriggerStore, adapted
// from the teacher's BadgerProceduralStore (workflow-pattern KV store):
// the same prefix-scan-over-JSON-values pattern, repurposed from
// workflow patterns to trigger definitions.
type BadgerTriggerStore struct {
	db *badger.DB
}

const triggerKeyPrefix = "trigger:"

// NewBadgerTriggerStore opens (or creates) a BadgerDB instance at path.
func NewBadgerTriggerStore(path string) (*BadgerTriggerStore, error) {
	opts := badger.DefaultOptions(path).WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("memstore: open trigger store: %w", err)
	}
	return &BadgerTriggerStore{db: db}, nil
}

func triggerKey(id string) []byte {
	return []byte(triggerKeyPrefix + id)
}

// Put upserts a trigger definition.
func (s *BadgerTriggerStore) Put(trigger models.Trigger) error {
	data, err := json.Marshal(trigger)
	if err != nil {
		return fmt.Errorf("memstore: marshal trigger: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(triggerKey(trigger.ID), data)
	})
}

// Get retrieves a trigger by id.
func (s *BadgerTriggerStore) Get(id string) (models.Trigger, bool, error) {
	var trigger models.Trigger
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(triggerKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &trigger)
		})
	})
	if err == badger.ErrKeyNotFound {
		return models.Trigger{}, false, nil
	}
	if err != nil {
		return models.Trigger{}, false, fmt.Errorf("memstore: get trigger: %w", err)
	}
	return trigger, true, nil
}

// ByType returns every stored trigger of type t.
func (s *BadgerTriggerStore) ByType(t models.TriggerType) ([]models.Trigger, error) {
	var out []models.Trigger
	err := s.scan(func(trigger models.Trigger) {
		if trigger.Type == t {
			out = append(out, trigger)
		}
	})
	return out, err
}

// Active returns every stored trigger currently marked active.
func (s *BadgerTriggerStore) Active() ([]models.Trigger, error) {
	var out []models.Trigger
	err := s.scan(func(trigger models.Trigger) {
		if trigger.Active {
			out = append(out, trigger)
		}
	})
	return out, err
}

func (s *BadgerTriggerStore) scan(visit func(models.Trigger)) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(triggerKeyPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				var trigger models.Trigger
				if err := json.Unmarshal(val, &trigger); err != nil {
					return nil // skip malformed entries
				}
				visit(trigger)
				return nil
			})
			if err != nil {
				continue
			}
		}
		return nil
	})
}

// Delete removes a trigger definition.
func (s *BadgerTriggerStore) Delete(id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(triggerKey(id))
	})
}

// Close closes the underlying BadgerDB instance.
func (s *BadgerTriggerStore) Close() error {
	return s.db.Close()
}
