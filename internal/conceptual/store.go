// Package conceptual implements the typed conceptual record store (C7):
// a thin layer of Thought/Conversation/Idea/Note/Plan/Hybrid records
// sharing the same vector space as the physical Entry tiers, backed by
// SQLite for durable structured storage. Adapted from the teacher's
// SQLiteAuditLogger (the same schema-init-then-prepared-statement
// pattern, repurposed from audit rows to tagged conceptual records).
package conceptual

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/trinityvector/trinitymemory/internal/models"
	"github.com/trinityvector/trinitymemory/internal/vectorindex"
)

// duplicateThreshold is the relaxed dedup threshold for conceptual
// records (spec §4.5: τ=0.88, looser than the physical-entry table).
const duplicateThreshold = 0.88

// Store is the conceptual record store: SQLite for durable typed
// storage, sharing the physical tiers' vector index for similarity
// search across both domains.
type Store struct {
	db    *sql.DB
	index *vectorindex.Index
}

// New opens (or creates) a SQLite database at dbPath and shares index
// with the physical memory manager.
func New(dbPath string, index *vectorindex.Index) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("conceptual: create db directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("conceptual: open database: %w", err)
	}

	s := &Store{db: db, index: index}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("conceptual: init schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conceptual_records (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		created DATETIME NOT NULL,
		last_accessed DATETIME NOT NULL,
		access_count INTEGER NOT NULL DEFAULT 0,
		payload TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_conceptual_kind ON conceptual_records(kind);
	CREATE INDEX IF NOT EXISTS idx_conceptual_created ON conceptual_records(created);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Put inserts or replaces a conceptual record and indexes its
// embedding alongside the physical tiers.
func (s *Store) Put(record *models.ConceptualRecord) error {
	var payload any
	switch record.Kind {
	case models.KindThought:
		payload = record.Thought
	case models.KindConversation:
		payload = record.Conversation
	case models.KindIdea:
		payload = record.Idea
	case models.KindNote:
		payload = record.Note
	case models.KindPlan:
		payload = record.Plan
	case models.KindHybrid:
		payload = record.Hybrid
	default:
		return fmt.Errorf("conceptual: unknown record kind %q", record.Kind)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("conceptual: marshal %s payload: %w", record.Kind, err)
	}

	_, err = s.db.Exec(`
		INSERT INTO conceptual_records (id, kind, created, last_accessed, access_count, payload)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_accessed = excluded.last_accessed,
			access_count = excluded.access_count,
			payload = excluded.payload
	`, record.ID, string(record.Kind), record.Created, record.LastAccessed, record.AccessCount, string(data))
	if err != nil {
		return fmt.Errorf("conceptual: upsert record: %w", err)
	}

	// Conceptual records are indexed under "concept:<id>" in the
	// "conceptual" pseudo-tier so that conceptual and physical entries
	// never collide in the cosine index despite sharing the same vector
	// space.
	s.index.Insert(conceptualIndexID(record.ID), record.Embedding, conceptualTier, record.AccessCount, record.LastAccessed)
	return nil
}

// conceptualTier is a dedicated pseudo-tier tag so the shared vector
// index can distinguish conceptual hits from physical-entry hits
// without a second index instance.
const conceptualTier = models.Tier("conceptual")

func conceptualIndexID(id string) string {
	return "concept:" + id
}

// FindDuplicate scans among for a record whose embedding is at or
// above the relaxed conceptual-dedup threshold (τ=0.88, vs. the
// type-adjusted table used for physical entries) and whose variant
// kind matches candidate's.
func FindDuplicate(candidate *models.ConceptualRecord, among []*models.ConceptualRecord) (*models.ConceptualRecord, bool) {
	for _, existing := range among {
		if existing.Kind != candidate.Kind {
			continue
		}
		if vectorindex.Cosine(existing.Embedding, candidate.Embedding) >= duplicateThreshold {
			return existing, true
		}
	}
	return nil, false
}

// Get retrieves a record by id.
func (s *Store) Get(id string) (*models.ConceptualRecord, bool, error) {
	var kind string
	var record models.ConceptualRecord
	var payload string

	row := s.db.QueryRow(`SELECT id, kind, created, last_accessed, access_count, payload FROM conceptual_records WHERE id = ?`, id)
	if err := row.Scan(&record.ID, &kind, &record.Created, &record.LastAccessed, &record.AccessCount, &payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("conceptual: get record: %w", err)
	}

	record.Kind = models.ConceptualKind(kind)
	if err := unmarshalPayload(&record, payload); err != nil {
		return nil, false, err
	}
	return &record, true, nil
}

func unmarshalPayload(record *models.ConceptualRecord, payload string) error {
	switch record.Kind {
	case models.KindThought:
		record.Thought = &models.Thought{}
		return json.Unmarshal([]byte(payload), record.Thought)
	case models.KindConversation:
		record.Conversation = &models.Conversation{}
		return json.Unmarshal([]byte(payload), record.Conversation)
	case models.KindIdea:
		record.Idea = &models.Idea{}
		return json.Unmarshal([]byte(payload), record.Idea)
	case models.KindNote:
		record.Note = &models.Note{}
		return json.Unmarshal([]byte(payload), record.Note)
	case models.KindPlan:
		record.Plan = &models.Plan{}
		return json.Unmarshal([]byte(payload), record.Plan)
	case models.KindHybrid:
		record.Hybrid = &models.Hybrid{}
		return json.Unmarshal([]byte(payload), record.Hybrid)
	default:
		return fmt.Errorf("conceptual: unknown record kind %q", record.Kind)
	}
}

// ByKind lists every stored record of kind, most-recently-created
// first.
func (s *Store) ByKind(kind models.ConceptualKind) ([]*models.ConceptualRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, kind, created, last_accessed, access_count, payload
		FROM conceptual_records WHERE kind = ? ORDER BY created DESC
	`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("conceptual: list by kind: %w", err)
	}
	defer rows.Close()

	var out []*models.ConceptualRecord
	for rows.Next() {
		var record models.ConceptualRecord
		var k, payload string
		if err := rows.Scan(&record.ID, &k, &record.Created, &record.LastAccessed, &record.AccessCount, &payload); err != nil {
			return nil, fmt.Errorf("conceptual: scan record: %w", err)
		}
		record.Kind = models.ConceptualKind(k)
		if err := unmarshalPayload(&record, payload); err != nil {
			return nil, err
		}
		out = append(out, &record)
	}
	return out, rows.Err()
}

// Delete removes a record by id from storage and the shared index.
func (s *Store) Delete(id string) error {
	if _, err := s.db.Exec(`DELETE FROM conceptual_records WHERE id = ?`, id); err != nil {
		return fmt.Errorf("conceptual: delete record: %w", err)
	}
	s.index.Delete(conceptualIndexID(id))
	return nil
}

// Search finds the k nearest conceptual records to query.
func (s *Store) Search(query []float32, k int) []string {
	results := s.index.Search(query, k, vectorindex.NewTierFilter(conceptualTier))
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ID[len("concept:"):]
	}
	return ids
}

// Close closes the underlying SQLite connection.
func (s *Store) Close() error {
	return s.db.Close()
}
