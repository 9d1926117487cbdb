package models

import "time"

// ConceptualKind discriminates the conceptual record variants. A single
// discriminator plus per-variant payload is used in place of a shared
// base type with virtual dispatch (see design notes on polymorphic
// memory records).
type ConceptualKind string

const (
	KindThought      ConceptualKind = "thought"
	KindConversation ConceptualKind = "conversation"
	KindIdea         ConceptualKind = "idea"
	KindNote         ConceptualKind = "note"
	KindPlan         ConceptualKind = "plan"
	KindHybrid       ConceptualKind = "hybrid"
)

// ThoughtCategory enumerates the kinds of standalone thought a user or
// the assistant may record.
type ThoughtCategory string

const (
	ThoughtReminder    ThoughtCategory = "reminder"
	ThoughtObservation ThoughtCategory = "observation"
	ThoughtIntention   ThoughtCategory = "intention"
	ThoughtReflection  ThoughtCategory = "reflection"
	ThoughtQuestion    ThoughtCategory = "question"
)

// Thought is a single standalone cognitive record.
type Thought struct {
	Content         string          `json:"content"`
	Category        ThoughtCategory `json:"category"`
	Importance      float64         `json:"importance"`
	EmotionalTone   string          `json:"emotional_tone,omitempty"`
	LinkedLocation  string          `json:"linked_location,omitempty"`
	LinkedObjects   []string        `json:"linked_objects,omitempty"`
	LinkedScene     string          `json:"linked_scene,omitempty"`
}

// ConversationMessage is a single turn within a recorded Conversation.
type ConversationMessage struct {
	Speaker   string    `json:"speaker"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation is a recorded exchange, subject to occurrence merging
// (see conceptual.Store) when a near-duplicate topic recurs within
// a short window.
type Conversation struct {
	Participants        []string               `json:"participants"`
	Messages            []ConversationMessage  `json:"messages"`
	Summary             string                 `json:"summary"`
	KeyTopics           []string               `json:"key_topics"`
	KeyInsights         []string               `json:"key_insights"`
	RelatedConversations []string              `json:"related_conversations,omitempty"`
	MergedFrom          []string               `json:"merged_from,omitempty"`
	Occurrences         int                    `json:"occurrences"`
	Duration            time.Duration          `json:"duration"`
}

// IdeaStatus tracks an Idea's lifecycle.
type IdeaStatus string

const (
	IdeaDraft       IdeaStatus = "draft"
	IdeaRefined     IdeaStatus = "refined"
	IdeaImplemented IdeaStatus = "implemented"
	IdeaArchived    IdeaStatus = "archived"
)

// IdeaVersion is one entry in an Idea's revision history.
type IdeaVersion struct {
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Idea is a versioned, evolvable concept.
type Idea struct {
	Title         string        `json:"title"`
	Description   string        `json:"description"`
	Status        IdeaStatus    `json:"status"`
	Versions      []IdeaVersion `json:"versions"`
	RelatedIdeas  []string      `json:"related_ideas,omitempty"`
	Inspirations  []string      `json:"inspirations,omitempty"`
	SpawnedFrom   string        `json:"spawned_from,omitempty"`
	Tags          StringSet     `json:"tags,omitempty"`
}

// Note is a freeform annotation, optionally a reminder.
type Note struct {
	Title         string     `json:"title"`
	Content       string     `json:"content"`
	IsReminder    bool       `json:"is_reminder"`
	ReminderDate  *time.Time `json:"reminder_date,omitempty"`
	Tags          StringSet  `json:"tags,omitempty"`
}

// Plan is a scheduled intention with optional reminder offsets.
type Plan struct {
	Title           string          `json:"title"`
	ScheduledDate   time.Time       `json:"scheduled_date"`
	Participants    []string        `json:"participants,omitempty"`
	ReminderOffsets []time.Duration `json:"reminder_offsets,omitempty"`
	IsCompleted     bool            `json:"is_completed"`
	CompletedDate   *time.Time      `json:"completed_date,omitempty"`
}

// Hybrid links physical (Entry) and conceptual records into a single
// synthesized meaning, with its own typed connection list.
type Hybrid struct {
	PhysicalRefs       []string     `json:"physical_refs"`
	ConceptualRefs      []string    `json:"conceptual_refs"`
	SynthesizedMeaning string       `json:"synthesized_meaning"`
	Connections        []Connection `json:"connections,omitempty"`
}

// ConceptualRecord is the tagged union over all non-physical memory
// variants. Exactly one of the Kind-named payload fields is populated,
// matching Kind.
type ConceptualRecord struct {
	ID           string         `json:"id"`
	Kind         ConceptualKind `json:"kind"`
	Embedding    []float32      `json:"embedding"`
	Created      time.Time      `json:"created"`
	LastAccessed time.Time      `json:"last_accessed"`
	AccessCount  int            `json:"access_count"`

	Thought      *Thought      `json:"thought,omitempty"`
	Conversation *Conversation `json:"conversation,omitempty"`
	Idea         *Idea         `json:"idea,omitempty"`
	Note         *Note         `json:"note,omitempty"`
	Plan         *Plan         `json:"plan,omitempty"`
	Hybrid       *Hybrid       `json:"hybrid,omitempty"`
}

// ObjectType returns the dedup-relevant object type string for a
// conceptual record, derived from its variant tag (per spec §4.5:
// "object_type derived from variant tag").
func (r *ConceptualRecord) ObjectType() string {
	return "concept:" + string(r.Kind)
}
