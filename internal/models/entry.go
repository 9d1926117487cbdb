// Package models defines the shared data types for the three-tier vector
// memory: entries, spatial metadata, typed connections, triggers, and the
// conceptual record variants layered on top of it.
package models

import "time"

// Tier identifies which of the three memory tiers an Entry currently
// resides in. Every entry resides in exactly one tier at a time.
type Tier string

const (
	TierWorking  Tier = "working"
	TierEpisodic Tier = "episodic"
	TierSemantic Tier = "semantic"
)

// DefaultDimensions is the default embedding width used across the
// memory engine unless a Config overrides it.
const DefaultDimensions = 512

// GeoCoordinate is a geographic fix attached to metadata or an observation.
type GeoCoordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
	Alt float64 `json:"alt"`
}

// BoundingBox3D is an axis-aligned box in the device's local frame.
type BoundingBox3D struct {
	X, Y, Z float64
	W, H, D float64
}

// Orientation is a device or object attitude in radians.
type Orientation struct {
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
	Roll  float64 `json:"roll"`
}

// SpatialData is the optional spatial descriptor attached to a Metadata
// or a Detected observation.
type SpatialData struct {
	DepthMeters float64       `json:"depth_meters"`
	BoundingBox BoundingBox3D `json:"bounding_box"`
	Orientation Orientation   `json:"orientation"`
	Confidence  float64       `json:"confidence"`
}

// Metadata carries the descriptive, non-vector fields of an Entry.
type Metadata struct {
	ObjectType  string        `json:"object_type"`
	Description string        `json:"description"`
	Confidence  float64       `json:"confidence"`
	Tags        StringSet     `json:"tags"`
	Spatial     *SpatialData  `json:"spatial,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
	Location    *GeoCoordinate `json:"location,omitempty"`
}

// ConnectionType enumerates the typed edges between entries.
type ConnectionType string

const (
	ConnSpatialProximity   ConnectionType = "spatialProximity"
	ConnTemporalSequence   ConnectionType = "temporalSequence"
	ConnSemanticSimilarity ConnectionType = "semanticSimilarity"
	ConnCausalRelation     ConnectionType = "causalRelation"
	ConnPartOfWhole        ConnectionType = "partOfWhole"
	ConnConversational     ConnectionType = "conversational"
)

// Connection is a directional, soft-constraint edge to another entry:
// a missing target at read time is dropped rather than treated as an error.
type Connection struct {
	TargetID string         `json:"target_id"`
	Type     ConnectionType `json:"type"`
	Strength float64        `json:"strength"`
}

// EntityRef is a lightweight named-entity mention carried on an
// enhanced entry.
type EntityRef struct {
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

// TriggerType enumerates the declarative conditions a Trigger reacts to.
type TriggerType string

const (
	TriggerObjectDetected     TriggerType = "objectDetected"
	TriggerLocationEntered    TriggerType = "locationEntered"
	TriggerTimeOfDay          TriggerType = "timeOfDay"
	TriggerSpatialProximity   TriggerType = "spatialProximity"
	TriggerConversationKeyword TriggerType = "conversationKeyword"
	TriggerPattern            TriggerType = "pattern"
)

// TriggerAction enumerates what fires when a Trigger's condition matches.
type TriggerAction string

const (
	ActionNotify    TriggerAction = "notify"
	ActionSpeak     TriggerAction = "speak"
	ActionRetrieve  TriggerAction = "retrieve"
	ActionWebSearch TriggerAction = "webSearch"
	ActionLog       TriggerAction = "log"
	ActionCustom    TriggerAction = "custom"
)

// Trigger is a declarative rule evaluated against incoming context.
type Trigger struct {
	ID        string        `json:"id"`
	Type      TriggerType   `json:"type"`
	Condition string        `json:"condition"`
	Action    TriggerAction `json:"action"`
	Priority  int           `json:"priority"`
	Active    bool          `json:"active"`
}

// EnhancedEntry carries the optional, richer fields a caller may attach
// to an Entry in addition to its base Metadata.
type EnhancedEntry struct {
	Keywords             []string     `json:"keywords,omitempty"`
	Categories           StringSet    `json:"categories,omitempty"`
	Entities             []EntityRef  `json:"entities,omitempty"`
	Importance           float64      `json:"importance"`
	TimeOfDay            string       `json:"time_of_day,omitempty"`
	DayOfWeek            string       `json:"day_of_week,omitempty"`
	LocationName         string       `json:"location_name,omitempty"`
	Weather              string       `json:"weather,omitempty"`
	ConversationContext  string       `json:"conversation_context,omitempty"`
	IntentContext        string       `json:"intent_context,omitempty"`
	Connections          []Connection `json:"connections,omitempty"`
	ClusterID            string       `json:"cluster_id,omitempty"`
	PrevEntryID          string       `json:"prev_entry_id,omitempty"`
	NextEntryID          string       `json:"next_entry_id,omitempty"`
	Triggers             []Trigger    `json:"triggers,omitempty"`
	SourceType           string       `json:"source_type,omitempty"`
	Quality              float64      `json:"quality"`
	ConsolidationCount   int          `json:"consolidation_count"`
}

// Entry is a single immutable-identifier memory record: a unit-norm
// embedding plus metadata, tagged with the tier it currently lives in.
type Entry struct {
	ID           string         `json:"id"`
	Embedding    []float32      `json:"embedding"`
	Tier         Tier           `json:"tier"`
	AccessCount  int            `json:"access_count"`
	LastAccessed time.Time      `json:"last_accessed"`
	Created      time.Time      `json:"created"`
	Metadata     Metadata       `json:"metadata"`
	Enhanced     *EnhancedEntry `json:"enhanced,omitempty"`
}

// Touch bumps the access accounting fields. Invariant: AccessCount >= 0
// and LastAccessed >= Created always hold after Touch.
func (e *Entry) Touch(now time.Time) {
	e.AccessCount++
	if now.Before(e.Created) {
		now = e.Created
	}
	e.LastAccessed = now
}

// Clone returns a deep-enough copy of the entry for safe mutation by
// callers that must not alias the stored embedding or tag set.
func (e *Entry) Clone() *Entry {
	out := *e
	out.Embedding = append([]float32(nil), e.Embedding...)
	out.Metadata.Tags = e.Metadata.Tags.Clone()
	if e.Metadata.Spatial != nil {
		sd := *e.Metadata.Spatial
		out.Metadata.Spatial = &sd
	}
	if e.Metadata.Location != nil {
		loc := *e.Metadata.Location
		out.Metadata.Location = &loc
	}
	if e.Enhanced != nil {
		enh := *e.Enhanced
		enh.Categories = e.Enhanced.Categories.Clone()
		enh.Keywords = append([]string(nil), e.Enhanced.Keywords...)
		enh.Connections = append([]Connection(nil), e.Enhanced.Connections...)
		enh.Triggers = append([]Trigger(nil), e.Enhanced.Triggers...)
		enh.Entities = append([]EntityRef(nil), e.Enhanced.Entities...)
		out.Enhanced = &enh
	}
	return &out
}
