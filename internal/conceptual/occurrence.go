package conceptual

import (
	"time"

	"github.com/trinityvector/trinitymemory/internal/models"
	"github.com/trinityvector/trinitymemory/internal/vectorindex"
)

// occurrenceMergeWindow and occurrenceMergeThreshold implement spec
// §4.5's explicit occurrence merging for conversations: a recurring
// topic within the window increments occurrences rather than creating
// a new record.
const (
	occurrenceMergeWindow    = 24 * time.Hour
	occurrenceMergeThreshold = 0.92
)

// IngestConversation performs occurrence merging: if an existing
// Conversation's embedding is within occurrenceMergeThreshold of
// incoming's and was created within occurrenceMergeWindow, the
// existing record absorbs incoming (occurrences++, keyInsights
// unioned, merge chain recorded) and is returned; otherwise incoming is
// stored as a new record and returned unchanged.
func (s *Store) IngestConversation(incoming *models.ConceptualRecord, now time.Time) (*models.ConceptualRecord, error) {
	if incoming.Kind != models.KindConversation || incoming.Conversation == nil {
		return nil, errNotAConversation
	}

	existing, err := s.findRecentSimilarConversation(incoming, now)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		if err := s.Put(incoming); err != nil {
			return nil, err
		}
		return incoming, nil
	}

	merged := mergeConversationOccurrence(existing, incoming)
	if err := s.Put(merged); err != nil {
		return nil, err
	}
	return merged, nil
}

func (s *Store) findRecentSimilarConversation(incoming *models.ConceptualRecord, now time.Time) (*models.ConceptualRecord, error) {
	conversations, err := s.ByKind(models.KindConversation)
	if err != nil {
		return nil, err
	}

	for _, candidate := range conversations {
		if now.Sub(candidate.Created) > occurrenceMergeWindow {
			continue
		}
		if vectorindex.Cosine(candidate.Embedding, incoming.Embedding) >= occurrenceMergeThreshold {
			return candidate, nil
		}
	}
	return nil, nil
}

func mergeConversationOccurrence(existing, incoming *models.ConceptualRecord) *models.ConceptualRecord {
	merged := *existing
	mergedConv := *existing.Conversation

	mergedConv.Occurrences = existing.Conversation.Occurrences + 1
	mergedConv.KeyInsights = unionStrings(existing.Conversation.KeyInsights, incoming.Conversation.KeyInsights)
	mergedConv.KeyTopics = unionStrings(existing.Conversation.KeyTopics, incoming.Conversation.KeyTopics)
	mergedConv.MergedFrom = append(append([]string(nil), existing.Conversation.MergedFrom...), incoming.ID)
	mergedConv.Messages = append(append([]models.ConversationMessage(nil), existing.Conversation.Messages...), incoming.Conversation.Messages...)

	merged.Conversation = &mergedConv
	merged.LastAccessed = incoming.LastAccessed
	merged.AccessCount = existing.AccessCount + 1

	return &merged
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, s := range list {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

type conceptualError string

func (e conceptualError) Error() string { return string(e) }

const errNotAConversation = conceptualError("conceptual: record is not a conversation")
