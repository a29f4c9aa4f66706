package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/linhnh2711/examen-civique-app-sub000/internal/domain"
)

// CloudStore is an in-memory stand-in for the remote user-document
// collaborator, used in tests and when no postgres is configured.
type CloudStore struct {
	mu        sync.RWMutex
	documents map[string]domain.UserData
	failing   bool
}

func NewCloudStore() *CloudStore {
	return &CloudStore{documents: make(map[string]domain.UserData)}
}

// SetUnreachable makes every call fail, for exercising the no-partial-
// mutation failure policy in tests.
func (s *CloudStore) SetUnreachable(unreachable bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = unreachable
}

func (s *CloudStore) ReadUserDocument(_ context.Context, userID string) (*domain.UserData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failing {
		return nil, fmt.Errorf("cloud store unreachable")
	}
	data, ok := s.documents[userID]
	if !ok {
		return nil, nil
	}
	return &data, nil
}

func (s *CloudStore) WriteUserDocument(_ context.Context, userID string, data domain.UserData, merge bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return fmt.Errorf("cloud store unreachable")
	}
	if !merge {
		s.documents[userID] = data
		return nil
	}
	existing, ok := s.documents[userID]
	if !ok {
		s.documents[userID] = data
		return nil
	}
	s.documents[userID] = mergeDocuments(existing, data)
	return nil
}

func (s *CloudStore) UpdateField(_ context.Context, userID, field string, value interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return fmt.Errorf("cloud store unreachable")
	}

	existing := s.documents[userID]
	raw, err := json.Marshal(existing)
	if err != nil {
		return err
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return err
	}
	doc[field] = encoded

	merged, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	var updated domain.UserData
	if err := json.Unmarshal(merged, &updated); err != nil {
		return fmt.Errorf("unknown field %q: %w", field, err)
	}
	s.documents[userID] = updated
	return nil
}

// mergeDocuments applies document-level field overwrite semantics, the
// same contract the real store gives merge writes.
func mergeDocuments(existing, incoming domain.UserData) domain.UserData {
	out := existing
	if incoming.Stats != (domain.Stats{}) {
		out.Stats = incoming.Stats
	}
	if incoming.Learned != nil {
		out.Learned = incoming.Learned
	}
	if incoming.WrongAnswers != nil {
		out.WrongAnswers = incoming.WrongAnswers
	}
	if incoming.SavedIDs != nil {
		out.SavedIDs = incoming.SavedIDs
	}
	if incoming.History != nil {
		out.History = incoming.History
	}
	if !incoming.UpdatedAt.IsZero() {
		out.UpdatedAt = incoming.UpdatedAt
	}
	return out
}
