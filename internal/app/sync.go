package app

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/linhnh2711/examen-civique-app-sub000/internal/domain"
)

// CloudStore is the remote document boundary shared across a user's
// devices. ReadUserDocument returns (nil, nil) when no document exists.
type CloudStore interface {
	ReadUserDocument(ctx context.Context, userID string) (*domain.UserData, error)
	WriteUserDocument(ctx context.Context, userID string, data domain.UserData, merge bool) error
	UpdateField(ctx context.Context, userID string, field string, value interface{}) error
}

// AuthProvider supplies the signed-in user, if any. Authentication itself
// happens elsewhere.
type AuthProvider interface {
	CurrentUser() (userID, email string, ok bool)
}

// SyncService reconciles ledger and history state with the cloud copy.
// Every operation is gated behind the FULL tier and an authenticated
// user, and either completes fully or leaves local state untouched.
//
// There is no cross-device version check: the last upload wins, and
// DownloadOnLogin replaces local state wholesale. Progress made offline
// on a second device since the last cloud write can therefore be lost.
// This mirrors the product's documented "cloud is source of truth after
// login" policy.
type SyncService struct {
	cloud        CloudStore
	auth         AuthProvider
	ledger       *ProgressLedger
	history      *HistoryLog
	entitlements *EntitlementStore
	log          logrus.FieldLogger
	clock        func() time.Time
}

func NewSyncService(cloud CloudStore, auth AuthProvider, ledger *ProgressLedger, history *HistoryLog, entitlements *EntitlementStore, log logrus.FieldLogger) *SyncService {
	return &SyncService{
		cloud:        cloud,
		auth:         auth,
		ledger:       ledger,
		history:      history,
		entitlements: entitlements,
		log:          log,
		clock:        time.Now,
	}
}

// Upload writes the full local state to the cloud document.
func (s *SyncService) Upload(ctx context.Context) error {
	userID, err := s.gate()
	if err != nil {
		return err
	}
	if err := s.cloud.WriteUserDocument(ctx, userID, s.snapshot(), false); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrCloudUnavailable, err)
	}
	return nil
}

// UploadStats pushes only the aggregate counters, as a cheap field update
// after a quiz finishes.
func (s *SyncService) UploadStats(ctx context.Context) error {
	userID, err := s.gate()
	if err != nil {
		return err
	}
	if err := s.cloud.UpdateField(ctx, userID, "stats", s.ledger.Stats()); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrCloudUnavailable, err)
	}
	return nil
}

// DownloadOnLogin applies the login policy: an existing remote document
// replaces local state wholesale; a missing one is initialized from the
// current local state. Local data is only touched after a successful read.
func (s *SyncService) DownloadOnLogin(ctx context.Context) error {
	userID, err := s.gate()
	if err != nil {
		return err
	}

	remote, err := s.cloud.ReadUserDocument(ctx, userID)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrCloudUnavailable, err)
	}
	if remote == nil {
		if err := s.cloud.WriteUserDocument(ctx, userID, s.snapshot(), false); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrCloudUnavailable, err)
		}
		return nil
	}

	s.restore(*remote)
	return nil
}

// MergeSync reconciles both copies with the merge rules and writes the
// result back, applying it locally only after the cloud write succeeds.
func (s *SyncService) MergeSync(ctx context.Context) error {
	userID, err := s.gate()
	if err != nil {
		return err
	}

	remote, err := s.cloud.ReadUserDocument(ctx, userID)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrCloudUnavailable, err)
	}

	merged := s.snapshot()
	if remote != nil {
		merged = MergeUserData(merged, *remote)
	}
	merged.UpdatedAt = s.clock()

	if err := s.cloud.WriteUserDocument(ctx, userID, merged, false); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrCloudUnavailable, err)
	}
	s.restore(merged)
	return nil
}

func (s *SyncService) gate() (string, error) {
	userID, _, ok := s.auth.CurrentUser()
	if !ok || !s.entitlements.CanSyncToCloud() {
		return "", domain.ErrSyncNotAllowed
	}
	return userID, nil
}

// snapshot builds the full cloud document: ledger state plus the history
// log, newest entry first.
func (s *SyncService) snapshot() domain.UserData {
	data := s.ledger.Export()
	entries := s.history.All()
	history := make([]domain.HistoryEntry, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		history = append(history, entries[i])
	}
	data.History = history
	data.UpdatedAt = s.clock()
	return data
}

// restore replaces local state with the document, converting the
// newest-first history back to append order.
func (s *SyncService) restore(data domain.UserData) {
	s.ledger.Import(data)
	entries := make([]domain.HistoryEntry, 0, len(data.History))
	for i := len(data.History) - 1; i >= 0; i-- {
		entries = append(entries, data.History[i])
	}
	s.history.Replace(entries)
}
