package app_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/linhnh2711/examen-civique-app-sub000/internal/app"
	"github.com/linhnh2711/examen-civique-app-sub000/internal/domain"
	"github.com/linhnh2711/examen-civique-app-sub000/internal/infra/memory"
)

func TestSyncRequiresFullTierAndAuth(t *testing.T) {
	env := newSyncEnv(t)
	ctx := context.Background()

	// Authenticated but only BASIC.
	env.entitlements.SetStatus(domain.TierBasic, domain.PurchaseMetadata{ProductID: app.ProductBasic})
	if err := env.sync.Upload(ctx); !errors.Is(err, domain.ErrSyncNotAllowed) {
		t.Fatalf("expected ErrSyncNotAllowed below FULL, got %v", err)
	}

	// FULL but signed out.
	env.entitlements.SetStatus(domain.TierFull, domain.PurchaseMetadata{ProductID: app.ProductFull})
	env.auth.SignOut()
	if err := env.sync.DownloadOnLogin(ctx); !errors.Is(err, domain.ErrSyncNotAllowed) {
		t.Fatalf("expected ErrSyncNotAllowed when signed out, got %v", err)
	}
}

func TestUploadWritesFullSnapshot(t *testing.T) {
	env := newSyncEnv(t)
	ctx := context.Background()

	env.ledger.MarkLearned(1, []domain.Track{domain.TrackCSP})
	env.ledger.RecordAnswer(true)
	if err := env.history.Append(domain.HistoryEntry{Track: domain.TrackCSP, Mode: domain.ModePractice, Score: 8, Total: 10}); err != nil {
		t.Fatalf("append: %v", err)
	}

	if err := env.sync.Upload(ctx); err != nil {
		t.Fatalf("upload: %v", err)
	}

	doc, err := env.cloud.ReadUserDocument(ctx, "user-1")
	if err != nil || doc == nil {
		t.Fatalf("expected document written, got %v, %v", doc, err)
	}
	if !reflect.DeepEqual(doc.Learned[domain.TrackCSP], []int{1}) {
		t.Fatalf("expected learned set in document, got %v", doc.Learned)
	}
	if doc.Stats.TotalAnswered != 1 || len(doc.History) != 1 {
		t.Fatalf("expected stats and history in document, got %+v", doc)
	}
	if doc.UpdatedAt.IsZero() {
		t.Fatalf("expected UpdatedAt stamped on upload")
	}
}

func TestUploadStatsTouchesOnlyCounters(t *testing.T) {
	env := newSyncEnv(t)
	ctx := context.Background()

	env.ledger.MarkLearned(1, []domain.Track{domain.TrackCSP})
	if err := env.sync.Upload(ctx); err != nil {
		t.Fatalf("upload: %v", err)
	}

	env.ledger.RecordAnswer(true)
	env.ledger.MarkLearned(2, []domain.Track{domain.TrackCSP})
	if err := env.sync.UploadStats(ctx); err != nil {
		t.Fatalf("upload stats: %v", err)
	}

	doc, err := env.cloud.ReadUserDocument(ctx, "user-1")
	if err != nil || doc == nil {
		t.Fatalf("read: %v, %v", doc, err)
	}
	if doc.Stats.TotalAnswered != 1 {
		t.Fatalf("expected stats field updated, got %+v", doc.Stats)
	}
	if !reflect.DeepEqual(doc.Learned[domain.TrackCSP], []int{1}) {
		t.Fatalf("expected learned untouched by field update, got %v", doc.Learned)
	}
}

func TestDownloadOnLoginReplacesLocalState(t *testing.T) {
	env := newSyncEnv(t)
	ctx := context.Background()

	// Local progress made before signing in.
	env.ledger.MarkLearned(1, []domain.Track{domain.TrackCSP})
	env.ledger.RecordAnswer(true)

	remote := domain.UserData{
		Stats:    domain.Stats{TotalAnswered: 40, Correct: 30, BestStreak: 7},
		Learned:  map[domain.Track][]int{domain.TrackCSP: {2, 4}, domain.TrackCR: {3}},
		SavedIDs: []int{4},
		History: []domain.HistoryEntry{
			{Track: domain.TrackCR, Mode: domain.ModeMockExam, Score: 32, Total: 40, Passed: true, Timestamp: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)},
		},
		UpdatedAt: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
	}
	if err := env.cloud.WriteUserDocument(ctx, "user-1", remote, false); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := env.sync.DownloadOnLogin(ctx); err != nil {
		t.Fatalf("download: %v", err)
	}

	// Cloud wins wholesale: the pre-login local learned mark is gone.
	exported := env.ledger.Export()
	if !reflect.DeepEqual(exported.Learned[domain.TrackCSP], []int{2, 4}) {
		t.Fatalf("expected remote learned set, got %v", exported.Learned)
	}
	if env.ledger.Stats().TotalAnswered != 40 {
		t.Fatalf("expected remote stats, got %+v", env.ledger.Stats())
	}
	if env.history.Len() != 1 || env.history.Recent(1)[0].Mode != domain.ModeMockExam {
		t.Fatalf("expected remote history restored, got %d entries", env.history.Len())
	}
}

func TestDownloadOnLoginInitializesMissingDocument(t *testing.T) {
	env := newSyncEnv(t)
	ctx := context.Background()

	env.ledger.MarkLearned(1, []domain.Track{domain.TrackCSP})

	if err := env.sync.DownloadOnLogin(ctx); err != nil {
		t.Fatalf("download: %v", err)
	}

	doc, err := env.cloud.ReadUserDocument(ctx, "user-1")
	if err != nil || doc == nil {
		t.Fatalf("expected document initialized from local state, got %v, %v", doc, err)
	}
	if !reflect.DeepEqual(doc.Learned[domain.TrackCSP], []int{1}) {
		t.Fatalf("expected local state uploaded, got %v", doc.Learned)
	}
	// Local state is untouched.
	if !reflect.DeepEqual(env.ledger.Export().Learned[domain.TrackCSP], []int{1}) {
		t.Fatalf("expected local state preserved")
	}
}

func TestUnreachableCloudLeavesLocalUntouched(t *testing.T) {
	env := newSyncEnv(t)
	ctx := context.Background()

	env.ledger.MarkLearned(1, []domain.Track{domain.TrackCSP})
	env.cloud.SetUnreachable(true)

	for _, op := range []func(context.Context) error{env.sync.Upload, env.sync.DownloadOnLogin, env.sync.MergeSync, env.sync.UploadStats} {
		if err := op(ctx); !errors.Is(err, domain.ErrCloudUnavailable) {
			t.Fatalf("expected ErrCloudUnavailable, got %v", err)
		}
	}

	if !reflect.DeepEqual(env.ledger.Export().Learned[domain.TrackCSP], []int{1}) {
		t.Fatalf("expected local state untouched after failures")
	}
}

func TestMergeSyncReconcilesBothCopies(t *testing.T) {
	env := newSyncEnv(t)
	ctx := context.Background()

	env.ledger.MarkLearned(1, []domain.Track{domain.TrackCSP})
	env.ledger.RecordAnswer(true)

	remote := domain.UserData{
		Stats:     domain.Stats{TotalAnswered: 5, Correct: 3},
		Learned:   map[domain.Track][]int{domain.TrackCSP: {2}},
		SavedIDs:  []int{4},
		UpdatedAt: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
	}
	if err := env.cloud.WriteUserDocument(ctx, "user-1", remote, false); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := env.sync.MergeSync(ctx); err != nil {
		t.Fatalf("merge sync: %v", err)
	}

	exported := env.ledger.Export()
	if !reflect.DeepEqual(exported.Learned[domain.TrackCSP], []int{1, 2}) {
		t.Fatalf("expected union of learned sets locally, got %v", exported.Learned)
	}
	if env.ledger.Stats().TotalAnswered != 5 {
		t.Fatalf("expected counter max applied locally, got %+v", env.ledger.Stats())
	}
	if !reflect.DeepEqual(env.ledger.SavedIDs(), []int{4}) {
		t.Fatalf("expected remote saved IDs merged in, got %v", env.ledger.SavedIDs())
	}

	doc, err := env.cloud.ReadUserDocument(ctx, "user-1")
	if err != nil || doc == nil {
		t.Fatalf("read: %v, %v", doc, err)
	}
	if !reflect.DeepEqual(doc.Learned[domain.TrackCSP], []int{1, 2}) {
		t.Fatalf("expected merged document written back, got %v", doc.Learned)
	}
}

type syncEnv struct {
	ledger       *app.ProgressLedger
	history      *app.HistoryLog
	entitlements *app.EntitlementStore
	cloud        *memory.CloudStore
	auth         *memory.AuthProvider
	sync         *app.SyncService
}

func newSyncEnv(t *testing.T) *syncEnv {
	t.Helper()
	store := memory.NewKVStore()
	logger := newTestLogger()

	history := app.NewHistoryLog(store, logger)
	ledger := app.NewProgressLedger(store, newTestCatalog(), history, logger)
	entitlements := newTestEntitlements(store)
	entitlements.SetStatus(domain.TierFull, domain.PurchaseMetadata{ProductID: app.ProductFull})
	cloud := memory.NewCloudStore()
	auth := memory.NewAuthProvider("user-1", "user@example.com")

	return &syncEnv{
		ledger:       ledger,
		history:      history,
		entitlements: entitlements,
		cloud:        cloud,
		auth:         auth,
		sync:         app.NewSyncService(cloud, auth, ledger, history, entitlements, logger),
	}
}
