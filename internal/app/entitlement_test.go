package app_test

import (
	"testing"
	"time"

	"github.com/linhnh2711/examen-civique-app-sub000/internal/app"
	"github.com/linhnh2711/examen-civique-app-sub000/internal/domain"
	"github.com/linhnh2711/examen-civique-app-sub000/internal/infra/memory"
)

func TestFreshInstallIsFree(t *testing.T) {
	store := newTestEntitlements(memory.NewKVStore())

	if store.Tier() != domain.TierFree {
		t.Fatalf("expected FREE on fresh install, got %s", store.Tier())
	}
	if store.CanAccessMockExam() || store.CanAccessReview() || store.CanSyncToCloud() {
		t.Fatalf("expected FULL-only gates closed on FREE")
	}
	if store.MaxQuestionsPerQuiz() != app.FreeMaxQuestionsPerQuiz {
		t.Fatalf("expected free quiz cap, got %d", store.MaxQuestionsPerQuiz())
	}
}

func TestSetStatusUnlocksAndPersists(t *testing.T) {
	kv := memory.NewKVStore()
	store := newTestEntitlements(kv)

	store.SetStatus(domain.TierBasic, domain.PurchaseMetadata{
		ProductID:     app.ProductBasic,
		TransactionID: "tx-1",
		Platform:      "ios",
	})

	if store.Tier() != domain.TierBasic {
		t.Fatalf("expected BASIC, got %s", store.Tier())
	}
	if !store.VerifyIntegrity() {
		t.Fatalf("expected freshly written signature to verify")
	}
	if !store.SessionVerified() {
		t.Fatalf("expected session marked verified after SetStatus")
	}

	// Survives a reload through the persisted keys.
	reloaded := newTestEntitlements(kv)
	if reloaded.Tier() != domain.TierBasic {
		t.Fatalf("expected BASIC after reload, got %s", reloaded.Tier())
	}
	if reloaded.Entitlement().Metadata.TransactionID != "tx-1" {
		t.Fatalf("expected purchase metadata to survive reload")
	}
}

func TestTamperedSignatureLogsButNeverRevokes(t *testing.T) {
	kv := memory.NewKVStore()
	store := newTestEntitlements(kv)
	store.SetStatus(domain.TierBasic, domain.PurchaseMetadata{ProductID: app.ProductBasic})

	// Someone edits the persisted tier by hand.
	_ = kv.Set("premium_tier", "FULL")
	reloaded := newTestEntitlements(kv)

	if reloaded.VerifyIntegrity() {
		t.Fatalf("expected integrity mismatch for tampered tier")
	}
	if reloaded.Tier() != domain.TierFull {
		t.Fatalf("expected cached tier kept despite mismatch, got %s", reloaded.Tier())
	}
}

func TestClearStatusIsTheOnlyDowngrade(t *testing.T) {
	kv := memory.NewKVStore()
	store := newTestEntitlements(kv)
	store.SetStatus(domain.TierFull, domain.PurchaseMetadata{ProductID: app.ProductFull})

	store.ClearStatus()
	if store.Tier() != domain.TierFree {
		t.Fatalf("expected FREE after ClearStatus, got %s", store.Tier())
	}

	reloaded := newTestEntitlements(kv)
	if reloaded.Tier() != domain.TierFree {
		t.Fatalf("expected cleared keys, got %s", reloaded.Tier())
	}
}

func TestThemeGate(t *testing.T) {
	store := newTestEntitlements(memory.NewKVStore())

	if !store.CanAccessTheme(app.FreeThemes[0]) {
		t.Fatalf("expected free theme unlocked on FREE")
	}
	if store.CanAccessTheme("Histoire de France") {
		t.Fatalf("expected locked theme on FREE")
	}

	store.SetStatus(domain.TierBasic, domain.PurchaseMetadata{ProductID: app.ProductBasic})
	if !store.CanAccessTheme("Histoire de France") {
		t.Fatalf("expected every theme unlocked on BASIC")
	}
}

func TestFlashcardGate(t *testing.T) {
	store := newTestEntitlements(memory.NewKVStore())

	if !store.CanAccessFlashcardIndex(0) || !store.CanAccessFlashcardIndex(app.FreeFlashcardLimit - 1) {
		t.Fatalf("expected first %d cards free", app.FreeFlashcardLimit)
	}
	if store.CanAccessFlashcardIndex(app.FreeFlashcardLimit) {
		t.Fatalf("expected card %d locked on FREE", app.FreeFlashcardLimit)
	}

	store.SetStatus(domain.TierBasic, domain.PurchaseMetadata{ProductID: app.ProductBasic})
	if !store.CanAccessFlashcardIndex(500) {
		t.Fatalf("expected every card unlocked on BASIC")
	}
}

func TestMockExamRequiresFull(t *testing.T) {
	store := newTestEntitlements(memory.NewKVStore())

	store.SetStatus(domain.TierBasic, domain.PurchaseMetadata{ProductID: app.ProductBasic})
	if store.CanAccessMockExam() {
		t.Fatalf("expected mock exam locked on BASIC")
	}
	store.SetStatus(domain.TierFull, domain.PurchaseMetadata{ProductID: app.ProductFull})
	if !store.CanAccessMockExam() || !store.CanAccessReview() || !store.CanSyncToCloud() {
		t.Fatalf("expected FULL gates open")
	}
}

func TestDailyCounterLazyReset(t *testing.T) {
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := app.NewEntitlementStoreWithClock(memory.NewKVStore(), "salt", newTestLogger(), clock)

	if store.RemainingQuizzesToday() != app.FreeDailyQuizLimit {
		t.Fatalf("expected full allowance, got %d", store.RemainingQuizzesToday())
	}

	for i := 0; i < app.FreeDailyQuizLimit; i++ {
		if !store.CanStartQuiz() {
			t.Fatalf("expected quiz %d allowed", i+1)
		}
		store.IncrementDailyCount()
	}
	if store.CanStartQuiz() {
		t.Fatalf("expected daily limit reached")
	}
	if store.RemainingQuizzesToday() != 0 {
		t.Fatalf("expected 0 remaining, got %d", store.RemainingQuizzesToday())
	}

	// The reset is lazy: advancing the clock a day restores the allowance
	// without any background job.
	now = now.Add(24 * time.Hour)
	if store.RemainingQuizzesToday() != app.FreeDailyQuizLimit {
		t.Fatalf("expected fresh allowance next day, got %d", store.RemainingQuizzesToday())
	}
	store.IncrementDailyCount()
	if store.RemainingQuizzesToday() != app.FreeDailyQuizLimit-1 {
		t.Fatalf("expected count restarted at 1, remaining %d", store.RemainingQuizzesToday())
	}
}

func TestFullTierIsUnbounded(t *testing.T) {
	store := newTestEntitlements(memory.NewKVStore())
	store.SetStatus(domain.TierFull, domain.PurchaseMetadata{ProductID: app.ProductFull})

	for i := 0; i < 50; i++ {
		store.IncrementDailyCount()
	}
	if store.RemainingQuizzesToday() != -1 {
		t.Fatalf("expected unbounded FULL allowance, got %d", store.RemainingQuizzesToday())
	}
	if !store.CanStartQuiz() {
		t.Fatalf("expected FULL can always start")
	}
}

func TestResetSessionKeepsPersistedTier(t *testing.T) {
	store := newTestEntitlements(memory.NewKVStore())
	store.SetStatus(domain.TierBasic, domain.PurchaseMetadata{ProductID: app.ProductBasic})
	store.CacheProducts(app.Products)

	store.ResetSession()
	if store.SessionVerified() {
		t.Fatalf("expected session flag cleared on logout")
	}
	if len(store.CachedProducts()) != 0 {
		t.Fatalf("expected product cache cleared on logout")
	}
	if store.Tier() != domain.TierBasic {
		t.Fatalf("expected tier untouched by logout, got %s", store.Tier())
	}
}

func newTestEntitlements(kv app.KeyValueStore) *app.EntitlementStore {
	return app.NewEntitlementStore(kv, "salt", newTestLogger())
}
