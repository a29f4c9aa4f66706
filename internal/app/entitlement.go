package app

import (
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/linhnh2711/examen-civique-app-sub000/internal/domain"
)

// Feature limits per tier. FULL has no quiz cap and no daily cap.
const (
	FreeMaxQuestionsPerQuiz = 10
	PaidMaxQuestionsPerQuiz = 40
	FreeFlashcardLimit      = 30
	FreeDailyQuizLimit      = 3
	BasicDailyQuizLimit     = 10
)

// FreeThemes are the theme names unlocked for everyone, including FREE.
var FreeThemes = []string{
	"Principes et valeurs de la République",
	"Institutions de la République",
}

const (
	integrityVersion = 2
	dateLayout       = "2006-01-02"
)

// computeIntegrityTag derives the tamper-deterrence tag written next to a
// non-FREE tier. It is a plain FNV-1a checksum: enough to catch a casually
// edited value, deliberately not a security boundary. The platform's
// purchase ledger stays the only real authority.
func computeIntegrityTag(tier domain.Tier, salt string, version int) string {
	h := fnv.New32a()
	fmt.Fprintf(h, "%s|%s|v%d", tier.String(), salt, version)
	return fmt.Sprintf("%08x", h.Sum32())
}

// legacyIntegrityTag is the v1 format: a byte sum over tier+salt, kept so
// installations that wrote it before the format change still verify.
func legacyIntegrityTag(tier domain.Tier, salt string) string {
	var sum uint32
	for _, b := range []byte(tier.String() + salt) {
		sum += uint32(b)
	}
	return fmt.Sprintf("%06x", sum)
}

// integrityVerifiers maps a signature version to its verify function.
// Format changes add an entry here instead of inline special-casing.
var integrityVerifiers = map[int]func(tier domain.Tier, salt, tag string) bool{
	1: func(tier domain.Tier, salt, tag string) bool {
		return tag == legacyIntegrityTag(tier, salt)
	},
	2: func(tier domain.Tier, salt, tag string) bool {
		return tag == computeIntegrityTag(tier, salt, 2)
	},
}

// parseSignature splits a persisted "version:tag" signature. Bare tags
// predate the versioned format and are treated as v1.
func parseSignature(signature string) (int, string) {
	before, after, found := strings.Cut(signature, ":")
	if !found {
		return 1, signature
	}
	version, err := strconv.Atoi(before)
	if err != nil {
		return 1, signature
	}
	return version, after
}

// EntitlementStore is the source of truth for the premium tier and the
// feature limits it unlocks. Tier transitions happen only through
// SetStatus (purchase approval / restore confirmation) and ClearStatus
// (authoritative "nothing owned" restore answer); nothing downgrades
// silently, because non-consumable purchases are permanent and network
// flakiness must never lock out a paying user.
type EntitlementStore struct {
	store KeyValueStore
	salt  string
	log   logrus.FieldLogger
	clock func() time.Time

	mu              sync.RWMutex
	current         domain.Entitlement
	sessionVerified bool
	products        []Product
	dailyCount      int
	dailyDate       string
}

func NewEntitlementStore(store KeyValueStore, salt string, log logrus.FieldLogger) *EntitlementStore {
	e := &EntitlementStore{
		store: store,
		salt:  salt,
		log:   log,
		clock: time.Now,
	}
	e.load()
	return e
}

// NewEntitlementStoreWithClock is test-only for deterministic dates.
func NewEntitlementStoreWithClock(store KeyValueStore, salt string, log logrus.FieldLogger, now func() time.Time) *EntitlementStore {
	e := &EntitlementStore{
		store: store,
		salt:  salt,
		log:   log,
		clock: now,
	}
	e.load()
	return e
}

func (e *EntitlementStore) load() {
	e.current.Tier = domain.ParseTier(loadString(e.store, e.log, keyTier))
	e.current.Signature = loadString(e.store, e.log, keySignature)
	loadJSON(e.store, e.log, keyPurchaseMeta, &e.current.Metadata)

	if raw := loadString(e.store, e.log, keyDailyCount); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			e.dailyCount = n
		}
	}
	e.dailyDate = loadString(e.store, e.log, keyDailyDate)

	e.verifyLocked()
}

// Tier returns the current entitlement level. Absence of a persisted
// record reads as FREE.
func (e *EntitlementStore) Tier() domain.Tier {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.current.Tier
}

// Entitlement returns a copy of the active record.
func (e *EntitlementStore) Entitlement() domain.Entitlement {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.current
}

// SetStatus records a tier unlocked by a purchase-approval or a restore
// confirmation, with its companion integrity tag.
func (e *EntitlementStore) SetStatus(tier domain.Tier, meta domain.PurchaseMetadata) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if meta.VerifiedAt.IsZero() {
		meta.VerifiedAt = e.clock()
	}
	signature := ""
	if tier != domain.TierFree {
		signature = fmt.Sprintf("%d:%s", integrityVersion, computeIntegrityTag(tier, e.salt, integrityVersion))
	}
	e.current = domain.Entitlement{Tier: tier, Signature: signature, Metadata: meta}
	e.sessionVerified = true

	storeString(e.store, e.log, keyTier, tier.String())
	storeString(e.store, e.log, keySignature, signature)
	storeJSON(e.store, e.log, keyPurchaseMeta, meta)
}

// ClearStatus reverts the installation to FREE. Only an explicit restore
// that came back with an authoritative "no purchases owned" answer may
// call this; it is the sole sanctioned downgrade path.
func (e *EntitlementStore) ClearStatus() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.current = domain.Entitlement{Tier: domain.TierFree}
	for _, key := range []string{keyTier, keySignature, keyPurchaseMeta} {
		if err := e.store.Remove(key); err != nil {
			e.log.WithError(err).WithField("key", key).Warn("storage remove failed clearing entitlement")
		}
	}
}

// VerifyIntegrity recomputes the tag for the cached tier and compares.
// A mismatch is logged and reported but never revokes access.
func (e *EntitlementStore) VerifyIntegrity() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.verifyLocked()
}

func (e *EntitlementStore) verifyLocked() bool {
	if e.current.Tier == domain.TierFree {
		return true
	}
	version, tag := parseSignature(e.current.Signature)
	verify, ok := integrityVerifiers[version]
	if !ok || !verify(e.current.Tier, e.salt, tag) {
		e.log.WithFields(logrus.Fields{
			"tier":    e.current.Tier.String(),
			"version": version,
		}).Warn("entitlement signature mismatch, keeping cached tier")
		return false
	}
	return true
}

// MarkSessionVerified notes that the platform store confirmed ownership
// during this app session.
func (e *EntitlementStore) MarkSessionVerified() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sessionVerified = true
}

// SessionVerified reports whether ownership was confirmed this session.
func (e *EntitlementStore) SessionVerified() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sessionVerified
}

// CacheProducts keeps the store's product list for the session.
func (e *EntitlementStore) CacheProducts(products []Product) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.products = append([]Product(nil), products...)
}

// CachedProducts returns the product list cached this session.
func (e *EntitlementStore) CachedProducts() []Product {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]Product(nil), e.products...)
}

// ResetSession drops session-scoped state on logout. The persisted tier
// is untouched.
func (e *EntitlementStore) ResetSession() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sessionVerified = false
	e.products = nil
}

// MaxQuestionsPerQuiz caps practice quiz length by tier.
func (e *EntitlementStore) MaxQuestionsPerQuiz() int {
	if e.Tier() == domain.TierFree {
		return FreeMaxQuestionsPerQuiz
	}
	return PaidMaxQuestionsPerQuiz
}

// CanAccessTheme reports whether the theme is unlocked: always for the
// fixed free list, unconditionally at BASIC and above.
func (e *EntitlementStore) CanAccessTheme(name string) bool {
	if e.Tier() >= domain.TierBasic {
		return true
	}
	for _, theme := range FreeThemes {
		if theme == name {
			return true
		}
	}
	return false
}

// CanAccessFlashcardIndex reports whether the 0-indexed card is viewable:
// FREE sees the first FreeFlashcardLimit cards, paid tiers all of them.
func (e *EntitlementStore) CanAccessFlashcardIndex(i int) bool {
	if e.Tier() >= domain.TierBasic {
		return true
	}
	return i >= 0 && i < FreeFlashcardLimit
}

// CanAccessMockExam gates the timed examen blanc mode to FULL.
func (e *EntitlementStore) CanAccessMockExam() bool {
	return e.Tier() == domain.TierFull
}

// CanAccessReview gates wrong-answer review to FULL.
func (e *EntitlementStore) CanAccessReview() bool {
	return e.Tier() == domain.TierFull
}

// CanSyncToCloud gates cloud sync to FULL.
func (e *EntitlementStore) CanSyncToCloud() bool {
	return e.Tier() == domain.TierFull
}

// CanStartQuiz reports whether another quiz may start today.
func (e *EntitlementStore) CanStartQuiz() bool {
	remaining := e.RemainingQuizzesToday()
	return remaining != 0
}

// RemainingQuizzesToday returns how many quizzes are left in the daily
// allowance, or -1 for the unbounded FULL tier. The counter reset is
// lazy: a stored date other than today means a fresh allowance.
func (e *EntitlementStore) RemainingQuizzesToday() int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.current.Tier == domain.TierFull {
		return -1
	}
	limit := FreeDailyQuizLimit
	if e.current.Tier == domain.TierBasic {
		limit = BasicDailyQuizLimit
	}
	if e.dailyDate != e.clock().Format(dateLayout) {
		return limit
	}
	if remaining := limit - e.dailyCount; remaining > 0 {
		return remaining
	}
	return 0
}

// IncrementDailyCount bumps the daily quiz counter, resetting it first
// when the stored date is not today.
func (e *EntitlementStore) IncrementDailyCount() {
	e.mu.Lock()
	defer e.mu.Unlock()

	today := e.clock().Format(dateLayout)
	if e.dailyDate != today {
		e.dailyDate = today
		e.dailyCount = 1
	} else {
		e.dailyCount++
	}
	storeString(e.store, e.log, keyDailyCount, strconv.Itoa(e.dailyCount))
	storeString(e.store, e.log, keyDailyDate, e.dailyDate)
}
