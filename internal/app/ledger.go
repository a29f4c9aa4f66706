package app

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/linhnh2711/examen-civique-app-sub000/internal/domain"
)

// QuestionCatalog exposes the live question pool. The ledger only needs
// per-track sizes; content stays with the catalog collaborator.
type QuestionCatalog interface {
	CountQuestions(ctx context.Context, track domain.Track) (int, error)
}

// ProgressLedger tracks which questions have been learned, missed, and
// bookmarked, plus the aggregate answer counters. State is loaded once
// from the key-value store and persisted best-effort after each mutation;
// a failing store degrades to in-memory operation.
type ProgressLedger struct {
	store   KeyValueStore
	catalog QuestionCatalog
	history *HistoryLog
	log     logrus.FieldLogger
	clock   func() time.Time

	mu      sync.RWMutex
	learned map[domain.Track]map[int]struct{}
	wrong   map[int]*domain.WrongAnswer
	saved   map[int]struct{}
	stats   domain.Stats
}

func NewProgressLedger(store KeyValueStore, catalog QuestionCatalog, history *HistoryLog, log logrus.FieldLogger) *ProgressLedger {
	l := &ProgressLedger{
		store:   store,
		catalog: catalog,
		history: history,
		log:     log,
		clock:   time.Now,
		learned: make(map[domain.Track]map[int]struct{}),
		wrong:   make(map[int]*domain.WrongAnswer),
		saved:   make(map[int]struct{}),
	}
	for _, track := range domain.Tracks {
		l.learned[track] = make(map[int]struct{})
	}
	l.load()
	return l
}

// NewProgressLedgerWithClock is test-only for deterministic timestamps.
func NewProgressLedgerWithClock(store KeyValueStore, catalog QuestionCatalog, history *HistoryLog, log logrus.FieldLogger, now func() time.Time) *ProgressLedger {
	l := NewProgressLedger(store, catalog, history, log)
	l.clock = now
	return l
}

func (l *ProgressLedger) load() {
	for _, track := range domain.Tracks {
		var ids []int
		loadJSON(l.store, l.log, learnedKey(track), &ids)
		// Collapse duplicates from legacy payloads; the set invariant is
		// enforced on every insert from here on.
		for _, id := range ids {
			l.learned[track][id] = struct{}{}
		}
	}

	var wrong []domain.WrongAnswer
	loadJSON(l.store, l.log, keyWrongAnswers, &wrong)
	for i := range wrong {
		if wrong[i].Attempts < 1 {
			wrong[i].Attempts = 1
		}
		record := wrong[i]
		l.wrong[record.QuestionID] = &record
	}

	var saved []int
	loadJSON(l.store, l.log, keySaved, &saved)
	for _, id := range saved {
		l.saved[id] = struct{}{}
	}

	loadJSON(l.store, l.log, keyStats, &l.stats)
}

// MarkLearned adds the question to the learned set of every listed track.
// Idempotent; unknown tracks are skipped. Validity of the ID against the
// catalog is the caller's concern.
func (l *ProgressLedger) MarkLearned(questionID int, tracks []domain.Track) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, track := range tracks {
		set, ok := l.learned[track]
		if !ok {
			continue
		}
		if _, exists := set[questionID]; exists {
			continue
		}
		set[questionID] = struct{}{}
		storeJSON(l.store, l.log, learnedKey(track), sortedIDs(set))
	}
}

// RecordWrongAnswer creates or bumps the miss record for the question.
// The learned set is untouched; callers mark learned separately.
func (l *ProgressLedger) RecordWrongAnswer(questionID, selectedIndex, correctIndex int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if record, ok := l.wrong[questionID]; ok {
		record.Attempts++
		record.LastSelectedOption = selectedIndex
		record.LastAttemptAt = now
	} else {
		l.wrong[questionID] = &domain.WrongAnswer{
			QuestionID:         questionID,
			LastSelectedOption: selectedIndex,
			CorrectOption:      correctIndex,
			Attempts:           1,
			LastAttemptAt:      now,
		}
	}
	l.persistWrongLocked()
}

// ClearWrongAnswer drops the miss record after a correct review answer.
// No-op when absent.
func (l *ProgressLedger) ClearWrongAnswer(questionID int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.wrong[questionID]; !ok {
		return
	}
	delete(l.wrong, questionID)
	l.persistWrongLocked()
}

// ToggleSaved flips the bookmark and returns the resulting membership.
func (l *ProgressLedger) ToggleSaved(questionID int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, present := l.saved[questionID]
	if present {
		delete(l.saved, questionID)
	} else {
		l.saved[questionID] = struct{}{}
	}
	storeJSON(l.store, l.log, keySaved, sortedIDs(l.saved))
	return !present
}

// SavedIDs returns the bookmarked question IDs in ascending order.
func (l *ProgressLedger) SavedIDs() []int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return sortedIDs(l.saved)
}

// WrongAnswers returns the current miss records ordered by question ID.
func (l *ProgressLedger) WrongAnswers() []domain.WrongAnswer {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.wrongSliceLocked()
}

// RecordAnswer updates the aggregate counters for one answered question.
func (l *ProgressLedger) RecordAnswer(correct bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.stats.TotalAnswered++
	if correct {
		l.stats.Correct++
		l.stats.CurrentStreak++
		if l.stats.CurrentStreak > l.stats.BestStreak {
			l.stats.BestStreak = l.stats.CurrentStreak
		}
	} else {
		l.stats.CurrentStreak = 0
	}
	storeJSON(l.store, l.log, keyStats, l.stats)
}

// Stats returns a copy of the aggregate counters.
func (l *ProgressLedger) Stats() domain.Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.stats
}

// Progress computes the learned ratio against the live catalog size.
// Percentage is 0 when the track has no questions.
func (l *ProgressLedger) Progress(ctx context.Context, track domain.Track) (domain.ProgressSnapshot, error) {
	if !track.Valid() {
		return domain.ProgressSnapshot{}, domain.ErrUnknownTrack
	}

	total, err := l.catalog.CountQuestions(ctx, track)
	if err != nil {
		return domain.ProgressSnapshot{}, fmt.Errorf("count questions: %w", err)
	}

	l.mu.RLock()
	learned := len(l.learned[track])
	l.mu.RUnlock()

	percentage := 0
	if total > 0 {
		percentage = int(math.Round(float64(learned) / float64(total) * 100))
	}
	return domain.ProgressSnapshot{
		Track:        track,
		LearnedCount: learned,
		TotalCount:   total,
		Percentage:   percentage,
	}, nil
}

// Precision returns the accuracy figure: correct / (correct + distinct
// wrong answers). The source flag reflects whether the user's most recent
// attempt on the track was a mock exam or a practice quiz.
func (l *ProgressLedger) Precision(track domain.Track) domain.Precision {
	l.mu.RLock()
	correct := l.stats.Correct
	distinctWrong := len(l.wrong)
	l.mu.RUnlock()

	percentage := 0
	if correct+distinctWrong > 0 {
		percentage = int(math.Round(float64(correct) / float64(correct+distinctWrong) * 100))
	}

	source := domain.PrecisionPractice
	description := "Précision calculée sur vos quiz d'entraînement."
	for _, entry := range l.history.Recent(10) {
		if entry.Track != track {
			continue
		}
		if entry.Mode == domain.ModeMockExam {
			source = domain.PrecisionMockExam
			description = "Précision calculée sur vos examens blancs récents."
		}
		break
	}

	return domain.Precision{
		Track:       track,
		Percentage:  percentage,
		Source:      source,
		Description: description,
	}
}

// Reset wipes every set and counter. This is the only shrinking path for
// the learned sets.
func (l *ProgressLedger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, track := range domain.Tracks {
		l.learned[track] = make(map[int]struct{})
		if err := l.store.Remove(learnedKey(track)); err != nil {
			l.log.WithError(err).Warn("storage remove failed during reset")
		}
	}
	l.wrong = make(map[int]*domain.WrongAnswer)
	l.saved = make(map[int]struct{})
	l.stats = domain.Stats{}
	for _, key := range []string{keyWrongAnswers, keySaved, keyStats} {
		if err := l.store.Remove(key); err != nil {
			l.log.WithError(err).WithField("key", key).Warn("storage remove failed during reset")
		}
	}
}

// Export snapshots the ledger-owned portion of the sync payload. History
// is attached by the sync service, which owns the full document.
func (l *ProgressLedger) Export() domain.UserData {
	l.mu.RLock()
	defer l.mu.RUnlock()

	learned := make(map[domain.Track][]int, len(l.learned))
	for track, set := range l.learned {
		learned[track] = sortedIDs(set)
	}
	return domain.UserData{
		Stats:        l.stats,
		Learned:      learned,
		WrongAnswers: l.wrongSliceLocked(),
		SavedIDs:     sortedIDs(l.saved),
	}
}

// Import replaces the ledger state wholesale and persists it. Used only
// by the login-time cloud restore.
func (l *ProgressLedger) Import(data domain.UserData) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, track := range domain.Tracks {
		set := make(map[int]struct{}, len(data.Learned[track]))
		for _, id := range data.Learned[track] {
			set[id] = struct{}{}
		}
		l.learned[track] = set
		storeJSON(l.store, l.log, learnedKey(track), sortedIDs(set))
	}

	l.wrong = make(map[int]*domain.WrongAnswer, len(data.WrongAnswers))
	for i := range data.WrongAnswers {
		record := data.WrongAnswers[i]
		if record.Attempts < 1 {
			record.Attempts = 1
		}
		l.wrong[record.QuestionID] = &record
	}
	l.persistWrongLocked()

	l.saved = make(map[int]struct{}, len(data.SavedIDs))
	for _, id := range data.SavedIDs {
		l.saved[id] = struct{}{}
	}
	storeJSON(l.store, l.log, keySaved, sortedIDs(l.saved))

	l.stats = data.Stats
	storeJSON(l.store, l.log, keyStats, l.stats)
}

func (l *ProgressLedger) persistWrongLocked() {
	storeJSON(l.store, l.log, keyWrongAnswers, l.wrongSliceLocked())
}

func (l *ProgressLedger) wrongSliceLocked() []domain.WrongAnswer {
	records := make([]domain.WrongAnswer, 0, len(l.wrong))
	for _, record := range l.wrong {
		records = append(records, *record)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].QuestionID < records[j].QuestionID })
	return records
}

func sortedIDs(set map[int]struct{}) []int {
	ids := make([]int, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
