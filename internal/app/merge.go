package app

import (
	"sort"

	"github.com/linhnh2711/examen-civique-app-sub000/internal/domain"
)

// Merge strategies for reconciling a local and a remote copy of user
// data. Counters take the element-wise maximum, sets take the union, and
// keyed collections union on their key. All are idempotent, and commutative
// except where the later-timestamp rule breaks symmetric ties.

// MergeStats takes the element-wise maximum of every counter.
func MergeStats(a, b domain.Stats) domain.Stats {
	return domain.Stats{
		TotalAnswered: maxInt(a.TotalAnswered, b.TotalAnswered),
		Correct:       maxInt(a.Correct, b.Correct),
		CurrentStreak: maxInt(a.CurrentStreak, b.CurrentStreak),
		BestStreak:    maxInt(a.BestStreak, b.BestStreak),
	}
}

// MergeIDSets unions two ID slices, deduplicated and sorted ascending.
func MergeIDSets(a, b []int) []int {
	set := make(map[int]struct{}, len(a)+len(b))
	for _, id := range a {
		set[id] = struct{}{}
	}
	for _, id := range b {
		set[id] = struct{}{}
	}
	return sortedIDs(set)
}

// MergeWrongAnswers unions the records by question ID. On collision,
// attempts is the maximum of both sides, the timestamp is the later one,
// and the remaining fields come from whichever side attempted last.
func MergeWrongAnswers(a, b []domain.WrongAnswer) []domain.WrongAnswer {
	byID := make(map[int]domain.WrongAnswer, len(a)+len(b))
	for _, record := range a {
		byID[record.QuestionID] = record
	}
	for _, record := range b {
		existing, ok := byID[record.QuestionID]
		if !ok {
			byID[record.QuestionID] = record
			continue
		}
		winner := existing
		if record.LastAttemptAt.After(existing.LastAttemptAt) {
			winner = record
		}
		winner.Attempts = maxInt(existing.Attempts, record.Attempts)
		byID[record.QuestionID] = winner
	}

	out := make([]domain.WrongAnswer, 0, len(byID))
	for _, record := range byID {
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionID < out[j].QuestionID })
	return out
}

// MergeHistory concatenates both logs, suppressing exact duplicates on
// the (timestamp, track, mode) composite key, and re-sorts newest first.
func MergeHistory(a, b []domain.HistoryEntry) []domain.HistoryEntry {
	type key struct {
		ts    int64
		track domain.Track
		mode  domain.QuizMode
	}
	seen := make(map[key]struct{}, len(a)+len(b))
	out := make([]domain.HistoryEntry, 0, len(a)+len(b))
	for _, entry := range append(append([]domain.HistoryEntry(nil), a...), b...) {
		k := key{ts: entry.Timestamp.UnixNano(), track: entry.Track, mode: entry.Mode}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, entry)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

// MergeUserData applies every strategy to produce one consistent state.
func MergeUserData(local, remote domain.UserData) domain.UserData {
	learned := make(map[domain.Track][]int, len(domain.Tracks))
	for _, track := range domain.Tracks {
		learned[track] = MergeIDSets(local.Learned[track], remote.Learned[track])
	}

	updatedAt := local.UpdatedAt
	if remote.UpdatedAt.After(updatedAt) {
		updatedAt = remote.UpdatedAt
	}

	return domain.UserData{
		Stats:        MergeStats(local.Stats, remote.Stats),
		Learned:      learned,
		WrongAnswers: MergeWrongAnswers(local.WrongAnswers, remote.WrongAnswers),
		SavedIDs:     MergeIDSets(local.SavedIDs, remote.SavedIDs),
		History:      MergeHistory(local.History, remote.History),
		UpdatedAt:    updatedAt,
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
