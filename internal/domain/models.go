package domain

import "time"

// Track identifies one of the two civic-exam variants.
type Track string

const (
	TrackCSP Track = "CSP"
	TrackCR  Track = "CR"
)

// Tracks lists every known exam track.
var Tracks = []Track{TrackCSP, TrackCR}

// Valid reports whether the track is one of the known variants.
func (t Track) Valid() bool {
	return t == TrackCSP || t == TrackCR
}

// Tier is the premium entitlement level. Ordering matters: FREE < BASIC < FULL.
type Tier int

const (
	TierFree Tier = iota
	TierBasic
	TierFull
)

func (t Tier) String() string {
	switch t {
	case TierBasic:
		return "BASIC"
	case TierFull:
		return "FULL"
	default:
		return "FREE"
	}
}

// ParseTier maps a persisted tier label back to a Tier. Unknown values
// fall back to FREE, matching the absent-record rule.
func ParseTier(s string) Tier {
	switch s {
	case "BASIC":
		return TierBasic
	case "FULL":
		return TierFull
	default:
		return TierFree
	}
}

// QuizMode distinguishes practice quizzes from timed mock exams.
type QuizMode string

const (
	ModePractice QuizMode = "Practice"
	ModeMockExam QuizMode = "Examen Blanc"
)

// Question is the catalog's view of a question: a stable ID plus the
// track tags it belongs to. Content (prompt, options) is owned by the
// catalog collaborator and never needed by this core.
type Question struct {
	ID   int     `json:"id"`
	Tags []Track `json:"tags"`
}

// HasTag reports whether the question belongs to the given track.
func (q Question) HasTag(track Track) bool {
	for _, tag := range q.Tags {
		if tag == track {
			return true
		}
	}
	return false
}

// WrongAnswer records the misses for a single question. Attempts is
// always >= 1 and only grows until the record is deleted by a correct
// review answer.
type WrongAnswer struct {
	QuestionID         int       `json:"questionId"`
	LastSelectedOption int       `json:"lastSelectedOption"`
	CorrectOption      int       `json:"correctOption"`
	Attempts           int       `json:"attempts"`
	LastAttemptAt      time.Time `json:"lastAttemptAt"`
}

// HistoryEntry is one completed quiz or mock-exam attempt. Entries are
// immutable once appended.
type HistoryEntry struct {
	Track            Track     `json:"track"`
	Mode             QuizMode  `json:"mode"`
	Score            int       `json:"score"`
	Total            int       `json:"total"`
	Passed           bool      `json:"passed"`
	TimeSpentSeconds int       `json:"timeSpentSeconds,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// PurchaseMetadata captures the platform receipt details attached to a
// tier transition.
type PurchaseMetadata struct {
	ProductID     string    `json:"productId"`
	TransactionID string    `json:"transactionId"`
	Platform      string    `json:"platform"`
	PurchaseDate  time.Time `json:"purchaseDate"`
	VerifiedAt    time.Time `json:"verifiedAt"`
}

// Entitlement is the active premium record for this installation.
type Entitlement struct {
	Tier      Tier             `json:"tier"`
	Signature string           `json:"signature"`
	Metadata  PurchaseMetadata `json:"metadata"`
}

// Stats is the aggregate answer counters kept alongside the ledger sets.
// All four fields merge element-wise by maximum during sync.
type Stats struct {
	TotalAnswered int `json:"totalAnswered"`
	Correct       int `json:"correct"`
	CurrentStreak int `json:"currentStreak"`
	BestStreak    int `json:"bestStreak"`
}

// ProgressSnapshot is the per-track learned ratio against the live catalog.
type ProgressSnapshot struct {
	Track        Track `json:"track"`
	LearnedCount int   `json:"learnedCount"`
	TotalCount   int   `json:"totalCount"`
	Percentage   int   `json:"percentage"`
}

// PrecisionSource tells which kind of attempts the precision figure
// reflects, derived from the most recent history entries.
type PrecisionSource string

const (
	PrecisionPractice PrecisionSource = "practice"
	PrecisionMockExam PrecisionSource = "mock-exam"
)

// Precision is the accuracy figure shown on the stats screen.
type Precision struct {
	Track       Track           `json:"track"`
	Percentage  int             `json:"percentage"`
	Source      PrecisionSource `json:"source"`
	Description string          `json:"description"`
}

// UserData is the full sync payload: everything the ledger and history
// log persist, in the JSON shape written to the cloud document.
type UserData struct {
	Stats        Stats           `json:"stats"`
	Learned      map[Track][]int `json:"learned"`
	WrongAnswers []WrongAnswer   `json:"wrongAnswers"`
	SavedIDs     []int           `json:"savedIds"`
	History      []HistoryEntry  `json:"history"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}
