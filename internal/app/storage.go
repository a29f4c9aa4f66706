package app

import (
	"encoding/json"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/linhnh2711/examen-civique-app-sub000/internal/domain"
)

// KeyValueStore is the durable string-keyed store backing all ledger,
// history, and entitlement state. Implementations live in internal/infra.
type KeyValueStore interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Remove(key string) error
}

// Fixed persistence keys. Every value is either a plain string or a JSON
// blob; the shapes are part of the stable on-disk contract.
const (
	keyStats        = "user_stats"
	keyLearnedBase  = "learned_questions_"
	keyWrongAnswers = "wrong_answers"
	keySaved        = "saved_questions"
	keyHistory      = "quiz_history"
	keyTier         = "premium_tier"
	keySignature    = "premium_signature"
	keyPurchaseMeta = "premium_metadata"
	keyDailyCount   = "daily_quiz_count"
	keyDailyDate    = "daily_quiz_date"
)

func learnedKey(track domain.Track) string {
	return keyLearnedBase + strings.ToLower(string(track))
}

// loadJSON reads and decodes the blob under key into dst. An absent key
// or malformed payload leaves dst untouched: callers start from their
// empty default either way. Storage failures are logged, never surfaced.
func loadJSON(store KeyValueStore, log logrus.FieldLogger, key string, dst interface{}) {
	raw, ok, err := store.Get(key)
	if err != nil {
		log.WithError(err).WithField("key", key).Warn("storage read failed, starting empty")
		return
	}
	if !ok || raw == "" {
		return
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		log.WithError(err).WithField("key", key).Warn("malformed persisted data, starting empty")
	}
}

// storeJSON encodes v and writes it under key. Failures degrade to
// in-memory operation for this call: the error is logged and swallowed.
func storeJSON(store KeyValueStore, log logrus.FieldLogger, key string, v interface{}) {
	raw, err := json.Marshal(v)
	if err != nil {
		log.WithError(err).WithField("key", key).Warn("encode failed, keeping in-memory state only")
		return
	}
	if err := store.Set(key, string(raw)); err != nil {
		log.WithError(err).WithField("key", key).Warn("storage write failed, keeping in-memory state only")
	}
}

// storeString writes a plain (non-JSON) value, with the same degrade-and-log
// policy as storeJSON.
func storeString(store KeyValueStore, log logrus.FieldLogger, key, value string) {
	if err := store.Set(key, value); err != nil {
		log.WithError(err).WithField("key", key).Warn("storage write failed, keeping in-memory state only")
	}
}

func loadString(store KeyValueStore, log logrus.FieldLogger, key string) string {
	raw, ok, err := store.Get(key)
	if err != nil {
		log.WithError(err).WithField("key", key).Warn("storage read failed, starting empty")
		return ""
	}
	if !ok {
		return ""
	}
	return raw
}
