package http

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/linhnh2711/examen-civique-app-sub000/internal/app"
	"github.com/linhnh2711/examen-civique-app-sub000/internal/domain"
)

// WSHandler drives a practice session over a websocket: the client sends
// answer/bookmark/finish events, the server answers each one and pushes a
// fresh progress snapshot after every mutation.
type WSHandler struct {
	ledger       *app.ProgressLedger
	history      *app.HistoryLog
	entitlements *app.EntitlementStore
	log          logrus.FieldLogger
	upgrader     websocket.Upgrader
}

func NewWSHandler(ledger *app.ProgressLedger, history *app.HistoryLog, entitlements *app.EntitlementStore, log logrus.FieldLogger) *WSHandler {
	return &WSHandler{
		ledger:       ledger,
		history:      history,
		entitlements: entitlements,
		log:          log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID    int            `json:"questionId"`
	SelectedIndex int            `json:"selectedIndex"`
	CorrectIndex  int            `json:"correctIndex"`
	Tags          []domain.Track `json:"tags"`
	Review        bool           `json:"review"`
}

type answerResult struct {
	QuestionID int          `json:"questionId"`
	Correct    bool         `json:"correct"`
	Stats      domain.Stats `json:"stats"`
}

type savedPayload struct {
	QuestionID int `json:"questionId"`
}

type savedResult struct {
	QuestionID int  `json:"questionId"`
	Saved      bool `json:"saved"`
}

type finishPayload struct {
	Mode             domain.QuizMode `json:"mode"`
	Score            int             `json:"score"`
	Total            int             `json:"total"`
	Passed           bool            `json:"passed"`
	TimeSpentSeconds int             `json:"timeSpentSeconds"`
}

type quizStarted struct {
	MaxQuestions   int `json:"maxQuestions"`
	RemainingToday int `json:"remainingToday"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the request and runs the session loop for one track.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	track := domain.Track(r.URL.Query().Get("track"))
	if !track.Valid() {
		http.Error(w, "missing or unknown track", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("ws upgrade failed")
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage[any], 16)
	writerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.WithError(err).Warn("ws write error")
				return
			}
		}
	}()

	h.pushProgress(r, send, track)

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "startQuiz":
			if !h.entitlements.CanStartQuiz() {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "daily quiz limit reached"}}
				continue
			}
			h.entitlements.IncrementDailyCount()
			send <- outboundMessage[any]{Type: "quizStarted", Payload: quizStarted{
				MaxQuestions:   h.entitlements.MaxQuestionsPerQuiz(),
				RemainingToday: h.entitlements.RemainingQuizzesToday(),
			}}
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}}
				continue
			}
			if payload.Review && !h.entitlements.CanAccessReview() {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "review requires the full tier"}}
				continue
			}
			correct := payload.SelectedIndex == payload.CorrectIndex
			tags := payload.Tags
			if len(tags) == 0 {
				tags = []domain.Track{track}
			}
			h.ledger.MarkLearned(payload.QuestionID, tags)
			h.ledger.RecordAnswer(correct)
			if correct {
				if payload.Review {
					h.ledger.ClearWrongAnswer(payload.QuestionID)
				}
			} else {
				h.ledger.RecordWrongAnswer(payload.QuestionID, payload.SelectedIndex, payload.CorrectIndex)
			}
			send <- outboundMessage[any]{Type: "answerResult", Payload: answerResult{
				QuestionID: payload.QuestionID,
				Correct:    correct,
				Stats:      h.ledger.Stats(),
			}}
			h.pushProgress(r, send, track)
		case "toggleSaved":
			var payload savedPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid toggleSaved payload"}}
				continue
			}
			saved := h.ledger.ToggleSaved(payload.QuestionID)
			send <- outboundMessage[any]{Type: "saved", Payload: savedResult{QuestionID: payload.QuestionID, Saved: saved}}
		case "finishQuiz":
			var payload finishPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid finishQuiz payload"}}
				continue
			}
			if payload.Mode == domain.ModeMockExam && !h.entitlements.CanAccessMockExam() {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "mock exam requires the full tier"}}
				continue
			}
			entry := domain.HistoryEntry{
				Track:            track,
				Mode:             payload.Mode,
				Score:            payload.Score,
				Total:            payload.Total,
				Passed:           payload.Passed,
				TimeSpentSeconds: payload.TimeSpentSeconds,
			}
			if err := h.history.Append(entry); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
				continue
			}
			send <- outboundMessage[any]{Type: "quizFinished", Payload: h.ledger.Precision(track)}
			h.pushProgress(r, send, track)
		default:
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
	}

	close(send)
	<-writerDone
}

func (h *WSHandler) pushProgress(r *http.Request, send chan<- outboundMessage[any], track domain.Track) {
	snapshot, err := h.ledger.Progress(r.Context(), track)
	if err != nil {
		send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
		return
	}
	send <- outboundMessage[any]{Type: "progress", Payload: snapshot}
}
