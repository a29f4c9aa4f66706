package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/linhnh2711/examen-civique-app-sub000/internal/app"
	"github.com/linhnh2711/examen-civique-app-sub000/internal/domain"
)

// APIHandler exposes the read-side queries (progress, feature access,
// history) and the explicit re-sync action over plain JSON endpoints.
type APIHandler struct {
	ledger       *app.ProgressLedger
	history      *app.HistoryLog
	entitlements *app.EntitlementStore
	sync         *app.SyncService
	purchases    *app.PurchaseFlow
	log          logrus.FieldLogger
}

func NewAPIHandler(ledger *app.ProgressLedger, history *app.HistoryLog, entitlements *app.EntitlementStore, sync *app.SyncService, purchases *app.PurchaseFlow, log logrus.FieldLogger) *APIHandler {
	return &APIHandler{
		ledger:       ledger,
		history:      history,
		entitlements: entitlements,
		sync:         sync,
		purchases:    purchases,
		log:          log,
	}
}

// Register mounts the API routes on mux.
func (h *APIHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/progress", h.handleProgress)
	mux.HandleFunc("/api/access", h.handleAccess)
	mux.HandleFunc("/api/history", h.handleHistory)
	mux.HandleFunc("/api/sync", h.handleSync)
	mux.HandleFunc("/api/purchase", h.handlePurchase)
	mux.HandleFunc("/api/restore", h.handleRestore)
}

func (h *APIHandler) handleProgress(w http.ResponseWriter, r *http.Request) {
	track := domain.Track(r.URL.Query().Get("track"))
	snapshot, err := h.ledger.Progress(r.Context(), track)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrUnknownTrack) {
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}
	writeJSON(w, struct {
		Progress  domain.ProgressSnapshot `json:"progress"`
		Precision domain.Precision        `json:"precision"`
	}{
		Progress:  snapshot,
		Precision: h.ledger.Precision(track),
	})
}

type accessResponse struct {
	Tier                 string   `json:"tier"`
	MaxQuestionsPerQuiz  int      `json:"maxQuestionsPerQuiz"`
	RemainingToday       int      `json:"remainingQuizzesToday"`
	CanStartQuiz         bool     `json:"canStartQuiz"`
	CanAccessMockExam    bool     `json:"canAccessMockExam"`
	CanAccessReview      bool     `json:"canAccessReview"`
	CanSyncToCloud       bool     `json:"canSyncToCloud"`
	UnlockedThemesOnFree []string `json:"unlockedThemesOnFree"`
}

func (h *APIHandler) handleAccess(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, accessResponse{
		Tier:                 h.entitlements.Tier().String(),
		MaxQuestionsPerQuiz:  h.entitlements.MaxQuestionsPerQuiz(),
		RemainingToday:       h.entitlements.RemainingQuizzesToday(),
		CanStartQuiz:         h.entitlements.CanStartQuiz(),
		CanAccessMockExam:    h.entitlements.CanAccessMockExam(),
		CanAccessReview:      h.entitlements.CanAccessReview(),
		CanSyncToCloud:       h.entitlements.CanSyncToCloud(),
		UnlockedThemesOnFree: app.FreeThemes,
	})
}

func (h *APIHandler) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	writeJSON(w, h.history.Recent(limit))
}

func (h *APIHandler) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := h.sync.MergeSync(r.Context()); err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, domain.ErrSyncNotAllowed) {
			status = http.StatusForbidden
		}
		http.Error(w, err.Error(), status)
		return
	}
	writeJSON(w, map[string]string{"status": "synced"})
}

type purchaseRequest struct {
	ProductID string `json:"productId"`
}

type purchaseResponse struct {
	Approved  bool   `json:"approved"`
	Cancelled bool   `json:"cancelled"`
	Tier      string `json:"tier"`
	Message   string `json:"message,omitempty"`
}

func (h *APIHandler) handlePurchase(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ProductID == "" {
		http.Error(w, "productId required", http.StatusBadRequest)
		return
	}

	result, err := h.purchases.Purchase(r.Context(), req.ProductID)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, domain.ErrUnknownProduct) {
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}
	writeJSON(w, purchaseResponse{
		Approved:  result.State == app.PurchaseApproved,
		Cancelled: result.State == app.PurchaseCancelled,
		Tier:      result.Tier.String(),
		Message:   result.Message,
	})
}

func (h *APIHandler) handleRestore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tier, err := h.purchases.Restore(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, map[string]string{"tier": tier.String()})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
