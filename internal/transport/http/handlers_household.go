package httptransport

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"hearth/internal/transport/httputil"
	dErrors "hearth/pkg/domain-errors"

	"github.com/google/uuid"
)

// Item is a household record: a bill, chore, shopping entry, or meal plan.
type Item struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Name      string    `json:"name"`
	Amount    float64   `json:"amount,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// HouseholdHandler serves the household resource endpoints behind the
// gateway. Records are held in memory per subject; durable storage is owned
// by a separate service.
type HouseholdHandler struct {
	mu    sync.RWMutex
	items map[string][]Item // keyed by subject + "/" + kind
}

func NewHouseholdHandler() *HouseholdHandler {
	return &HouseholdHandler{
		items: make(map[string][]Item),
	}
}

// HandleList returns the subject's items of the given kind.
func (h *HouseholdHandler) HandleList(kind string) func(w http.ResponseWriter, r *http.Request, subjectID string) {
	return func(w http.ResponseWriter, r *http.Request, subjectID string) {
		h.mu.RLock()
		items := append([]Item(nil), h.items[subjectID+"/"+kind]...)
		h.mu.RUnlock()

		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"items": items,
			"count": len(items),
		})
	}
}

// HandleCreate appends an item of the given kind for the subject.
func (h *HouseholdHandler) HandleCreate(kind string) func(w http.ResponseWriter, r *http.Request, subjectID string) {
	return func(w http.ResponseWriter, r *http.Request, subjectID string) {
		var req struct {
			Name   string  `json:"name"`
			Amount float64 `json:"amount"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
			return
		}
		if req.Name == "" {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "name is required"))
			return
		}

		item := Item{
			ID:        uuid.NewString(),
			Kind:      kind,
			Name:      req.Name,
			Amount:    req.Amount,
			CreatedAt: time.Now().UTC(),
		}

		h.mu.Lock()
		key := subjectID + "/" + kind
		h.items[key] = append(h.items[key], item)
		h.mu.Unlock()

		httputil.WriteJSON(w, http.StatusCreated, item)
	}
}

// HandleAnalytics summarizes the subject's records across all kinds.
func (h *HouseholdHandler) HandleAnalytics(kinds []string) func(w http.ResponseWriter, r *http.Request, subjectID string) {
	return func(w http.ResponseWriter, r *http.Request, subjectID string) {
		summary := make(map[string]int, len(kinds))

		h.mu.RLock()
		for _, kind := range kinds {
			summary[kind] = len(h.items[subjectID+"/"+kind])
		}
		h.mu.RUnlock()

		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"counts": summary,
		})
	}
}
