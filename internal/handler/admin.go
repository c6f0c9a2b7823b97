package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dukerupert/familyq/internal/model"
	"github.com/dukerupert/familyq/internal/question"
	"github.com/dukerupert/familyq/internal/scheduler"
	"github.com/dukerupert/familyq/internal/store"
)

// Sweeper runs one daily assignment pass. *scheduler.Scheduler satisfies it.
type Sweeper interface {
	RunOnce(ctx context.Context) scheduler.Report
}

type AdminHandler struct {
	catalog  *store.CatalogStore
	assigner *question.Assigner
	sweeper  Sweeper
	logger   *slog.Logger
}

func NewAdminHandler(catalog *store.CatalogStore, assigner *question.Assigner, sweeper Sweeper, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{catalog: catalog, assigner: assigner, sweeper: sweeper, logger: logger}
}

func (h *AdminHandler) ListQuestions(w http.ResponseWriter, r *http.Request) {
	questions, err := h.catalog.List(r.Context())
	if err != nil {
		writeError(w, h.logger, "list catalog", err)
		return
	}
	if questions == nil {
		questions = []model.CatalogQuestion{}
	}
	writeJSON(w, http.StatusOK, questions)
}

type catalogRequest struct {
	Text     string `json:"text"`
	Position *int   `json:"position"`
}

// CreateQuestion inserts a catalog question. A position shifts the questions
// at and after it; no position appends.
func (h *AdminHandler) CreateQuestion(w http.ResponseWriter, r *http.Request) {
	var req catalogRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "", "invalid JSON")
		return
	}

	q, err := h.catalog.Insert(r.Context(), req.Text, req.Position)
	if err != nil {
		writeError(w, h.logger, "add catalog question", err)
		return
	}
	h.logger.Info("catalog question added", "question_id", q.ID, "order_index", q.OrderIndex)
	writeJSON(w, http.StatusCreated, q)
}

func (h *AdminHandler) DeleteQuestion(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "", "invalid id")
		return
	}

	if err := h.catalog.DeleteIfUnused(r.Context(), id); err != nil {
		writeError(w, h.logger, "delete catalog question", err)
		return
	}
	h.logger.Info("catalog question deleted", "question_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// Refresh discards the family's open entry and its answers and assigns the
// next question.
func (h *AdminHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	h.force(w, r, "refresh", h.assigner.Refresh)
}

// Skip closes the family's open entry without an insight and assigns the next
// question.
func (h *AdminHandler) Skip(w http.ResponseWriter, r *http.Request) {
	h.force(w, r, "skip", h.assigner.Skip)
}

func (h *AdminHandler) force(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, int64) (*model.FamilyQuestion, error)) {
	familyID, err := parseIDParam(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "", "invalid id")
		return
	}

	fq, err := fn(r.Context(), familyID)
	if err != nil {
		writeError(w, h.logger, op+" family question", err)
		return
	}
	writeJSON(w, http.StatusOK, fq)
}

func (h *AdminHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	report := h.sweeper.RunOnce(r.Context())
	writeJSON(w, http.StatusOK, report)
}
