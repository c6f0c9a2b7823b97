package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/familyq/internal/apperr"
	"github.com/dukerupert/familyq/internal/auth"
	"github.com/dukerupert/familyq/internal/model"
	"github.com/dukerupert/familyq/internal/question"
)

type QuestionHandler struct {
	reader *question.Reader
	intake *question.Intake
	logger *slog.Logger
}

func NewQuestionHandler(reader *question.Reader, intake *question.Intake, logger *slog.Logger) *QuestionHandler {
	return &QuestionHandler{reader: reader, intake: intake, logger: logger}
}

// waitingResponse is the today view for a family that has no question yet.
type waitingResponse struct {
	Entry   *model.FamilyQuestion `json:"entry"`
	Reason  string                `json:"reason"`
	Message string                `json:"message"`
}

func (h *QuestionHandler) Today(w http.ResponseWriter, r *http.Request) {
	view, err := h.reader.Today(r.Context(), auth.MemberID(r.Context()))
	if err != nil {
		if apperr.Is(err, apperr.KindNotReady) || apperr.CodeOf(err) == apperr.CodeCatalogEmpty {
			writeJSON(w, http.StatusOK, waitingResponse{Reason: apperr.CodeOf(err), Message: errorMessage(err)})
			return
		}
		writeError(w, h.logger, "load today's question", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *QuestionHandler) History(w http.ResponseWriter, r *http.Request) {
	entries, err := h.reader.History(r.Context(), auth.MemberID(r.Context()))
	if err != nil {
		writeError(w, h.logger, "list question history", err)
		return
	}
	if entries == nil {
		entries = []model.FamilyQuestionWithText{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *QuestionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "", "invalid id")
		return
	}

	view, err := h.reader.Detail(r.Context(), auth.MemberID(r.Context()), id)
	if err != nil {
		writeError(w, h.logger, "load question", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type answerRequest struct {
	Content string `json:"content"`
}

func (h *QuestionHandler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "", "invalid id")
		return
	}

	var req answerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "", "invalid JSON")
		return
	}

	sub, err := h.intake.Submit(r.Context(), auth.MemberID(r.Context()), id, req.Content)
	if err != nil {
		writeError(w, h.logger, "submit answer", err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// Counsel generates a fresh summary for a completed question without
// replacing the stored one.
func (h *QuestionHandler) Counsel(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "", "invalid id")
		return
	}

	c, err := h.intake.Counsel(r.Context(), auth.MemberID(r.Context()), id)
	if err != nil {
		writeError(w, h.logger, "request counseling", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
