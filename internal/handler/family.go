package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/familyq/internal/apperr"
	"github.com/dukerupert/familyq/internal/auth"
	"github.com/dukerupert/familyq/internal/model"
	"github.com/dukerupert/familyq/internal/store"
)

type FamilyHandler struct {
	families *store.FamilyStore
	logger   *slog.Logger
}

func NewFamilyHandler(families *store.FamilyStore, logger *slog.Logger) *FamilyHandler {
	return &FamilyHandler{families: families, logger: logger}
}

type familyResponse struct {
	Family  *model.Family  `json:"family"`
	Members []model.Member `json:"members"`
}

// Get returns the caller's family and its current roster.
func (h *FamilyHandler) Get(w http.ResponseWriter, r *http.Request) {
	familyID := auth.FamilyID(r.Context())
	if familyID == 0 {
		writeMessage(w, http.StatusForbidden, apperr.CodeMemberNotInFamily, "member does not belong to a family")
		return
	}

	family, err := h.families.GetByID(r.Context(), familyID)
	if err != nil {
		writeError(w, h.logger, "load family", err)
		return
	}
	if family == nil {
		writeMessage(w, http.StatusNotFound, apperr.CodeFamilyNotFound, "family not found")
		return
	}

	members, err := h.families.Members(r.Context(), familyID)
	if err != nil {
		writeError(w, h.logger, "list family members", err)
		return
	}
	if members == nil {
		members = []model.Member{}
	}
	writeJSON(w, http.StatusOK, familyResponse{Family: family, Members: members})
}
