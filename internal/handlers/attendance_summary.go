package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"attendify-backend/internal/middleware"
	"attendify-backend/internal/models"
)

type summaryReporter interface {
	ForStudent(ctx context.Context, studentID uuid.UUID) (*models.AttendanceSummary, error)
}

type AttendanceSummaryHandler struct {
	summary summaryReporter
}

func NewAttendanceSummaryHandler(summary summaryReporter) *AttendanceSummaryHandler {
	return &AttendanceSummaryHandler{summary: summary}
}

// Mine returns the caller's attendance standing across enrolled courses.
func (h *AttendanceSummaryHandler) Mine(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	summary, err := h.summary.ForStudent(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}
