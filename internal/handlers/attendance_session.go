package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"attendify-backend/internal/middleware"
	"attendify-backend/internal/models"
	"attendify-backend/internal/services"
)

type sessionManager interface {
	Open(ctx context.Context, in services.OpenSessionInput) (*models.AttendanceSession, error)
	GetActive(ctx context.Context, courseID, callerID uuid.UUID) (*models.AttendanceSession, error)
	Close(ctx context.Context, sessionID, callerID uuid.UUID) (*models.CloseSummary, error)
	Stats(ctx context.Context, sessionID, callerID uuid.UUID) (*models.SessionStats, error)
	ListSubmissions(ctx context.Context, sessionID, callerID uuid.UUID) ([]*models.Submission, error)
	Review(ctx context.Context, submissionID, callerID uuid.UUID, approve bool) (*models.Submission, error)
}

type answerSubmitter interface {
	Submit(ctx context.Context, sessionID, studentID uuid.UUID, answer string) (*models.SubmitResult, error)
	Get(ctx context.Context, sessionID, studentID uuid.UUID) (*models.Submission, error)
}

type AttendanceSessionHandler struct {
	sessions    sessionManager
	submissions answerSubmitter
}

func NewAttendanceSessionHandler(sessions sessionManager, submissions answerSubmitter) *AttendanceSessionHandler {
	return &AttendanceSessionHandler{sessions: sessions, submissions: submissions}
}

func (h *AttendanceSessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req models.StartSessionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	session, err := h.sessions.Open(r.Context(), services.OpenSessionInput{
		CourseID:         uuid.MustParse(req.CourseID),
		InstructorID:     userID,
		Question:         req.Question,
		Keywords:         req.Keywords,
		DurationMinutes:  req.DurationMinutes,
		SemanticEnabled:  req.SemanticEnabled,
		MaxSemanticCalls: req.MaxSemanticCalls,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, session)
}

func (h *AttendanceSessionHandler) Stop(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req models.StopSessionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	summary, err := h.sessions.Close(r.Context(), uuid.MustParse(req.SessionID), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// Active returns the open session for a course, or null.
func (h *AttendanceSessionHandler) Active(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	courseID, err := uuid.Parse(chi.URLParam(r, "courseId"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid course ID", r))
		return
	}

	session, err := h.sessions.GetActive(r.Context(), courseID, userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

func (h *AttendanceSessionHandler) Stats(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	sessionID, ok := sessionIDParam(w, r)
	if !ok {
		return
	}

	stats, err := h.sessions.Stats(r.Context(), sessionID, userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func (h *AttendanceSessionHandler) Submissions(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	sessionID, ok := sessionIDParam(w, r)
	if !ok {
		return
	}

	subs, err := h.sessions.ListSubmissions(r.Context(), sessionID, userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"submissions": subs,
	})
}

func (h *AttendanceSessionHandler) Review(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	submissionID, err := uuid.Parse(chi.URLParam(r, "submissionId"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid submission ID", r))
		return
	}

	var req models.ReviewSubmissionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	sub, err := h.sessions.Review(r.Context(), submissionID, userID, *req.Approve)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, sub)
}

// Submit records the caller's answer. The student is always the token holder.
func (h *AttendanceSessionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req models.SubmitAnswerRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.submissions.Submit(r.Context(), uuid.MustParse(req.SessionID), userID, req.Answer)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *AttendanceSessionHandler) MySubmission(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	sessionID, ok := sessionIDParam(w, r)
	if !ok {
		return
	}

	sub, err := h.submissions.Get(r.Context(), sessionID, userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, sub)
}

func sessionIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "sessionId"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid session ID", r))
		return uuid.Nil, false
	}
	return id, true
}
