package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"quiz-nexus-service/internal/app"
	"quiz-nexus-service/internal/domain"
	"quiz-nexus-service/internal/report"
)

// QuizHandler serves the REST surface over quizzes and results.
type QuizHandler struct {
	service *app.QuizService
	log     *zap.Logger
}

func NewQuizHandler(service *app.QuizService, log *zap.Logger) *QuizHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &QuizHandler{service: service, log: log}
}

func (h *QuizHandler) ListQuizzes(w http.ResponseWriter, r *http.Request) {
	viewer, _ := ViewerFromContext(r.Context())
	quizzes, err := h.service.ListQuizzes(r.Context(), viewer)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quizzesFor(viewer, quizzes))
}

func (h *QuizHandler) GetQuiz(w http.ResponseWriter, r *http.Request) {
	viewer, _ := ViewerFromContext(r.Context())
	quiz, err := h.service.GetQuiz(r.Context(), viewer, chi.URLParam(r, "quizID"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quizFor(viewer, quiz))
}

func (h *QuizHandler) CreateQuiz(w http.ResponseWriter, r *http.Request) {
	viewer, _ := ViewerFromContext(r.Context())
	var draft domain.QuizDraft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		h.fail(w, &domain.ValidationError{Field: "body", Reason: "malformed JSON"})
		return
	}
	quiz, err := h.service.CreateQuiz(r.Context(), viewer, draft)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, quiz)
}

func (h *QuizHandler) UpdateQuiz(w http.ResponseWriter, r *http.Request) {
	viewer, _ := ViewerFromContext(r.Context())
	var patch domain.QuizPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		h.fail(w, &domain.ValidationError{Field: "body", Reason: "malformed JSON"})
		return
	}
	quiz, err := h.service.UpdateQuiz(r.Context(), viewer, chi.URLParam(r, "quizID"), patch)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quiz)
}

func (h *QuizHandler) DeleteQuiz(w http.ResponseWriter, r *http.Request) {
	viewer, _ := ViewerFromContext(r.Context())
	if err := h.service.DeleteQuiz(r.Context(), viewer, chi.URLParam(r, "quizID")); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListResults returns the viewer's results; admins may pass scope=all.
func (h *QuizHandler) ListResults(w http.ResponseWriter, r *http.Request) {
	viewer, _ := ViewerFromContext(r.Context())
	results, err := h.service.ListResults(r.Context(), viewer, r.URL.Query().Get("scope") == "all")
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// Summary aggregates every result for admins and the viewer's own results otherwise.
func (h *QuizHandler) Summary(w http.ResponseWriter, r *http.Request) {
	results, titles, err := h.reportInputs(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report.Summarize(results, titles))
}

func (h *QuizHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	results, titles, err := h.reportInputs(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="quiz-results.csv"`)
	if err := report.WriteCSV(w, results, titles); err != nil {
		h.log.Warn("csv export failed", zap.Error(err))
	}
}

func (h *QuizHandler) reportInputs(r *http.Request) ([]domain.Result, map[string]string, error) {
	viewer, _ := ViewerFromContext(r.Context())
	results, err := h.service.ListResults(r.Context(), viewer, viewer.IsAdmin())
	if err != nil {
		return nil, nil, err
	}
	titles, err := h.service.QuizTitles(r.Context(), domain.Viewer{UserID: viewer.UserID, Role: domain.RoleAdmin})
	if err != nil {
		return nil, nil, err
	}
	return results, titles, nil
}

func (h *QuizHandler) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", zap.Error(err))
	}
	writeError(w, err)
}

type errorPayload struct {
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidQuiz):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrFinishInProgress), errors.Is(err, domain.ErrAttemptClosed):
		return http.StatusConflict
	case errors.Is(err, domain.ErrSubmission), errors.Is(err, domain.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func errorBody(err error) errorPayload {
	payload := errorPayload{Message: err.Error()}
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		payload.Field = verr.Field
	}
	if statusFor(err) == http.StatusInternalServerError {
		payload.Message = "internal error"
	}
	return payload
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorBody(err))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
