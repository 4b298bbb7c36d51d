package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"editpdf/internal/feedback/model"
	"editpdf/internal/feedback/service"
	"editpdf/internal/overlay"
	"editpdf/middleware"
	"editpdf/pkg/logger"
)

type FeedbackHandler struct {
	Service *service.FeedbackService
}

func NewFeedbackHandler(service *service.FeedbackService) *FeedbackHandler {
	return &FeedbackHandler{Service: service}
}

func (h *FeedbackHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	gradeID, ok := gradeParam(w, r)
	if !ok {
		return
	}
	userID, _ := middleware.UserID(r.Context())

	info, err := h.Service.GetDocument(r.Context(), userID, gradeID)
	if err != nil {
		logger.Sugar.Errorf("Handler: Failed to load document of grade %d: %v", gradeID, err)
		writeError(w, err)
		return
	}
	writeJSON(w, info)
}

func (h *FeedbackHandler) GetPage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	gradeID, ok := gradeParam(w, r)
	if !ok {
		return
	}
	pageNo, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil {
		http.Error(w, "Missing or invalid page parameter", http.StatusBadRequest)
		return
	}
	userID, _ := middleware.UserID(r.Context())

	page, err := h.Service.GetPage(r.Context(), userID, gradeID, pageNo)
	if err != nil {
		logger.Sugar.Errorf("Handler: Failed to load grade %d page %d: %v", gradeID, pageNo, err)
		writeError(w, err)
		return
	}
	writeJSON(w, page)
}

func (h *FeedbackHandler) SavePage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req model.SavePageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.GradeID <= 0 {
		http.Error(w, "Missing grade_id", http.StatusBadRequest)
		return
	}
	userID, _ := middleware.UserID(r.Context())

	if err := h.Service.SavePage(r.Context(), userID, "", req.GradeID, req.PageNo, req.Annotations); err != nil {
		logger.Sugar.Errorf("Handler: Failed to save grade %d page %d: %v", req.GradeID, req.PageNo, err)
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Page saved successfully"))
}

func (h *FeedbackHandler) SearchComments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	gradeID, ok := gradeParam(w, r)
	if !ok {
		return
	}
	query := r.URL.Query().Get("q")
	userID, _ := middleware.UserID(r.Context())

	comments, err := h.Service.SearchComments(r.Context(), userID, gradeID, query)
	if err != nil {
		logger.Sugar.Errorf("Handler: Failed to search comments of grade %d: %v", gradeID, err)
		writeError(w, err)
		return
	}
	writeJSON(w, model.SearchResponse{GradeID: gradeID, Query: query, Comments: comments})
}

func gradeParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	gradeID, err := strconv.ParseInt(r.URL.Query().Get("gradeId"), 10, 64)
	if err != nil || gradeID <= 0 {
		http.Error(w, "Missing or invalid gradeId parameter", http.StatusBadRequest)
		return 0, false
	}
	return gradeID, true
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrForbidden), errors.Is(err, service.ErrReadOnly):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, service.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, service.ErrBadPage), errors.Is(err, overlay.ErrInvalidRecord):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, "Database error", http.StatusInternalServerError)
	}
}
