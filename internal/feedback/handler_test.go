package handler

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"editpdf/internal/feedback/model"
	"editpdf/internal/feedback/repository"
	"editpdf/internal/feedback/service"
	"editpdf/middleware"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHandler(t *testing.T) (*FeedbackHandler, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	svc := service.NewFeedbackService(repository.NewFeedbackRepository(db), nil)
	svc.PageSizes = func([]byte) ([]model.PageSize, error) {
		return []model.PageSize{{Width: 850, Height: 1100}}, nil
	}
	return NewFeedbackHandler(svc), mock
}

func asUser(r *http.Request, userID string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), middleware.UserIDKey, userID))
}

func TestGetDocument(t *testing.T) {
	h, mock := newHandler(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT role")).WithArgs(7, "u1").
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("marker"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT pdf")).WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"pdf"}).AddRow([]byte("%PDF")))

	rr := httptest.NewRecorder()
	h.GetDocument(rr, asUser(httptest.NewRequest(http.MethodGet, "/api/feedback/document?gradeId=7", nil), "u1"))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"grade_id":7,"page_count":1,"pages":[{"width":850,"height":1100}],"role":"marker"}`, rr.Body.String())
}

func TestGetDocumentErrors(t *testing.T) {
	h, mock := newHandler(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT role")).WillReturnError(sql.ErrNoRows)

	rr := httptest.NewRecorder()
	h.GetDocument(rr, asUser(httptest.NewRequest(http.MethodGet, "/?gradeId=abc", nil), "u1"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	h.GetDocument(rr, asUser(httptest.NewRequest(http.MethodPost, "/?gradeId=7", nil), "u1"))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)

	rr = httptest.NewRecorder()
	h.GetDocument(rr, asUser(httptest.NewRequest(http.MethodGet, "/?gradeId=7", nil), "u1"))
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestSavePage(t *testing.T) {
	h, mock := newHandler(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT role")).WithArgs(7, "u1").
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("marker"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT pdf")).WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"pdf"}).AddRow([]byte("%PDF")))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM feedback_annotations")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM feedback_comments")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO feedback_comments")).
		WithArgs(7, 0, 0, "comment", 10.0, 20.0, 150.0, "yellow", "Good").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	body := `{"grade_id":7,"page_no":0,"annotations":[{"type":"comment","x":10,"y":20,"width":150,"rawtext":"Good"}]}`
	rr := httptest.NewRecorder()
	h.SavePage(rr, asUser(httptest.NewRequest(http.MethodPost, "/api/feedback/pages/save", strings.NewReader(body)), "u1"))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSavePageByViewerIsForbidden(t *testing.T) {
	h, mock := newHandler(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT role")).
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("viewer"))

	rr := httptest.NewRecorder()
	h.SavePage(rr, asUser(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"grade_id":7,"page_no":0}`)), "u1"))
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = httptest.NewRecorder()
	h.SavePage(rr, asUser(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`)), "u1"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPagesOutsideSubmissionAreBadRequests(t *testing.T) {
	h, mock := newHandler(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT role")).
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("marker"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT pdf")).WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"pdf"}).AddRow([]byte("%PDF")))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT role")).
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("marker"))

	body := `{"grade_id":7,"page_no":500,"annotations":[{"type":"comment","x":10,"y":20,"width":150}]}`
	rr := httptest.NewRecorder()
	h.SavePage(rr, asUser(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)), "u1"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	h.GetPage(rr, asUser(httptest.NewRequest(http.MethodGet, "/?gradeId=7&page=1", nil), "u1"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// No delete or insert was attempted.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPageRequiresPage(t *testing.T) {
	h, _ := newHandler(t)
	rr := httptest.NewRecorder()
	h.GetPage(rr, asUser(httptest.NewRequest(http.MethodGet, "/?gradeId=7", nil), "u1"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSearchComments(t *testing.T) {
	h, mock := newHandler(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT role")).
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("viewer"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM feedback_comments")).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"seq", "page_no", "type", "x", "y", "width", "colour", "rawtext"}).
			AddRow(0, 1, "comment", 1.0, 2.0, 100.0, "yellow", "Please cite"))

	rr := httptest.NewRecorder()
	h.SearchComments(rr, asUser(httptest.NewRequest(http.MethodGet, "/?gradeId=7&q=cite", nil), "u1"))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"rawtext":"Please cite"`)
	assert.Contains(t, rr.Body.String(), `"pageno":1`)
}
