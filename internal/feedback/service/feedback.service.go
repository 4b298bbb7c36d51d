package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"editpdf/internal/feedback/model"
	"editpdf/internal/feedback/repository"
	"editpdf/internal/overlay"
	"editpdf/pkg/logger"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var (
	ErrForbidden = errors.New("unauthorized: not a member of this grade")
	ErrReadOnly  = errors.New("unauthorized: only markers can annotate")
	ErrNotFound  = errors.New("submission not found")
	ErrBadPage   = errors.New("invalid page")
)

// PageNotifier tells open editors that a page was saved. origin is the
// connection that saved it, empty when the save came over REST.
type PageNotifier interface {
	PageChanged(gradeID int64, pageNo int, origin string)
}

type FeedbackService struct {
	Repo *repository.FeedbackRepository
	Hub  PageNotifier
	// PageSizes reads the page sizes of a submission.
	PageSizes func(pdf []byte) ([]model.PageSize, error)

	mu         sync.Mutex
	pageCounts map[int64]int
}

func NewFeedbackService(repo *repository.FeedbackRepository, hub PageNotifier) *FeedbackService {
	return &FeedbackService{Repo: repo, Hub: hub, PageSizes: PDFPageSizes, pageCounts: make(map[int64]int)}
}

// PDFPageSizes reads the media box of every page and converts it to page pixels.
func PDFPageSizes(pdf []byte) ([]model.PageSize, error) {
	dims, err := api.PageDims(bytes.NewReader(pdf), pdfmodel.NewDefaultConfiguration())
	if err != nil {
		return nil, fmt.Errorf("read page dimensions: %w", err)
	}
	sizes := make([]model.PageSize, len(dims))
	for i, d := range dims {
		sizes[i].Width, sizes[i].Height = overlay.PagePixels(d.Width, d.Height)
	}
	return sizes, nil
}

// Role returns the role of userID on a grade, ErrForbidden for strangers.
func (s *FeedbackService) Role(ctx context.Context, gradeID int64, userID string) (string, error) {
	role, err := s.Repo.GetRole(ctx, gradeID, userID)
	if err == sql.ErrNoRows {
		return "", ErrForbidden
	}
	if err != nil {
		return "", err
	}
	if role != model.RoleMarker && role != model.RoleViewer {
		return "", ErrForbidden
	}
	return role, nil
}

func (s *FeedbackService) DocumentInfo(ctx context.Context, gradeID int64) (*model.DocumentInfo, error) {
	pdf, err := s.Repo.GetDocument(ctx, gradeID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	pages, err := s.PageSizes(pdf)
	if err != nil {
		logger.Sugar.Errorf("Failed to read submission of grade %d: %v", gradeID, err)
		return nil, err
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("submission of grade %d has no pages", gradeID)
	}
	s.mu.Lock()
	s.pageCounts[gradeID] = len(pages)
	s.mu.Unlock()
	return &model.DocumentInfo{GradeID: gradeID, PageCount: len(pages), Pages: pages}, nil
}

// checkPage returns ErrBadPage, wrapping an *overlay.OutOfRangeError, for a
// page the submission does not have. The page count is parsed from the PDF
// once per grade.
func (s *FeedbackService) checkPage(ctx context.Context, gradeID int64, pageNo int) error {
	s.mu.Lock()
	count, ok := s.pageCounts[gradeID]
	s.mu.Unlock()
	if !ok {
		info, err := s.DocumentInfo(ctx, gradeID)
		if err != nil {
			return err
		}
		count = info.PageCount
	}
	if pageNo < 0 || pageNo >= count {
		return fmt.Errorf("%w: %w", ErrBadPage, &overlay.OutOfRangeError{Page: pageNo, Count: count})
	}
	return nil
}

// GetDocument is DocumentInfo for a member, with their role filled in.
func (s *FeedbackService) GetDocument(ctx context.Context, userID string, gradeID int64) (*model.DocumentInfo, error) {
	role, err := s.Role(ctx, gradeID, userID)
	if err != nil {
		return nil, err
	}
	info, err := s.DocumentInfo(ctx, gradeID)
	if err != nil {
		return nil, err
	}
	info.Role = role
	return info, nil
}

func (s *FeedbackService) LoadPage(ctx context.Context, gradeID int64, pageNo int) ([]overlay.Record, error) {
	if err := s.checkPage(ctx, gradeID, pageNo); err != nil {
		return nil, err
	}
	return s.Repo.ListPage(ctx, gradeID, pageNo)
}

func (s *FeedbackService) GetPage(ctx context.Context, userID string, gradeID int64, pageNo int) (*model.PageResponse, error) {
	if _, err := s.Role(ctx, gradeID, userID); err != nil {
		return nil, err
	}
	records, err := s.LoadPage(ctx, gradeID, pageNo)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []overlay.Record{}
	}
	return &model.PageResponse{GradeID: gradeID, PageNo: pageNo, Annotations: records}, nil
}

// SavePage replaces the content of a page. The page must exist in the
// submission, and every record is checked and pinned to the grade and page
// before anything is written.
func (s *FeedbackService) SavePage(ctx context.Context, userID, origin string, gradeID int64, pageNo int, records []overlay.Record) error {
	role, err := s.Role(ctx, gradeID, userID)
	if err != nil {
		return err
	}
	if role != model.RoleMarker {
		return ErrReadOnly
	}
	if err := s.checkPage(ctx, gradeID, pageNo); err != nil {
		return err
	}

	clean := make([]overlay.Record, len(records))
	for i, r := range records {
		r.GradeID, r.PageNo = gradeID, pageNo
		a, err := overlay.FromRecord(r)
		if err != nil {
			return fmt.Errorf("annotation %d: %w", i, err)
		}
		clean[i] = a.Record()
	}

	if err := s.Repo.ReplacePage(ctx, gradeID, pageNo, clean); err != nil {
		return err
	}
	if s.Hub != nil {
		s.Hub.PageChanged(gradeID, pageNo, origin)
	}
	return nil
}

// SearchComments finds comments of a grade whose visible text contains query, ignoring case.
func (s *FeedbackService) SearchComments(ctx context.Context, userID string, gradeID int64, query string) ([]overlay.Record, error) {
	if _, err := s.Role(ctx, gradeID, userID); err != nil {
		return nil, err
	}
	candidates, err := s.Repo.ListComments(ctx, gradeID)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(query)
	out := []overlay.Record{}
	for _, r := range candidates {
		if strings.Contains(strings.ToLower(overlay.PlainText(r.Type, r.RawText)), q) {
			out = append(out, r)
		}
	}
	return out, nil
}
