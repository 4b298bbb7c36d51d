package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"editpdf/internal/overlay"
	"editpdf/pkg/logger"
)

// FeedbackRepository stores annotations and comments per submission page.
// Shapes and comments live in separate tables; seq keeps their drawing order.
type FeedbackRepository struct {
	DB *sql.DB
}

func NewFeedbackRepository(db *sql.DB) *FeedbackRepository {
	return &FeedbackRepository{DB: db}
}

func (r *FeedbackRepository) GetRole(ctx context.Context, gradeID int64, userID string) (string, error) {
	var role string
	err := r.DB.QueryRowContext(ctx, "SELECT role FROM feedback_members WHERE grade_id = $1 AND user_id = $2", gradeID, userID).Scan(&role)
	if err != nil && err != sql.ErrNoRows {
		logger.Sugar.Errorf("Failed to get role of %s on grade %d: %v", userID, gradeID, err)
	}
	return role, err
}

// GetDocument returns the submitted PDF of a grade.
func (r *FeedbackRepository) GetDocument(ctx context.Context, gradeID int64) ([]byte, error) {
	var pdf []byte
	err := r.DB.QueryRowContext(ctx, "SELECT pdf FROM feedback_submissions WHERE grade_id = $1", gradeID).Scan(&pdf)
	if err != nil && err != sql.ErrNoRows {
		logger.Sugar.Errorf("Failed to load submission for grade %d: %v", gradeID, err)
	}
	return pdf, err
}

type sequenced struct {
	seq int
	rec overlay.Record
}

func (r *FeedbackRepository) ListPage(ctx context.Context, gradeID int64, pageNo int) ([]overlay.Record, error) {
	var list []sequenced

	rows, err := r.DB.QueryContext(ctx, `
		SELECT seq, type, x, y, endx, endy, colour, path FROM feedback_annotations
		WHERE grade_id = $1 AND page_no = $2`, gradeID, pageNo)
	if err != nil {
		logger.Sugar.Errorf("Failed to list annotations of grade %d page %d: %v", gradeID, pageNo, err)
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		s := sequenced{rec: overlay.Record{GradeID: gradeID, PageNo: pageNo}}
		var endX, endY float64
		if err := rows.Scan(&s.seq, &s.rec.Type, &s.rec.X, &s.rec.Y, &endX, &endY, &s.rec.Colour, &s.rec.Path); err != nil {
			return nil, fmt.Errorf("scan annotation: %w", err)
		}
		s.rec.EndX, s.rec.EndY = &endX, &endY
		list = append(list, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	comments, err := r.listComments(ctx, `
		SELECT seq, page_no, type, x, y, width, colour, rawtext FROM feedback_comments
		WHERE grade_id = $1 AND page_no = $2`, gradeID, gradeID, pageNo)
	if err != nil {
		logger.Sugar.Errorf("Failed to list comments of grade %d page %d: %v", gradeID, pageNo, err)
		return nil, err
	}
	list = append(list, comments...)

	sort.SliceStable(list, func(i, j int) bool { return list[i].seq < list[j].seq })
	out := make([]overlay.Record, len(list))
	for i, s := range list {
		out[i] = s.rec
	}
	return out, nil
}

func (r *FeedbackRepository) listComments(ctx context.Context, query string, gradeID int64, args ...interface{}) ([]sequenced, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []sequenced
	for rows.Next() {
		s := sequenced{rec: overlay.Record{GradeID: gradeID}}
		var width float64
		if err := rows.Scan(&s.seq, &s.rec.PageNo, &s.rec.Type, &s.rec.X, &s.rec.Y, &width, &s.rec.Colour, &s.rec.RawText); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		s.rec.Width = &width
		list = append(list, s)
	}
	return list, rows.Err()
}

// ReplacePage swaps the stored content of one page for records in a single transaction.
func (r *FeedbackRepository) ReplacePage(ctx context.Context, gradeID int64, pageNo int, records []overlay.Record) (err error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
			logger.Sugar.Errorf("Failed to save grade %d page %d: %v", gradeID, pageNo, err)
		}
	}()

	if _, err = tx.ExecContext(ctx, "DELETE FROM feedback_annotations WHERE grade_id = $1 AND page_no = $2", gradeID, pageNo); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM feedback_comments WHERE grade_id = $1 AND page_no = $2", gradeID, pageNo); err != nil {
		return err
	}

	for seq, rec := range records {
		if rec.Type.IsText() {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO feedback_comments (grade_id, page_no, seq, type, x, y, width, colour, rawtext)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				gradeID, pageNo, seq, rec.Type, rec.X, rec.Y, deref(rec.Width), rec.Colour, rec.RawText)
		} else {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO feedback_annotations (grade_id, page_no, seq, type, x, y, endx, endy, colour, path)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
				gradeID, pageNo, seq, rec.Type, rec.X, rec.Y, deref(rec.EndX), deref(rec.EndY), rec.Colour, rec.Path)
		}
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListComments returns every comment of a grade in page and drawing order.
// Matching against a query happens on the plain text, which SQL cannot see
// through markup and entities.
func (r *FeedbackRepository) ListComments(ctx context.Context, gradeID int64) ([]overlay.Record, error) {
	list, err := r.listComments(ctx, `
		SELECT seq, page_no, type, x, y, width, colour, rawtext FROM feedback_comments
		WHERE grade_id = $1
		ORDER BY page_no, seq`, gradeID, gradeID)
	if err != nil {
		logger.Sugar.Errorf("Failed to list comments of grade %d: %v", gradeID, err)
		return nil, err
	}
	out := make([]overlay.Record, len(list))
	for i, s := range list {
		out[i] = s.rec
	}
	return out, nil
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
