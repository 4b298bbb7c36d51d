package model

import "editpdf/internal/overlay"

const (
	// RoleMarker may annotate a submission.
	RoleMarker = "marker"
	// RoleViewer sees the annotations but cannot change them, e.g. the student.
	RoleViewer = "viewer"
)

// PageSize is the size of a page in page pixels.
type PageSize struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type DocumentInfo struct {
	GradeID   int64      `json:"grade_id"`
	PageCount int        `json:"page_count"`
	Pages     []PageSize `json:"pages"`
	Role      string     `json:"role,omitempty"`
}

type PageResponse struct {
	GradeID     int64            `json:"grade_id"`
	PageNo      int              `json:"page_no"`
	Annotations []overlay.Record `json:"annotations"`
}

type SavePageRequest struct {
	GradeID     int64            `json:"grade_id"`
	PageNo      int              `json:"page_no"`
	Annotations []overlay.Record `json:"annotations"`
}

type SearchResponse struct {
	GradeID  int64            `json:"grade_id"`
	Query    string           `json:"query"`
	Comments []overlay.Record `json:"comments"`
}
