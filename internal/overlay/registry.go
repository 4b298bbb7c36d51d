package overlay

import (
	"errors"
	"fmt"
)

var (
	ErrPageMismatch = errors.New("overlay: annotation belongs to another page")
	ErrAlreadyAdded = errors.New("overlay: annotation already registered")
)

// OutOfRangeError reports a page index outside the document.
type OutOfRangeError struct {
	Page  int
	Count int
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("overlay: page %d out of range [0, %d)", e.Page, e.Count)
}

// Registry keeps the ordered annotations of every page of one document.
// Later entries are drawn on top of earlier ones.
type Registry struct {
	pages [][]Annotation
}

func NewRegistry(pageCount int) *Registry {
	if pageCount < 0 {
		pageCount = 0
	}
	return &Registry{pages: make([][]Annotation, pageCount)}
}

func (r *Registry) PageCount() int {
	return len(r.pages)
}

func (r *Registry) check(pageNo int) error {
	if pageNo < 0 || pageNo >= len(r.pages) {
		return &OutOfRangeError{Page: pageNo, Count: len(r.pages)}
	}
	return nil
}

// Add appends a to the page. Nothing changes when it fails.
func (r *Registry) Add(pageNo int, a Annotation) error {
	if err := r.check(pageNo); err != nil {
		return err
	}
	if a.Page() != pageNo {
		return fmt.Errorf("%w: %d != %d", ErrPageMismatch, a.Page(), pageNo)
	}
	if r.index(pageNo, a) >= 0 {
		return ErrAlreadyAdded
	}
	r.pages[pageNo] = append(r.pages[pageNo], a)
	return nil
}

// Remove deletes a by identity and reports whether it was there.
func (r *Registry) Remove(pageNo int, a Annotation) bool {
	if r.check(pageNo) != nil {
		return false
	}
	i := r.index(pageNo, a)
	if i < 0 {
		return false
	}
	list := r.pages[pageNo]
	r.pages[pageNo] = append(list[:i:i], list[i+1:]...)
	return true
}

func (r *Registry) List(pageNo int) ([]Annotation, error) {
	if err := r.check(pageNo); err != nil {
		return nil, err
	}
	out := make([]Annotation, len(r.pages[pageNo]))
	copy(out, r.pages[pageNo])
	return out, nil
}

// Replace swaps the whole content of a page.
func (r *Registry) Replace(pageNo int, list []Annotation) error {
	if err := r.check(pageNo); err != nil {
		return err
	}
	for _, a := range list {
		if a.Page() != pageNo {
			return fmt.Errorf("%w: %d != %d", ErrPageMismatch, a.Page(), pageNo)
		}
	}
	r.pages[pageNo] = append([]Annotation(nil), list...)
	return nil
}

func (r *Registry) Records(pageNo int) ([]Record, error) {
	if err := r.check(pageNo); err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(r.pages[pageNo]))
	for _, a := range r.pages[pageNo] {
		out = append(out, a.Record())
	}
	return out, nil
}

func (r *Registry) index(pageNo int, a Annotation) int {
	for i, x := range r.pages[pageNo] {
		if x == a {
			return i
		}
	}
	return -1
}
