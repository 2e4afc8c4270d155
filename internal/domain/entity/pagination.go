package entity

type PaginationType string

const (
	PaginationNone        PaginationType = "none"
	PaginationNextButton  PaginationType = "next_button"
	PaginationPageNumbers PaginationType = "page_numbers"
	PaginationLoadMore    PaginationType = "load_more"
)

type PaginationAssessment struct {
	HasPagination  bool
	Type           PaginationType
	Chosen         *ElementCandidate
	PageCandidates []ElementCandidate
	Ranked         []ElementCandidate
	CurrentPage    int
}

// PageCandidate returns the numbered control leading to page n.
func (a PaginationAssessment) PageCandidate(n int) (ElementCandidate, bool) {
	for _, c := range a.PageCandidates {
		if c.PageNumber() == n {
			return c, true
		}
	}
	return ElementCandidate{}, false
}
