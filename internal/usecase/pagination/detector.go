package pagination

import (
	"sort"

	"listing-agent/internal/application/port/output"
	"listing-agent/internal/domain/entity"
)

type Detector struct {
	table  ScoringTable
	logger output.LoggerPort
}

func New(table ScoringTable, logger output.LoggerPort) *Detector {
	return &Detector{
		table:  table,
		logger: logger.WithField("component", "pagination_detector"),
	}
}

func (d *Detector) Table() ScoringTable {
	return d.table
}

// Classify ranks candidates and picks the control most likely to lead to
// the next page. Next-style controls win over numbered ones.
func (d *Detector) Classify(candidates []entity.ElementCandidate) entity.PaginationAssessment {
	ranked := make([]entity.ElementCandidate, 0, len(candidates))
	for _, c := range candidates {
		scored := d.table.Score(c)
		if scored.Score > 0 {
			ranked = append(ranked, scored)
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Index < ranked[j].Index
	})

	assessment := entity.PaginationAssessment{
		Type:   entity.PaginationNone,
		Ranked: ranked,
	}

	var next *entity.ElementCandidate
	for i := range ranked {
		c := ranked[i]
		switch c.Classification {
		case entity.ClassNextButton:
			if next == nil && c.Score >= d.table.NextThreshold {
				next = &c
			}
		case entity.ClassPageNumber, entity.ClassPageLink:
			if c.Score >= d.table.PageThreshold {
				assessment.PageCandidates = append(assessment.PageCandidates, c)
				if assessment.CurrentPage == 0 && d.table.isCurrent(c) {
					assessment.CurrentPage = c.PageNumber()
				}
			}
		}
	}

	switch {
	case next != nil:
		assessment.HasPagination = true
		assessment.Chosen = next
		assessment.Type = entity.PaginationNextButton
		if next.LoadMore {
			assessment.Type = entity.PaginationLoadMore
		}
	case len(assessment.PageCandidates) > 0:
		chosen := assessment.PageCandidates[0]
		assessment.HasPagination = true
		assessment.Chosen = &chosen
		assessment.Type = entity.PaginationPageNumbers
	}

	d.logger.Debug("Pagination classified",
		"candidates", len(candidates),
		"ranked", len(ranked),
		"type", assessment.Type,
		"has_pagination", assessment.HasPagination,
	)

	return assessment
}
