package output

import (
	"context"

	"listing-agent/internal/domain/entity"
)

type ProgressPort interface {
	ShowState(ctx context.Context, state string, pageIndex int)
	ShowPage(ctx context.Context, page entity.PageResult)
	ShowNavigation(ctx context.Context, strategy string, ok bool)
	ShowFinished(ctx context.Context, report *entity.RunReport)
}

type NopProgress struct{}

func (NopProgress) ShowState(context.Context, string, int) {}
func (NopProgress) ShowPage(context.Context, entity.PageResult) {}
func (NopProgress) ShowNavigation(context.Context, string, bool) {}
func (NopProgress) ShowFinished(context.Context, *entity.RunReport) {}
