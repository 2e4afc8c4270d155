package output

import "context"

// UserInteractionPort collects missing run parameters from an operator.
type UserInteractionPort interface {
	AskQuestion(ctx context.Context, question string) (string, error)
}
