package executor

import (
	"context"

	"github.com/elisa-build/elisa/internal/models"
)

// StubTeaching is a no-op TeachingEngine used when no real teaching
// capability is wired — it never produces a teaching moment rather
// than failing the task.
type StubTeaching struct{}

// TeachingMoment implements TeachingEngine.
func (StubTeaching) TeachingMoment(ctx context.Context, task *models.Task, summary string) (string, bool) {
	return "", false
}
