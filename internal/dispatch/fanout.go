package dispatch

import (
	"context"

	"github.com/custos-io/custos/internal/domain"
)

// Fanout delivers a job through a primary transport and mirrors it to
// best-effort secondaries. Only the primary's error drives the retry
// decision; a secondary failure is logged and dropped so a flaky side
// channel cannot cause duplicate primary deliveries.
func Fanout(primary domain.Transport, logger Logger, secondaries ...domain.Transport) domain.Transport {
	if len(secondaries) == 0 {
		return primary
	}
	return &fanout{primary: primary, secondaries: secondaries, logger: logger}
}

type fanout struct {
	primary     domain.Transport
	secondaries []domain.Transport
	logger      Logger
}

func (f *fanout) Deliver(ctx context.Context, job domain.NotificationJob) error {
	// Secondaries fire on the first attempt only; a primary retry must not
	// re-send them.
	if job.Attempts <= 1 {
		for _, t := range f.secondaries {
			if err := t.Deliver(ctx, job); err != nil {
				f.logger.Warnf("Secondary channel failed for notification %s: %v", job.ID, err)
			}
		}
	}
	return f.primary.Deliver(ctx, job)
}
