package eventlogger

import (
	"context"
	"errors"
)

type multi []EventLogger

// Multi fans every event out to all loggers. Queries go to the first logger that supports
// them.
func Multi(loggers ...EventLogger) EventLogger {
	return multi(loggers)
}

func (m multi) Save(ctx context.Context, e Event) error {
	var errs []error
	for _, l := range m {
		if err := l.Save(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m multi) GetByType(ctx context.Context, eventType string) ([]Event, error) {
	for _, l := range m {
		events, err := l.GetByType(ctx, eventType)
		if errors.Is(err, ErrNotQueryable) {
			continue
		}
		return events, err
	}
	return nil, ErrNotQueryable
}
