package amqp

import (
	"context"
	"errors"
	"fmt"
)

// Handlers routes decoded messages by routing key. A nil handler drops
// messages of that kind.
type Handlers struct {
	ReportRequested func(ctx context.Context, msg *ReportRequestedMessage) error
	ReportGenerated func(ctx context.Context, msg *ReportGeneratedMessage) error
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying; the delivery is dropped
// instead of requeued.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

// Dispatch decodes body according to routingKey and calls the matching
// handler. Undecodable bodies and unknown keys are permanent failures.
func (h Handlers) Dispatch(ctx context.Context, routingKey string, body []byte) error {
	switch routingKey {
	case RoutingReportRequested:
		if h.ReportRequested == nil {
			return Permanent(fmt.Errorf("no handler for %s", routingKey))
		}
		msg, err := ReportRequestedMessageFromJSON(body)
		if err != nil {
			return Permanent(fmt.Errorf("decode %s: %w", routingKey, err))
		}
		return h.ReportRequested(ctx, msg)
	case RoutingReportGenerated:
		if h.ReportGenerated == nil {
			return Permanent(fmt.Errorf("no handler for %s", routingKey))
		}
		msg, err := ReportGeneratedMessageFromJSON(body)
		if err != nil {
			return Permanent(fmt.Errorf("decode %s: %w", routingKey, err))
		}
		return h.ReportGenerated(ctx, msg)
	default:
		return Permanent(fmt.Errorf("unknown routing key %q", routingKey))
	}
}
