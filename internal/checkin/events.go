package checkin

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"nfccheckin/internal/metrics"
	"nfccheckin/internal/queue"
)

// MessageVisit is the queue message type carrying a VisitEvent.
const MessageVisit = "visit"

// VisitEvent announces a recorded visit to downstream consumers.
type VisitEvent struct {
	TagID    string    `json:"tag_id"`
	Label    string    `json:"label"`
	Terminal string    `json:"terminal,omitempty"`
	At       time.Time `json:"at"`
}

// LiveCounter tracks running scan counts per context label.
type LiveCounter interface {
	Incr(ctx context.Context, label string) error
	Count(ctx context.Context, label string) (int64, error)
}

func newVisitMessage(v Visit) (queue.Message, error) {
	body, err := json.Marshal(VisitEvent{TagID: v.TagID, Label: v.Label, Terminal: v.Terminal, At: v.At})
	if err != nil {
		return queue.Message{}, err
	}
	return queue.Message{ID: uuid.NewString(), Type: MessageVisit, Body: body}, nil
}

// DecodeVisitEvent parses the body of a visit message.
func DecodeVisitEvent(msg queue.Message) (VisitEvent, error) {
	var evt VisitEvent
	err := json.Unmarshal(msg.Body, &evt)
	return evt, err
}

// ConsumeVisits drains visit messages from q into counter until ctx ends or
// the queue closes. Malformed messages are logged and skipped.
func ConsumeVisits(ctx context.Context, q queue.Queue, counter LiveCounter, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	messages, err := q.Consume(ctx)
	if err != nil {
		return err
	}
	for msg := range messages {
		if msg.Type != MessageVisit {
			continue
		}
		evt, err := DecodeVisitEvent(msg)
		if err != nil {
			logger.Warn("dropping malformed visit message", "id", msg.ID, "error", err)
			continue
		}
		if err := counter.Incr(ctx, evt.Label); err != nil {
			logger.Error("live counter update failed", "label", evt.Label, "error", err)
			continue
		}
		metrics.VisitsConsumed.Inc()
		logger.Debug("visit counted", "id", msg.ID, "tag", evt.TagID, "label", evt.Label)
	}
	return nil
}
