// Package events implements a lightweight fire-and-forget activity bus
// publishing {entity_type, entity_id, action, user_id, timestamp}
// events over NATS.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Action is the lifecycle action an event records.
type Action string

const (
	Created  Action = "created"
	Updated  Action = "updated"
	Deleted  Action = "deleted"
	Read     Action = "read"
	Queried  Action = "queried"
)

// isReadAction reports whether action is one of the read-path actions
// gated by ACTIVITY_TRACK_READS.
func isReadAction(a Action) bool {
	return a == Read || a == Queried
}

// Event is the shape every activity emits.
type Event struct {
	EntityType string    `json:"entity_type"`
	EntityID   int64     `json:"entity_id"`
	Action     Action    `json:"action"`
	UserID     uuid.UUID `json:"user_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// Bus publishes activity events to NATS. It never blocks the calling
// operation: Emit marshals and publishes from a separate goroutine, and
// any failure is logged, not returned.
type Bus struct {
	nc          *nats.Conn
	logger      *zap.Logger
	trackReads  bool
	subjectRoot string
}

// New constructs a Bus. trackReads gates Read/Queried events per the
// ACTIVITY_TRACK_READS setting; created/updated/deleted always emit.
func New(nc *nats.Conn, trackReads bool, logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{nc: nc, logger: logger, trackReads: trackReads, subjectRoot: "forgetful.activity"}
}

// Emit publishes an event fire-and-forget. Read/Queried events are
// silently dropped unless trackReads is enabled. A panic in the publish
// path (e.g. a nil connection under test) is recovered and logged rather
// than propagated, matching the "handler exceptions must be logged and
// discarded" requirement.
func (b *Bus) Emit(e Event) {
	if isReadAction(e.Action) && !b.trackReads {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("activity event publish panicked",
					zap.Any("recovered", r), zap.String("entity_type", e.EntityType))
			}
		}()

		data, err := json.Marshal(e)
		if err != nil {
			b.logger.Warn("failed to marshal activity event", zap.Error(err))
			return
		}

		subject := b.subject(e)
		if err := b.nc.Publish(subject, data); err != nil {
			b.logger.Warn("failed to publish activity event", zap.String("subject", subject), zap.Error(err))
		}
	}()
}

func (b *Bus) subject(e Event) string {
	return fmt.Sprintf("%s.%s.%s.%s", b.subjectRoot, e.UserID, e.EntityType, e.Action)
}

// Subscribe registers an in-process handler for every event matching
// subjectPattern (a NATS subject, which may use "*"/">" wildcards). The
// handler runs on NATS's own dispatch goroutine; a panic inside it is
// recovered and logged so one bad handler can never take down the
// caller that emitted the event.
func (b *Bus) Subscribe(subjectPattern string, handler func(Event)) (*nats.Subscription, error) {
	return b.nc.Subscribe(subjectPattern, func(msg *nats.Msg) {
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("activity event handler panicked", zap.Any("recovered", r))
			}
		}()

		var e Event
		if err := json.Unmarshal(msg.Data, &e); err != nil {
			b.logger.Warn("failed to decode activity event", zap.Error(err))
			return
		}
		handler(e)
	})
}
