// Package realtime carries row-change notifications between writers and
// live subscribers over sharded JetStream subjects.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/planboard/project/internal/contracts"
	"github.com/planboard/project/internal/logging"
	"github.com/planboard/project/internal/sharding"
)

var ErrFilterIncomplete = errors.New("subscription filter needs table and owner")

// PublishFunc sends one encoded notification on subject.
type PublishFunc func(ctx context.Context, subject string, payload []byte) error

// Publisher encodes notifications and routes them to their row subject.
type Publisher struct {
	Send PublishFunc
}

func NewPublisher(send PublishFunc) *Publisher {
	return &Publisher{Send: send}
}

func (p *Publisher) Publish(ctx context.Context, n contracts.ChangeNotification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal change notification: %w", err)
	}
	return p.Send(ctx, sharding.ChangeSubject(n.Table, n.OwnerID, n.RowID), payload)
}

// Subscriber is the transport side of a Channel.
type Subscriber interface {
	Subscribe(subject string, handler func(data []byte)) (func() error, error)
}

// Filter selects one owner's rows in Table, or a single row when RowID is set.
type Filter struct {
	Table   string
	OwnerID string
	RowID   string
}

func (f Filter) matches(n contracts.ChangeNotification) bool {
	if n.Table != f.Table || n.OwnerID != f.OwnerID {
		return false
	}
	return f.RowID == "" || n.RowID == f.RowID
}

type Channel struct {
	Sub    Subscriber
	Logger *slog.Logger
}

func NewChannel(sub Subscriber, logger *slog.Logger) *Channel {
	return &Channel{Sub: sub, Logger: logger}
}

// Subscribe delivers every notification matching filter to handler until the
// returned Subscription is released. Undecodable messages are logged and
// dropped.
func (c *Channel) Subscribe(ctx context.Context, filter Filter, handler func(contracts.ChangeNotification)) (*Subscription, error) {
	if filter.Table == "" || filter.OwnerID == "" {
		return nil, ErrFilterIncomplete
	}
	log := logging.Operation(ctx, c.Logger, "realtime", "subscribe",
		"table", filter.Table, "owner_id", filter.OwnerID, "row_id", filter.RowID)

	subject := sharding.ChangeFilter(filter.Table, filter.OwnerID, filter.RowID)
	stop, err := c.Sub.Subscribe(subject, func(data []byte) {
		var n contracts.ChangeNotification
		if err := json.Unmarshal(data, &n); err != nil {
			log.Warn("dropping undecodable change notification", "error", err)
			return
		}
		if !filter.matches(n) {
			return
		}
		handler(n)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	log.Debug("change subscription opened", "subject", subject)
	return &Subscription{Subject: subject, stop: stop}, nil
}

// Subscription is a live registration on a Channel.
type Subscription struct {
	Subject string

	once sync.Once
	stop func() error
}

// Unsubscribe releases the registration. Calling it again, or on a nil
// Subscription, is a no-op.
func (s *Subscription) Unsubscribe() error {
	if s == nil {
		return nil
	}
	var err error
	s.once.Do(func() {
		if s.stop != nil {
			err = s.stop()
		}
	})
	return err
}
