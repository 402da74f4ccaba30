package calendar

import (
	"context"
	"log/slog"
	"time"

	"github.com/nats-io/nuid"
	"github.com/planboard/project/internal/contracts"
	"github.com/planboard/project/internal/logging"
	"github.com/planboard/project/internal/platform/metrics"
)

var changesPublished = metrics.NewCounterVec(metrics.Opts{
	Name: "planboard_change_notifications_total",
	Help: "Change notifications by kind and publish result.",
}, []string{"kind", "result"})

func init() {
	metrics.Default.MustRegister(changesPublished)
}

type ChangePublisher interface {
	Publish(ctx context.Context, n contracts.ChangeNotification) error
}

// ChangeFeedStore emits one notification per affected row after each
// successful write. A failed publish is logged and swallowed: the write has
// already committed and the caller's result stays accurate.
type ChangeFeedStore struct {
	Store
	Publisher ChangePublisher
	Logger    *slog.Logger
	Now       func() time.Time
	NewID     func() string
}

func WithChangeFeed(store Store, publisher ChangePublisher, logger *slog.Logger) *ChangeFeedStore {
	return &ChangeFeedStore{
		Store:     store,
		Publisher: publisher,
		Logger:    logger,
		Now:       func() time.Time { return time.Now().UTC() },
		NewID:     nuid.Next,
	}
}

func (s *ChangeFeedStore) Insert(ctx context.Context, rec Record) (Record, error) {
	row, err := s.Store.Insert(ctx, rec)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, contracts.ChangeInsert, row)
	return row, nil
}

func (s *ChangeFeedStore) Update(ctx context.Context, q Query, changes Record) ([]Record, error) {
	rows, err := s.Store.Update(ctx, q, changes)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		s.emit(ctx, contracts.ChangeUpdate, row)
	}
	return rows, nil
}

func (s *ChangeFeedStore) Delete(ctx context.Context, q Query) ([]Record, error) {
	rows, err := s.Store.Delete(ctx, q)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		s.emit(ctx, contracts.ChangeDelete, row)
	}
	return rows, nil
}

func (s *ChangeFeedStore) emit(ctx context.Context, kind string, row Record) {
	if s.Publisher == nil {
		return
	}
	n := contracts.ChangeNotification{
		ID:         s.NewID(),
		Table:      TableEvents,
		Kind:       kind,
		RowID:      row.String(ColumnID),
		OwnerID:    row.String(ColumnUserID),
		Record:     map[string]any(cloneRecord(row)),
		OccurredAt: s.Now(),
	}
	if err := s.Publisher.Publish(ctx, n); err != nil {
		changesPublished.WithLabelValues(kind, "failed").Inc()
		logging.Operation(ctx, s.Logger, "calendar", "publish_change",
			"kind", kind, "row_id", n.RowID).Warn("change notification not published", "error", err)
		return
	}
	changesPublished.WithLabelValues(kind, "published").Inc()
}
