package messaging

import (
	"errors"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/planboard/project/internal/sharding"
)

const (
	ChangesStream = "CHANGES"

	// changeRetention bounds how long row changes stay replayable.
	changeRetention = 24 * time.Hour
)

// StreamManager is the part of nats.JetStreamContext EnsureStreams needs.
type StreamManager interface {
	StreamInfo(stream string, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
}

// EnsureStreams creates (or validates) the row-change stream on app.change.>.
func EnsureStreams(js StreamManager) error {
	if _, err := js.StreamInfo(ChangesStream); err != nil {
		if !errors.Is(err, nats.ErrStreamNotFound) {
			return err
		}
		if _, addErr := js.AddStream(&nats.StreamConfig{
			Name:      ChangesStream,
			Subjects:  sharding.StreamSubjects(),
			Retention: nats.LimitsPolicy,
			Storage:   nats.FileStorage,
			MaxAge:    changeRetention,
			Replicas:  1,
		}); addErr != nil {
			return addErr
		}
	}
	return nil
}
