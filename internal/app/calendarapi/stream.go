package calendarapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/planboard/project/internal/calendar"
	"github.com/planboard/project/internal/contracts"
	"github.com/planboard/project/internal/logging"
	platformauth "github.com/planboard/project/internal/platform/auth"
	"github.com/planboard/project/internal/realtime"
)

// streamBuffer bounds notifications queued for one slow client.
const streamBuffer = 32

type streamMessage struct {
	Kind       string          `json:"kind"`
	EventID    string          `json:"eventId"`
	Event      *calendar.Event `json:"event,omitempty"`
	OccurredAt time.Time       `json:"occurredAt"`
}

// handleStream relays the caller's event changes as server-sent events.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	if h.Changes == nil {
		h.writeError(w, http.StatusServiceUnavailable, "change stream is not configured")
		return
	}
	ctx := r.Context()
	principal, ok := platformauth.PrincipalFromContext(ctx)
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	log := logging.Operation(ctx, h.Logger, "calendarapi", "stream")

	changes := make(chan contracts.ChangeNotification, streamBuffer)
	sub, err := h.Changes.Subscribe(ctx, realtime.Filter{
		Table:   calendar.TableEvents,
		OwnerID: principal.ID,
		RowID:   strings.TrimSpace(r.URL.Query().Get("id")),
	}, func(n contracts.ChangeNotification) {
		select {
		case changes <- n:
		default:
			log.Warn("stream client too slow, dropping change", "row_id", n.RowID)
		}
	})
	if err != nil {
		log.Error("stream subscription failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "stream subscription failed")
		return
	}
	defer sub.Unsubscribe()
	streamsOpen.Inc()
	defer streamsOpen.Dec()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	heartbeat := h.Heartbeat
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case n := <-changes:
			payload, err := json.Marshal(toStreamMessage(n))
			if err != nil {
				log.Warn("encode stream message", "error", err)
				continue
			}
			fmt.Fprintf(w, "id: %s\n", n.ID)
			fmt.Fprintf(w, "event: %s\n", strings.ToLower(n.Kind))
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

// toStreamMessage converts the storage-form record to the UI shape. Deletes
// carry only the id.
func toStreamMessage(n contracts.ChangeNotification) streamMessage {
	msg := streamMessage{Kind: n.Kind, EventID: n.RowID, OccurredAt: n.OccurredAt}
	if n.Kind == contracts.ChangeDelete || n.Record == nil {
		return msg
	}
	if ev, err := calendar.FromStorage(calendar.Record(n.Record)); err == nil {
		msg.Event = &ev
	}
	return msg
}
