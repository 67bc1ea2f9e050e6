package sse

import (
	"encoding/json/v2"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/stacksapp/stacks-server/internal/events"
)

const (
	heartbeatInterval = 30 * time.Second
	writeDeadline     = 60 * time.Second
)

// Handler streams catalog events at GET /api/v1/events/books.
type Handler struct {
	bus    *events.Bus
	logger *slog.Logger
	topic  events.Topic
}

// NewHandler creates an SSE handler bound to a bus topic.
func NewHandler(bus *events.Bus, topic events.Topic, logger *slog.Logger) *Handler {
	return &Handler{
		bus:    bus,
		topic:  topic,
		logger: logger,
	}
}

// ServeHTTP subscribes the caller to the topic and streams events until
// the client disconnects or the bus shuts down.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Early client disconnect.
	if r.Context().Err() != nil {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	rc := http.NewResponseController(w)

	// Flush headers immediately.
	if err := rc.Flush(); err != nil {
		h.logger.Error("failed to flush headers", slog.String("error", err.Error()))
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	sub, err := h.bus.Subscribe(h.topic)
	if err != nil {
		h.logger.Error("failed to register subscriber", slog.String("error", err.Error()))
		http.Error(w, "Failed to establish connection", http.StatusInternalServerError)
		return
	}
	defer sub.Unsubscribe()

	subLogger := h.logger.With(slog.String("subscription_id", sub.ID))
	subLogger.Info("event stream connected", slog.String("topic", string(h.topic)))

	if err := h.sendEvent(w, rc, "connected", map[string]string{
		"subscription_id": sub.ID,
		"topic":           string(h.topic),
	}); err != nil {
		subLogger.Warn("failed to send initial connection message", slog.String("error", err.Error()))
		return
	}

	ctx := r.Context()

	heartbeatTicker := time.NewTicker(heartbeatInterval)
	defer heartbeatTicker.Stop()

	for {
		select {
		case event, ok := <-sub.C:
			if !ok {
				// Bus shut down and closed the subscription.
				subLogger.Info("subscription closed by bus")
				return
			}
			if err := h.sendEvent(w, rc, string(event.Topic), event.Payload); err != nil {
				// Client disconnect is normal, not an error condition.
				subLogger.Info("client disconnected during send")
				return
			}

		case <-heartbeatTicker.C:
			if err := h.sendHeartbeat(w, rc); err != nil {
				subLogger.Info("client disconnected during heartbeat")
				return
			}

		case <-ctx.Done():
			subLogger.Info("client context canceled",
				slog.Duration("duration", time.Since(sub.ConnectedAt)))
			return
		}
	}
}

// sendEvent writes a single SSE frame and flushes it.
func (h *Handler) sendEvent(w http.ResponseWriter, rc *http.ResponseController, eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	if _, err := fmt.Fprintf(w, "event: %s\n", eventType); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", jsonData); err != nil {
		return err
	}

	if err := rc.Flush(); err != nil {
		return err
	}

	h.resetWriteDeadline(rc)
	return nil
}

// sendHeartbeat writes an SSE comment line to keep the connection alive.
func (h *Handler) sendHeartbeat(w http.ResponseWriter, rc *http.ResponseController) error {
	if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
		return err
	}
	if err := rc.Flush(); err != nil {
		return err
	}

	h.resetWriteDeadline(rc)
	return nil
}

// resetWriteDeadline pushes the write deadline out after a successful
// write. Every frame, heartbeats included, extends the connection; only
// a connection that cannot be written for the full deadline is severed.
func (h *Handler) resetWriteDeadline(rc *http.ResponseController) {
	if err := rc.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
		// Not all ResponseWriters support deadlines.
		h.logger.Debug("failed to set write deadline", slog.String("error", err.Error()))
	}
}
