package handler

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/deliverhub/webhook-relay/internal/events"
	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
)

const heartbeatInterval = 15 * time.Second

// NewEventsHandler streams delivery lifecycle envelopes over SSE. A
// clientId query parameter scopes the stream to one client; without it the
// subscriber sees all envelopes. Heartbeat comments keep intermediaries
// from closing idle connections and surface dead consumers via flush
// errors.
func NewEventsHandler(broker *events.Broker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		clientID := strings.TrimSpace(c.Query("clientId"))

		ch, cancel, err := broker.Subscribe(c.Context(), clientID)
		if err != nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "event stream unavailable")
		}

		c.Set(fiber.HeaderContentType, "text/event-stream")
		c.Set(fiber.HeaderCacheControl, "no-cache")
		c.Set(fiber.HeaderConnection, "keep-alive")
		c.Set("X-Accel-Buffering", "no")

		c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
			defer cancel()

			heartbeat := time.NewTicker(heartbeatInterval)
			defer heartbeat.Stop()

			for {
				select {
				case envelope, ok := <-ch:
					if !ok {
						return
					}
					if err := writeEnvelope(w, envelope); err != nil {
						return
					}
				case <-heartbeat.C:
					if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
						return
					}
					if err := w.Flush(); err != nil {
						return
					}
				}
			}
		}))

		return nil
	}
}

func writeEnvelope(w *bufio.Writer, envelope events.Envelope) error {
	data, err := json.Marshal(envelope)
	if err != nil {
		return nil
	}

	if _, err := fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", envelope.ID, envelope.Kind, data); err != nil {
		return err
	}
	return w.Flush()
}
