package handler

import (
	"bufio"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/promptloop/promptloop/internal/service"
)

// EventsHandler handles Server-Sent Events endpoints
type EventsHandler struct {
	events *service.EventBus
	logger *zap.Logger
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(events *service.EventBus, logger *zap.Logger) *EventsHandler {
	return &EventsHandler{
		events: events,
		logger: logger,
	}
}

// StreamEvents handles GET /v1/iterations/:iterationId/events
func (h *EventsHandler) StreamEvents(c *fiber.Ctx) error {
	iterationID, err := uuid.Parse(c.Params("iterationId"))
	if err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid iteration ID")
	}

	// Set SSE headers
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("Transfer-Encoding", "chunked")
	c.Set("X-Accel-Buffering", "no") // Disable nginx buffering

	sub := h.events.Subscribe(c.Context(), iterationID)

	h.logger.Info("SSE client connected",
		zap.String("iteration_id", iterationID.String()),
		zap.String("subscriber_id", sub.ID),
	)

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		// Send initial connection event
		fmt.Fprintf(w, "event: connected\n")
		fmt.Fprintf(w, "data: {\"subscriberId\":\"%s\"}\n\n", sub.ID)
		w.Flush()

		// Send heartbeat every 30 seconds
		heartbeat := time.NewTicker(30 * time.Second)
		defer heartbeat.Stop()

		for {
			select {
			case event, ok := <-sub.Channel:
				if !ok {
					return
				}

				data, err := service.FormatSSE(event)
				if err != nil {
					h.logger.Error("failed to format SSE event", zap.Error(err))
					continue
				}

				fmt.Fprintf(w, "event: %s\n", event.Type)
				w.Write(data)
				w.Flush()

			case <-heartbeat.C:
				fmt.Fprintf(w, ": heartbeat\n\n")
				w.Flush()

			case <-sub.Done:
				return

			case <-c.Context().Done():
				h.events.Unsubscribe(sub.ID)
				return
			}
		}
	}))

	return nil
}

// GetSubscribers handles GET /v1/iterations/:iterationId/subscribers
func (h *EventsHandler) GetSubscribers(c *fiber.Ctx) error {
	iterationID, err := uuid.Parse(c.Params("iterationId"))
	if err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid iteration ID")
	}

	count := h.events.SubscriberCount(iterationID)

	return c.JSON(fiber.Map{
		"count": count,
	})
}

// RegisterRoutes registers event routes
func (h *EventsHandler) RegisterRoutes(app *fiber.App) {
	v1 := app.Group("/v1")

	v1.Get("/iterations/:iterationId/events", h.StreamEvents)
	v1.Get("/iterations/:iterationId/subscribers", h.GetSubscribers)
}
