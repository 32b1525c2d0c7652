package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/promptloop/promptloop/internal/domain"
	"github.com/promptloop/promptloop/internal/pkg/metrics"
)

// EventType identifies a kind of iteration lifecycle event. The set is
// closed: downstream clients switch on these values.
type EventType string

const (
	EventTypeStatus          EventType = "status"
	EventTypeRunProgress     EventType = "run-progress"
	EventTypeJudgingComplete EventType = "judging-complete"
	EventTypeMetrics         EventType = "metrics"
	EventTypeSafety          EventType = "safety"
	EventTypeRefinement      EventType = "refinement"
	EventTypeFailure         EventType = "failure"
)

// IsValid checks if the event type is valid
func (t EventType) IsValid() bool {
	switch t {
	case EventTypeStatus, EventTypeRunProgress, EventTypeJudgingComplete,
		EventTypeMetrics, EventTypeSafety, EventTypeRefinement, EventTypeFailure:
		return true
	}
	return false
}

// StatusPayload is the payload for status events
type StatusPayload struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// RunProgressPayload is the payload for run-progress events
type RunProgressPayload struct {
	CompletedRuns int `json:"completedRuns"`
	TotalRuns     int `json:"totalRuns"`
	FailedRuns    int `json:"failedRuns"`
}

// JudgingCompletePayload is the payload for judging-complete events
type JudgingCompletePayload struct {
	TotalOutputs int `json:"totalOutputs"`
}

// RefinementPayload is the payload for refinement events
type RefinementPayload struct {
	SuggestionID *string `json:"suggestionId"`
}

// FailurePayload is the payload for failure events
type FailurePayload struct {
	Message string `json:"message"`
}

// IterationEvent represents an event on an iteration's stream
type IterationEvent struct {
	Type        EventType `json:"type"`
	IterationID uuid.UUID `json:"iterationId"`
	Data        any       `json:"data"`
	Timestamp   time.Time `json:"timestamp"`
}

// EventSubscriber represents a connected listener for one iteration's events
type EventSubscriber struct {
	ID          string
	IterationID uuid.UUID
	Channel     chan *IterationEvent
	Done        chan struct{}
}

// EventBus fans iteration lifecycle events out to in-process subscribers.
// Publish is synchronous and fire-and-forget: there is no acknowledgement,
// retry, or persistence, and subscribers not listening at publish time miss
// the event. For a single iteration, events are delivered in publish order;
// no ordering holds across iterations. A subscriber whose buffer is full
// has that event dropped for it alone, so one slow listener cannot block or
// starve the others.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[string]*EventSubscriber
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[string]*EventSubscriber),
	}
}

// Subscribe creates a new subscription for an iteration
func (b *EventBus) Subscribe(ctx context.Context, iterationID uuid.UUID) *EventSubscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &EventSubscriber{
		ID:          uuid.New().String(),
		IterationID: iterationID,
		Channel:     make(chan *IterationEvent, 100),
		Done:        make(chan struct{}),
	}

	b.subscribers[sub.ID] = sub

	// Clean up when context is done
	go func() {
		select {
		case <-ctx.Done():
			b.Unsubscribe(sub.ID)
		case <-sub.Done:
		}
	}()

	return sub
}

// Unsubscribe removes a subscription
func (b *EventBus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subscribers[id]; ok {
		close(sub.Done)
		close(sub.Channel)
		delete(b.subscribers, id)
	}
}

// Publish sends an event to all subscribers of an iteration
func (b *EventBus) Publish(iterationID uuid.UUID, eventType EventType, data any) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	event := &IterationEvent{
		Type:        eventType,
		IterationID: iterationID,
		Data:        data,
		Timestamp:   time.Now(),
	}
	metrics.RecordEventPublished(string(eventType))

	for _, sub := range b.subscribers {
		if sub.IterationID == iterationID {
			select {
			case sub.Channel <- event:
			default:
				// Channel is full, skip this subscriber
			}
		}
	}
}

// PublishStatus publishes a status event
func (b *EventBus) PublishStatus(iterationID uuid.UUID, status domain.IterationStatus, reason string) {
	b.Publish(iterationID, EventTypeStatus, StatusPayload{
		Status: string(status),
		Reason: reason,
	})
}

// PublishRunProgress publishes a run-progress event
func (b *EventBus) PublishRunProgress(iterationID uuid.UUID, completed, total, failed int) {
	b.Publish(iterationID, EventTypeRunProgress, RunProgressPayload{
		CompletedRuns: completed,
		TotalRuns:     total,
		FailedRuns:    failed,
	})
}

// PublishJudgingComplete publishes a judging-complete event
func (b *EventBus) PublishJudgingComplete(iterationID uuid.UUID, totalOutputs int) {
	b.Publish(iterationID, EventTypeJudgingComplete, JudgingCompletePayload{
		TotalOutputs: totalOutputs,
	})
}

// PublishMetrics publishes a metrics event carrying the aggregated payload
func (b *EventBus) PublishMetrics(iterationID uuid.UUID, payload *domain.IterationMetrics) {
	b.Publish(iterationID, EventTypeMetrics, payload)
}

// PublishSafety publishes a safety event
func (b *EventBus) PublishSafety(iterationID uuid.UUID, summary *domain.SafetySummary) {
	b.Publish(iterationID, EventTypeSafety, summary)
}

// PublishRefinement publishes a refinement event
func (b *EventBus) PublishRefinement(iterationID uuid.UUID, suggestionID *string) {
	b.Publish(iterationID, EventTypeRefinement, RefinementPayload{
		SuggestionID: suggestionID,
	})
}

// PublishFailure publishes a failure event
func (b *EventBus) PublishFailure(iterationID uuid.UUID, message string) {
	b.Publish(iterationID, EventTypeFailure, FailurePayload{
		Message: message,
	})
}

// SubscriberCount returns the number of active subscribers for an iteration
func (b *EventBus) SubscriberCount(iterationID uuid.UUID) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := 0
	for _, sub := range b.subscribers {
		if sub.IterationID == iterationID {
			count++
		}
	}
	return count
}

// FormatSSE formats an event for SSE
func FormatSSE(event *IterationEvent) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}

	return append([]byte("data: "), append(data, '\n', '\n')...), nil
}
