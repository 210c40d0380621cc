package event

import (
	"time"

	"github.com/google/uuid"
)

// Event is a stage notification emitted while one invoice moves through the pipeline
type Event struct {
	ID          string                 `json:"id"`
	Type        Type                   `json:"type"`
	RunID       string                 `json:"run_id"`
	InvoicePath string                 `json:"invoice_path"`
	Payload     map[string]interface{} `json:"payload"`
	Timestamp   time.Time              `json:"timestamp"`
}

// NewEvent creates an event for one pipeline run
func NewEvent(eventType Type, runID, invoicePath string, payload map[string]interface{}) *Event {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return &Event{
		ID:          uuid.NewString(),
		Type:        eventType,
		RunID:       runID,
		InvoicePath: invoicePath,
		Payload:     payload,
		Timestamp:   time.Now().UTC(),
	}
}

// WithPayload returns a copy of the event with key set
func (e *Event) WithPayload(key string, value interface{}) *Event {
	payload := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		payload[k] = v
	}
	payload[key] = value

	cp := *e
	cp.Payload = payload
	return &cp
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if s, ok := e.Payload[key].(string); ok {
		return s
	}
	return ""
}

// GetPayloadFloat retrieves a numeric value from the payload
func (e *Event) GetPayloadFloat(key string) float64 {
	switch v := e.Payload[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

// GetPayloadBool retrieves a bool value from the payload
func (e *Event) GetPayloadBool(key string) bool {
	b, _ := e.Payload[key].(bool)
	return b
}
