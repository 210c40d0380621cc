package dispatcher

import (
	"context"

	"github.com/garyjia/invoice-pipeline/internal/domain/event"
)

// Handler processes pipeline events
type Handler func(ctx context.Context, evt *event.Event) error

// HandlerInfo names a registered handler for logs and tests
type HandlerInfo struct {
	Name      string
	EventType event.Type
	Handler   Handler
}
