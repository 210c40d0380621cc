package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/invoice-pipeline/internal/application/dispatcher"
	"github.com/garyjia/invoice-pipeline/internal/application/port"
	"github.com/garyjia/invoice-pipeline/internal/domain/entity"
	"github.com/garyjia/invoice-pipeline/internal/domain/event"
)

// AuditLogHandler writes every stage event to the audit log
func AuditLogHandler(logger *zap.Logger) dispatcher.Handler {
	return func(ctx context.Context, evt *event.Event) error {
		fields := []zap.Field{
			zap.String("event_id", evt.ID),
			zap.String("event_type", evt.Type.String()),
			zap.String("run_id", evt.RunID),
			zap.String("invoice_path", evt.InvoicePath),
		}
		for k, v := range evt.Payload {
			if k == "result" {
				continue
			}
			fields = append(fields, zap.Any(k, v))
		}
		logger.Info("AUDIT", fields...)
		return nil
	}
}

// NotifyHandler forwards completed runs that reached a decision to notifier
func NotifyHandler(notifier port.DecisionNotifier) dispatcher.Handler {
	return func(ctx context.Context, evt *event.Event) error {
		result, ok := evt.Payload["result"].(*entity.PipelineResult)
		if !ok {
			return fmt.Errorf("event %s carries no pipeline result", evt.ID)
		}
		if result.Decision == nil {
			return nil
		}
		return notifier.NotifyDecision(ctx, result)
	}
}

// Subscribe registers the audit log and, when set, the decision notifier
func Subscribe(d dispatcher.Dispatcher, logger *zap.Logger, notifier port.DecisionNotifier) {
	if logger == nil {
		logger = zap.NewNop()
	}
	d.SubscribeAll("audit-log", AuditLogHandler(logger))
	if notifier != nil {
		d.SubscribeNamed(event.TypeRunCompleted, "decision-notifier", NotifyHandler(notifier))
	}
}
