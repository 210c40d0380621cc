package lark

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/garyjia/invoice-pipeline/internal/application/port"
	"github.com/garyjia/invoice-pipeline/internal/domain/entity"
	"github.com/garyjia/invoice-pipeline/pkg/utils"
)

// MessageSender is the slice of the Lark message API the notifier needs
type MessageSender interface {
	SendMessage(ctx context.Context, receiveIDType, receiveID, msgType, content string) (string, error)
}

// Notifier posts each final decision as a text message to one Lark recipient
type Notifier struct {
	sender        MessageSender
	receiveID     string
	receiveIDType string
	logger        *zap.Logger
}

var _ port.DecisionNotifier = (*Notifier)(nil)

// NewNotifier creates a decision notifier. The receive id type defaults to chat_id.
func NewNotifier(sender MessageSender, cfg Config, logger *zap.Logger) (*Notifier, error) {
	if sender == nil || cfg.ReceiveID == "" {
		return nil, ErrNotConfigured
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	idType := cfg.ReceiveIDType
	if idType == "" {
		idType = ReceiveIDChat
	}
	return &Notifier{
		sender:        sender,
		receiveID:     cfg.ReceiveID,
		receiveIDType: idType,
		logger:        logger,
	}, nil
}

// NotifyDecision sends a summary of the run's final decision
func (n *Notifier) NotifyDecision(ctx context.Context, result *entity.PipelineResult) error {
	if result == nil || result.Decision == nil {
		return nil
	}

	content, err := json.Marshal(map[string]string{"text": FormatDecision(result)})
	if err != nil {
		return fmt.Errorf("failed to marshal message content: %w", err)
	}

	messageID, err := n.sender.SendMessage(ctx, n.receiveIDType, n.receiveID, "text", string(content))
	if err != nil {
		return err
	}

	n.logger.Info("Decision notification sent",
		zap.String("run_id", result.RunID),
		zap.String("message_id", messageID))
	return nil
}

// FormatDecision renders a plain-text summary of a pipeline result
func FormatDecision(result *entity.PipelineResult) string {
	var b strings.Builder

	vendor, number, amount := "unknown vendor", "(no number)", "unknown amount"
	if inv := result.Invoice; inv != nil {
		vendor = inv.Vendor
		if inv.InvoiceNumber != "" {
			number = inv.InvoiceNumber
		}
		amount = utils.FormatMoney(inv.Amount, inv.Currency)
	}

	verdict := "REJECTED"
	switch {
	case result.Failed():
		verdict = "FAILED"
	case result.Approved():
		verdict = "APPROVED"
	}
	fmt.Fprintf(&b, "Invoice %s from %s for %s: %s", number, vendor, amount, verdict)

	if d := result.Decision; d != nil {
		if d.RevisionApplied {
			b.WriteString(" (revised on reflection)")
		}
		for _, r := range d.Reasons {
			fmt.Fprintf(&b, "\n- %s", r)
		}
	}
	if result.Failed() {
		fmt.Fprintf(&b, "\nError: %s", result.InternalError)
	}

	if p := result.Payment; p != nil {
		fmt.Fprintf(&b, "\nPayment: %s", p.Status)
		if p.ReferenceID != "" {
			fmt.Fprintf(&b, " %s", p.ReferenceID)
		}
	}
	fmt.Fprintf(&b, "\nRun: %s", result.RunID)
	return b.String()
}
