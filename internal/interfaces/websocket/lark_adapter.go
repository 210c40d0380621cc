package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkdispatcher "github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	larkws "github.com/larksuite/oapi-sdk-go/v3/ws"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-pipeline/internal/infrastructure/external/lark"
)

// LarkAdapter holds a Lark long connection open and answers text messages
// sent to the bot with the output of Commands.
type LarkAdapter struct {
	appID     string
	appSecret string
	commands  *Commands
	sender    lark.MessageSender
	logger    *zap.Logger

	wsClient *larkws.Client
	mu       sync.RWMutex
	started  bool
}

// LarkAdapterConfig holds the bot's app credentials
type LarkAdapterConfig struct {
	AppID     string
	AppSecret string
}

// NewLarkAdapter creates a chat command adapter that replies through sender
func NewLarkAdapter(cfg LarkAdapterConfig, commands *Commands, sender lark.MessageSender, logger *zap.Logger) *LarkAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LarkAdapter{
		appID:     cfg.AppID,
		appSecret: cfg.AppSecret,
		commands:  commands,
		sender:    sender,
		logger:    logger,
	}
}

// Name identifies the adapter in the worker manager
func (a *LarkAdapter) Name() string {
	return "lark-commands"
}

// Start opens the long connection in the background. The SDK client keeps
// reconnecting on its own; the connection lives until the process exits.
func (a *LarkAdapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		return fmt.Errorf("adapter already started")
	}
	if a.appID == "" || a.appSecret == "" {
		return lark.ErrNotConfigured
	}

	// Verification token and encrypt key are not used on the long connection
	sdkDispatcher := larkdispatcher.NewEventDispatcher("", "").
		OnP2MessageReceiveV1(a.handleMessage)

	a.wsClient = larkws.NewClient(a.appID, a.appSecret,
		larkws.WithEventHandler(sdkDispatcher),
		larkws.WithLogLevel(larkcore.LogLevelInfo))
	a.started = true

	a.logger.Info("Starting Lark command listener", zap.String("app_id", a.appID))

	client := a.wsClient
	go func() {
		if err := client.Start(ctx); err != nil {
			a.logger.Error("Lark long connection error", zap.Error(err))
		}
	}()
	return nil
}

// Stop marks the adapter stopped. Messages that arrive afterwards are ignored.
func (a *LarkAdapter) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.started {
		return nil
	}
	a.started = false
	a.logger.Info("Lark command listener stopped")
	return nil
}

// IsRunning returns whether the adapter is currently running
func (a *LarkAdapter) IsRunning() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.started
}

type textContent struct {
	Text string `json:"text"`
}

// handleMessage answers a text message in the chat it came from
func (a *LarkAdapter) handleMessage(ctx context.Context, evt *larkim.P2MessageReceiveV1) error {
	if !a.IsRunning() || evt == nil || evt.Event == nil || evt.Event.Message == nil {
		return nil
	}
	msg := evt.Event.Message

	if stringValue(msg.MessageType) != "text" {
		a.logger.Debug("Ignoring non-text message", zap.String("type", stringValue(msg.MessageType)))
		return nil
	}
	chatID := stringValue(msg.ChatId)
	if chatID == "" {
		return nil
	}

	var in textContent
	if err := json.Unmarshal([]byte(stringValue(msg.Content)), &in); err != nil {
		a.logger.Warn("Failed to parse message content", zap.Error(err))
		return nil
	}

	reply := a.commands.Execute(ctx, in.Text)
	content, err := json.Marshal(textContent{Text: reply})
	if err != nil {
		return fmt.Errorf("failed to marshal reply: %w", err)
	}

	messageID, err := a.sender.SendMessage(ctx, lark.ReceiveIDChat, chatID, "text", string(content))
	if err != nil {
		a.logger.Error("Failed to send command reply", zap.String("chat_id", chatID), zap.Error(err))
		return err
	}
	a.logger.Info("Command answered",
		zap.String("chat_id", chatID),
		zap.String("message_id", messageID))
	return nil
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
