package notify

import (
	"context"
	"encoding/json"
	"fmt"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"

	"github.com/garyjia/purchase-approval/internal/application/port"
)

// receiveIDTypeEmail addresses a Lark user by their tenant email
const receiveIDTypeEmail = "email"

// LarkConfig holds the Lark app credentials
type LarkConfig struct {
	AppID     string
	AppSecret string
}

// MessageSender sends one IM message and returns its message id
type MessageSender interface {
	SendMessage(ctx context.Context, receiveIDType, receiveID, msgType, content string) (string, error)
}

// LarkMessenger sends IM messages through the Lark open API
type LarkMessenger struct {
	client *lark.Client
}

// NewLarkMessenger creates a messenger with token caching enabled
func NewLarkMessenger(cfg LarkConfig) *LarkMessenger {
	return &LarkMessenger{
		client: lark.NewClient(cfg.AppID, cfg.AppSecret,
			lark.WithLogLevel(larkcore.LogLevelWarn),
			lark.WithEnableTokenCache(true),
		),
	}
}

// SendMessage implements MessageSender
func (m *LarkMessenger) SendMessage(ctx context.Context, receiveIDType, receiveID, msgType, content string) (string, error) {
	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(receiveIDType).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(receiveID).
			MsgType(msgType).
			Content(content).
			Build()).
		Build()

	resp, err := m.client.Im.Message.Create(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to send message: %w", err)
	}
	if !resp.Success() {
		return "", fmt.Errorf("lark API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}

	if resp.Data != nil && resp.Data.MessageId != nil {
		return *resp.Data.MessageId, nil
	}
	return "", nil
}

// LarkNotifier delivers notifications as Lark text messages addressed to
// the recipient's directory email
type LarkNotifier struct {
	sender MessageSender
	users  port.UserDirectory
	logger *zap.Logger
}

// NewLarkNotifier creates a notifier on top of sender
func NewLarkNotifier(sender MessageSender, users port.UserDirectory, logger *zap.Logger) *LarkNotifier {
	return &LarkNotifier{
		sender: sender,
		users:  users,
		logger: logger,
	}
}

// Notify implements port.Notifier
func (n *LarkNotifier) Notify(ctx context.Context, msg port.Notification) error {
	user, err := n.users.FindByID(ctx, msg.RecipientID)
	if err != nil {
		return fmt.Errorf("failed to look up recipient %d: %w", msg.RecipientID, err)
	}
	if user == nil || !user.Active {
		return fmt.Errorf("recipient %d not found or inactive", msg.RecipientID)
	}
	if user.Email == "" {
		return fmt.Errorf("recipient %d has no email", msg.RecipientID)
	}

	content, err := textContent(msg)
	if err != nil {
		return err
	}

	messageID, err := n.sender.SendMessage(ctx, receiveIDTypeEmail, user.Email, "text", content)
	if err != nil {
		return fmt.Errorf("failed to notify %s: %w", user.Email, err)
	}

	n.logger.Info("Lark notification sent",
		zap.Int64("request_id", msg.RequestID),
		zap.Int64("recipient_id", user.ID),
		zap.String("message_id", messageID))
	return nil
}

func textContent(msg port.Notification) (string, error) {
	text := msg.Subject
	if msg.Body != "" {
		text += "\n" + msg.Body
	}
	raw, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return "", fmt.Errorf("failed to encode message: %w", err)
	}
	return string(raw), nil
}
