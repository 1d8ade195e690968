package notify

import (
	"context"
	"fmt"

	"github.com/garyjia/purchase-approval/internal/application/port"
	"go.uber.org/zap"
)

// LogNotifier delivers notifications by writing them to the application log,
// addressed to the recipient's directory email
type LogNotifier struct {
	users  port.UserDirectory
	logger *zap.Logger
}

// NewLogNotifier creates a new LogNotifier
func NewLogNotifier(users port.UserDirectory, logger *zap.Logger) port.Notifier {
	return &LogNotifier{
		users:  users,
		logger: logger,
	}
}

// Notify looks up the recipient and logs the message. Inactive or unknown
// recipients are an error so the dispatcher records the failure.
func (n *LogNotifier) Notify(ctx context.Context, msg port.Notification) error {
	user, err := n.users.FindByID(ctx, msg.RecipientID)
	if err != nil {
		return fmt.Errorf("failed to look up recipient %d: %w", msg.RecipientID, err)
	}
	if user == nil || !user.Active {
		return fmt.Errorf("recipient %d not found or inactive", msg.RecipientID)
	}

	n.logger.Info("Notification",
		zap.Int64("request_id", msg.RequestID),
		zap.Int64("recipient_id", user.ID),
		zap.String("to", user.Email),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body))

	return nil
}
