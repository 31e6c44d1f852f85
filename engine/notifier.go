package engine

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// LogNotifier is the default approval.Notifier: it writes the prompt/resolution message to
// the structured log under the channel-target's own field. Grounded on
// services/approval_manager.py's send_message_callback, which is itself just an injected
// callback with no fixed transport — nothing in the example corpus ships a chat-messaging
// SDK, so the default implementation here is the ambient logging stack rather than a
// third-party client.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier builds a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify implements approval.Notifier and aiops.Executor's notifier dependency.
func (n *LogNotifier) Notify(ctx context.Context, channelTarget, message string) error {
	kind, target := splitChannelTarget(channelTarget)
	n.logger.Info("notification",
		zap.String("channel_type", kind),
		zap.String("channel_id", target),
		zap.String("message", message),
	)
	return nil
}

// splitChannelTarget parses the "<type>:<channel_id>" convention documented for
// aiops.notification_channel.
func splitChannelTarget(channelTarget string) (kind, target string) {
	parts := strings.SplitN(channelTarget, ":", 2)
	if len(parts) != 2 {
		return "log", channelTarget
	}
	return parts[0], parts[1]
}
