package telegram

import (
	"context"
	"log/slog"

	"github.com/starford/tripwatch/internal/message"
)

// Notifier posts trip messages through a Client.
type Notifier struct {
	client *Client
}

// NewNotifier wraps client.
func NewNotifier(client *Client) *Notifier {
	return &Notifier{client: client}
}

// Send posts text to destination.
func (n *Notifier) Send(ctx context.Context, destination, text string) error {
	return n.client.SendMessage(ctx, destination, message.Truncate(text))
}

// Reporter logs cycle failures and forwards them to the maintainer chat.
// Delivery problems are logged and otherwise ignored.
type Reporter struct {
	client     *Client
	maintainer string
	logger     *slog.Logger
}

// NewReporter creates a reporter. An empty maintainer disables forwarding.
func NewReporter(client *Client, maintainer string, logger *slog.Logger) *Reporter {
	return &Reporter{client: client, maintainer: maintainer, logger: logger}
}

// Report logs the failure and sends it to the maintainer.
func (r *Reporter) Report(ctx context.Context, kind string, err error, msg string) {
	attrs := []any{slog.String("kind", kind), slog.String("context", msg)}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	r.logger.Error("reporting failure to maintainer", attrs...)

	if r.client == nil || r.maintainer == "" {
		return
	}
	if sendErr := r.client.SendMessage(ctx, r.maintainer, message.Error(kind, err, msg)); sendErr != nil {
		r.logger.Error("failed to deliver failure report",
			slog.String("kind", kind),
			slog.String("error", sendErr.Error()))
	}
}
