package telegram

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/starford/tripwatch/internal/message"
)

// Commands answers chat commands sent to the bot. It shares nothing with
// running cycles.
type Commands struct {
	client  *Client
	channel string
	wait    time.Duration
	backoff time.Duration
	logger  *slog.Logger
}

// NewCommands creates a command handler. channel is advertised in the
// /start reply.
func NewCommands(client *Client, channel string, logger *slog.Logger) *Commands {
	return &Commands{
		client:  client,
		channel: channel,
		wait:    30 * time.Second,
		backoff: 5 * time.Second,
		logger:  logger,
	}
}

// Poll long-polls for updates until ctx is cancelled.
func (c *Commands) Poll(ctx context.Context) error {
	c.logger.Info("telegram: command polling started")
	var offset int64
	for {
		updates, err := c.client.GetUpdates(ctx, offset, c.wait)
		if ctx.Err() != nil {
			c.logger.Info("telegram: command polling stopped")
			return nil
		}
		if err != nil {
			c.logger.Warn("telegram: get updates failed", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.backoff):
			}
			continue
		}
		for _, u := range updates {
			offset = u.UpdateID + 1
			c.handle(ctx, u)
		}
	}
}

func (c *Commands) handle(ctx context.Context, u Update) {
	if u.Message == nil {
		return
	}
	cmd, _, _ := strings.Cut(strings.TrimSpace(u.Message.Text), " ")
	cmd, _, _ = strings.Cut(cmd, "@")
	switch cmd {
	case "/start":
		chatID := strconv.FormatInt(u.Message.Chat.ID, 10)
		if err := c.client.SendMessage(ctx, chatID, message.Start(c.channel)); err != nil {
			c.logger.Warn("telegram: reply to /start failed",
				slog.String("chat_id", chatID),
				slog.String("error", err.Error()))
		}
	default:
		c.logger.Debug("telegram: ignoring message", slog.Int64("update_id", u.UpdateID))
	}
}
