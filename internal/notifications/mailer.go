package notifications

import (
	"context"
	"errors"
	"strings"

	"github.com/angelmondragon/vibes-market-backend/pkg/logger"
)

// Template names understood by the mail renderer.
const (
	TemplateOrderConfirmation = "order_confirmation"
	TemplateNewOrderForSeller = "new_order_for_seller"
	TemplateCoinCharged       = "coin_charged"
)

var errRecipientRequired = errors.New("notification recipient is required")

// Message is a rendered-later e-mail: the template and its variables.
type Message struct {
	To       string
	Template string
	Data     map[string]any
}

// Mailer delivers transactional e-mails.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// LogMailer records messages in the structured log instead of delivering them.
type LogMailer struct {
	logg *logger.Logger
}

func NewLogMailer(logg *logger.Logger) *LogMailer {
	return &LogMailer{logg: logg}
}

func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return errRecipientRequired
	}
	if m == nil || m.logg == nil {
		return nil
	}
	ctx = m.logg.WithFields(ctx, map[string]any{
		"to":       msg.To,
		"template": msg.Template,
	})
	m.logg.Info(ctx, "notification e-mail queued")
	return nil
}

// SendBestEffort delivers every message and logs failures. It never returns an
// error: a failed notification must not undo the state change it reports.
func SendBestEffort(ctx context.Context, mailer Mailer, logg *logger.Logger, msgs ...Message) {
	if mailer == nil {
		return
	}
	for _, msg := range msgs {
		if err := mailer.Send(ctx, msg); err != nil && logg != nil {
			logg.Error(logg.WithFields(ctx, map[string]any{
				"to":       msg.To,
				"template": msg.Template,
			}), "send notification e-mail", err)
		}
	}
}
