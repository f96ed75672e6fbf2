package notify

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Message is one outbound email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender is the external delivery collaborator. Calls may fail; the
// caller decides what to do about it (the queue marks rows failed).
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender logs messages instead of delivering them. Default sender
// for local runs and the CLI.
type LogSender struct {
	Logger *slog.Logger
}

// Send implements Sender by logging the message.
func (s LogSender) Send(_ context.Context, msg Message) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("email (log sender)",
		"to", msg.To,
		"subject", msg.Subject,
	)
	return nil
}

// acronyms that title-casing would mangle.
var displayOverrides = map[string]string{
	"rfi": "RFI",
}

var titleCaser = cases.Title(language.English)

// DisplayName renders an entity name for human-facing subjects:
// "rfi" -> "RFI", "engagement" -> "Engagement".
func DisplayName(entity string) string {
	if d, ok := displayOverrides[strings.ToLower(entity)]; ok {
		return d
	}
	return titleCaser.String(entity)
}
