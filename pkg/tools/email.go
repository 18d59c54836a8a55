package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zen-systems/ticketflow/pkg/events"
)

// EmailInput is an outbound customer email.
type EmailInput struct {
	To      string
	Subject string
	Body    string
}

// Summary implements Input.
func (in EmailInput) Summary() string {
	return fmt.Sprintf("to=%s subject=%q", in.To, in.Subject)
}

// EmailResult is a sent message.
type EmailResult struct {
	MessageID string `json:"message_id"`
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Status    string `json:"status"`
}

func (r EmailResult) String() string {
	return fmt.Sprintf("email %s sent to %s", r.MessageID, r.Recipient)
}

// EmailTool sends customer emails through an event publisher, which hands
// them to the mail delivery service.
type EmailTool struct {
	publisher events.Publisher
	faults    *Faults
	logger    *zap.Logger
}

// NewEmailTool creates the email_sender tool. A nil publisher only logs.
func NewEmailTool(publisher events.Publisher, faults *Faults, logger *zap.Logger) *EmailTool {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmailTool{publisher: publisher, faults: faults, logger: logger}
}

// Name implements Tool.
func (t *EmailTool) Name() string { return EmailSender }

// Description implements Tool.
func (t *EmailTool) Description() string {
	return "Send emails to customers for confirmations, notifications, and updates"
}

// Execute implements Tool.
func (t *EmailTool) Execute(ctx context.Context, in Input) Outcome {
	msg, isEmail := in.(EmailInput)
	if !isEmail {
		return unsupported(t.Name(), in)
	}
	if !strings.Contains(msg.To, "@") {
		return fail("invalid recipient %q", msg.To)
	}
	if t.faults.Fail() {
		return fail("email service temporarily unavailable")
	}

	id := "MSG-" + strings.ToUpper(uuid.NewString()[:8])
	payload := map[string]string{
		"message_id": id,
		"to":         msg.To,
		"subject":    msg.Subject,
		"body":       msg.Body,
	}
	if err := t.publisher.Publish(ctx, events.TypeNotificationEmail, id, payload); err != nil {
		return fail("email dispatch: %v", err)
	}

	t.logger.Info("email_sent",
		zap.String("message_id", id),
		zap.String("to", msg.To),
		zap.Int("body_length", len(msg.Body)),
	)
	return ok(EmailResult{MessageID: id, Recipient: msg.To, Subject: msg.Subject, Status: "sent"})
}
