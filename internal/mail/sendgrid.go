package mail

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"rental/internal/logger"
)

// Attachment is a file attached to an outgoing email.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Message is an outgoing email.
type Message struct {
	ToEmail     string
	ToName      string
	Subject     string
	PlainText   string
	Attachments []Attachment
}

type sender interface {
	SendWithContext(ctx context.Context, email *sgmail.SGMailV3) (*rest.Response, error)
}

// SendGridMailer sends transactional email through SendGrid.
type SendGridMailer struct {
	client    sender
	fromEmail string
	fromName  string
}

// NewSendGridMailer creates a new SendGridMailer.
func NewSendGridMailer(apiKey, fromEmail, fromName string) *SendGridMailer {
	return &SendGridMailer{
		client:    sendgrid.NewSendClient(apiKey),
		fromEmail: fromEmail,
		fromName:  fromName,
	}
}

// Send delivers msg.
func (s *SendGridMailer) Send(ctx context.Context, msg Message) error {
	logger.ExternalServiceCall(ctx, "sendgrid", "send", map[string]any{"to": msg.ToEmail})

	response, err := s.client.SendWithContext(ctx, s.build(msg))
	if err != nil {
		err = fmt.Errorf("failed to send email: %w", err)
	} else if response.StatusCode >= 400 {
		err = fmt.Errorf("sendgrid error: status %d, body: %s", response.StatusCode, response.Body)
	}

	logger.ExternalServiceResult(ctx, "sendgrid", "send", err)
	return err
}

func (s *SendGridMailer) build(msg Message) *sgmail.SGMailV3 {
	from := sgmail.NewEmail(s.fromName, s.fromEmail)
	to := sgmail.NewEmail(msg.ToName, msg.ToEmail)
	message := sgmail.NewSingleEmailPlainText(from, msg.Subject, to, msg.PlainText)

	for _, a := range msg.Attachments {
		att := sgmail.NewAttachment()
		att.SetContent(base64.StdEncoding.EncodeToString(a.Content))
		att.SetType(a.ContentType)
		att.SetFilename(a.Filename)
		att.SetDisposition("attachment")
		message.AddAttachment(att)
	}

	return message
}
