// Package mailer delivers transactional email through SendGrid.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// ErrSendingRestricted reports that the provider refused to send on behalf of
// the configured sender, or that no provider credentials are configured.
var ErrSendingRestricted = errors.New("email sending is restricted for this sender")

// Message is a single outbound email.
type Message struct {
	ToName    string
	ToAddress string
	Subject   string
	Text      string
	HTML      string
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type client interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGrid sends mail through the SendGrid v3 API.
type SendGrid struct {
	client client
	from   *mail.Email
}

// NewSendGrid builds a SendGrid sender. An empty API key yields a sender that
// reports every message as restricted.
func NewSendGrid(apiKey, fromAddress, fromName string) *SendGrid {
	s := &SendGrid{from: mail.NewEmail(fromName, fromAddress)}
	if strings.TrimSpace(apiKey) != "" {
		s.client = sendgrid.NewSendClient(apiKey)
	}
	return s
}

// Send delivers msg. 401 and 403 responses map to ErrSendingRestricted.
func (s *SendGrid) Send(ctx context.Context, msg Message) error {
	if s.client == nil {
		return fmt.Errorf("sendgrid api key not configured: %w", ErrSendingRestricted)
	}
	if msg.ToAddress == "" {
		return errors.New("recipient address is required")
	}

	to := mail.NewEmail(msg.ToName, msg.ToAddress)
	email := mail.NewSingleEmail(s.from, msg.Subject, to, msg.Text, msg.HTML)

	resp, err := s.client.SendWithContext(ctx, email)
	if err != nil {
		return fmt.Errorf("send email to %s: %w", msg.ToAddress, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("sendgrid status %d: %w", resp.StatusCode, ErrSendingRestricted)
	default:
		return fmt.Errorf("sendgrid status %d: %s", resp.StatusCode, strings.TrimSpace(resp.Body))
	}
}
