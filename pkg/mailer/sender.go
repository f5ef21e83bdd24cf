package mailer

import (
	"context"
	"fmt"

	"github.com/Radia-Labs/radia-collectibles/pkg/logger"
	"github.com/Radia-Labs/radia-collectibles/pkg/metrics"

	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"
)

// Request contains the data needed to send one email.
type Request struct {
	To      []string
	Subject string
	HTML    string
}

// Sender is the interface for dispatching emails via an external provider.
type Sender interface {
	// Send queues the email for delivery and returns the provider's
	// message id.
	Send(ctx context.Context, req Request) (string, error)
}

// ResendSender sends emails via the Resend API.
type ResendSender struct {
	client *resend.Client
	from   string
	logger *logger.Logger
}

// NewResendSender creates a sender with the given API key and from address.
func NewResendSender(apiKey, from string, l *logger.Logger) *ResendSender {
	return &ResendSender{
		client: resend.NewClient(apiKey),
		from:   from,
		logger: l,
	}
}

// Send dispatches a single email.
func (s *ResendSender) Send(ctx context.Context, req Request) (string, error) {
	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      req.To,
		Subject: req.Subject,
		Html:    req.HTML,
	}

	sent, err := s.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		metrics.EmailSendErrorsTotal.Inc()
		return "", fmt.Errorf("resend send failed: %w", err)
	}

	s.logger.Debug("email sent",
		zap.String("message_id", sent.Id),
		zap.String("subject", req.Subject))
	return sent.Id, nil
}

// NoopSender drops emails. Used when no API key is configured so the rest
// of a run is unaffected by the missing integration.
type NoopSender struct {
	logger *logger.Logger
}

func NewNoopSender(l *logger.Logger) *NoopSender {
	return &NoopSender{logger: l}
}

func (s *NoopSender) Send(ctx context.Context, req Request) (string, error) {
	s.logger.Debug("email delivery disabled, dropping message", zap.String("subject", req.Subject))
	return "", nil
}
