package email

import (
	"context"
	"fmt"
	"net/smtp"

	"go.uber.org/zap"
)

// SMTPNotifier alerts the operations address when a job fails
// permanently. The upload contract carries no user identity, so there is
// nobody else to mail.
type SMTPNotifier struct {
	host   string
	port   int
	from   string
	to     string
	logger *zap.Logger
}

func NewSMTPNotifier(host string, port int, from, to string, logger *zap.Logger) *SMTPNotifier {
	return &SMTPNotifier{host: host, port: port, from: from, to: to, logger: logger}
}

func (n *SMTPNotifier) NotifyFailure(_ context.Context, jobID, stage, errMsg string) error {
	addr := fmt.Sprintf("%s:%d", n.host, n.port)

	subject := fmt.Sprintf("PrivacyLens - job %s failed during %s", jobID, stage)
	body := fmt.Sprintf(
		"Job ID: %s\r\nStage: %s\r\nError: %s\r\n", jobID, stage, errMsg,
	)
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		n.from, n.to, subject, body,
	)

	if err := smtp.SendMail(addr, nil, n.from, []string{n.to}, []byte(msg)); err != nil {
		n.logger.Error("failed to send failure notification",
			zap.String("job_id", jobID),
			zap.Error(err),
		)
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

// NopNotifier is used when SMTP is not configured.
type NopNotifier struct{}

func (NopNotifier) NotifyFailure(context.Context, string, string, string) error { return nil }
