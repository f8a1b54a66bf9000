package mail

import (
	"context"
	"log/slog"

	"github.com/mikepea/mms/pkg/mms/logging"
	"github.com/mikepea/mms/pkg/mms/metrics"
	"github.com/mikepea/mms/pkg/mms/models"
)

// LogSender writes notifications to the log. Used in development when no
// SMTP relay is configured; links are logged so flows can be completed by hand.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logging.OrDefault(logger)}
}

func (s *LogSender) log(msg Message, link string) error {
	metrics.ObserveMail(msg.Template, nil)
	s.logger.Info("mail",
		slog.String("template", msg.Template),
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.String("link", link))
	return nil
}

func (s *LogSender) SendVerification(_ context.Context, user *models.User, link string) error {
	return s.log(render(TemplateVerification, user, link), link)
}

func (s *LogSender) ResendVerification(_ context.Context, user *models.User, link string) error {
	return s.log(render(TemplateResendVerification, user, link), link)
}

func (s *LogSender) SendVerificationSuccess(_ context.Context, user *models.User) error {
	return s.log(render(TemplateVerificationSuccess, user, ""), "")
}

func (s *LogSender) SendChangePasswordRequest(_ context.Context, user *models.User, link string) error {
	return s.log(render(TemplateChangePassword, user, link), link)
}

func (s *LogSender) SendForgotPasswordRequest(_ context.Context, user *models.User, link string) error {
	return s.log(render(TemplateForgotPassword, user, link), link)
}

func (s *LogSender) SendPasswordChanged(_ context.Context, user *models.User) error {
	return s.log(render(TemplatePasswordChanged, user, ""), "")
}
