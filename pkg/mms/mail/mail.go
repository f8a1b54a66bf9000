package mail

import (
	"context"
	"fmt"
	"html"
	"log/slog"

	"github.com/mikepea/mms/pkg/mms/config"
	"github.com/mikepea/mms/pkg/mms/logging"
	"github.com/mikepea/mms/pkg/mms/metrics"
	"github.com/mikepea/mms/pkg/mms/models"
	"gopkg.in/gomail.v2"
)

// Sender delivers the account notifications. Every call may fail with a
// messaging error; callers map failures to outcome tags.
type Sender interface {
	SendVerification(ctx context.Context, user *models.User, link string) error
	ResendVerification(ctx context.Context, user *models.User, link string) error
	SendVerificationSuccess(ctx context.Context, user *models.User) error
	SendChangePasswordRequest(ctx context.Context, user *models.User, link string) error
	SendForgotPasswordRequest(ctx context.Context, user *models.User, link string) error
	SendPasswordChanged(ctx context.Context, user *models.User) error
}

// Template names, also used as metric labels
const (
	TemplateVerification        = "verification"
	TemplateResendVerification  = "resend_verification"
	TemplateVerificationSuccess = "verification_success"
	TemplateChangePassword      = "change_password"
	TemplateForgotPassword      = "forgot_password"
	TemplatePasswordChanged     = "password_changed"
)

// Message is a rendered notification.
type Message struct {
	Template string
	To       string
	Subject  string
	Body     string
}

func render(template string, user *models.User, link string) Message {
	name := html.EscapeString(user.FirstName)
	msg := Message{Template: template, To: user.Email}

	switch template {
	case TemplateVerification:
		msg.Subject = "New Account Registration"
		msg.Body = fmt.Sprintf("<p>Hello %s,</p><p>Thank you for registering. Please confirm your email address within 2 minutes:</p><p><a href=\"%s\">Verify email</a></p>", name, link)
	case TemplateResendVerification:
		msg.Subject = "Account Verification Request"
		msg.Body = fmt.Sprintf("<p>Hello %s,</p><p>Here is your new verification link, valid for 2 minutes:</p><p><a href=\"%s\">Verify email</a></p>", name, link)
	case TemplateVerificationSuccess:
		msg.Subject = "Successful email verification"
		msg.Body = fmt.Sprintf("<p>Hello %s,</p><p>Your email address has been verified. You can now sign in.</p>", name)
	case TemplateChangePassword:
		msg.Subject = "Change Password"
		msg.Body = fmt.Sprintf("<p>Hello %s,</p><p>Use the link below within 3 minutes to change your password:</p><p><a href=\"%s\">Change password</a></p>", name, link)
	case TemplateForgotPassword:
		msg.Subject = "Forgot Password"
		msg.Body = fmt.Sprintf("<p>Hello %s,</p><p>Use the link below within 3 minutes to reset your password:</p><p><a href=\"%s\">Reset password</a></p><p>If you did not ask for this, ignore this email.</p>", name, link)
	case TemplatePasswordChanged:
		msg.Subject = "Password Successfully Changed"
		msg.Body = fmt.Sprintf("<p>Hello %s,</p><p>Your password has been changed.</p>", name)
	}
	return msg
}

// Dialer is the part of gomail.Dialer used for delivery.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPSender sends notifications through an SMTP relay.
type SMTPSender struct {
	dialer   Dialer
	from     string
	fromName string
	logger   *slog.Logger
}

// NewSMTPSender creates a sender from SMTP settings
func NewSMTPSender(cfg config.SMTPConfig, logger *slog.Logger) *SMTPSender {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)
	return NewSMTPSenderWithDialer(d, cfg.From, cfg.FromName, logger)
}

// NewSMTPSenderWithDialer creates a sender over an explicit dialer
func NewSMTPSenderWithDialer(d Dialer, from, fromName string, logger *slog.Logger) *SMTPSender {
	return &SMTPSender{dialer: d, from: from, fromName: fromName, logger: logging.OrDefault(logger)}
}

func (s *SMTPSender) send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.from, s.fromName)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.Body)

	err := s.dialer.DialAndSend(m)
	metrics.ObserveMail(msg.Template, err)
	if err != nil {
		s.logger.Warn("mail delivery failed",
			slog.String("template", msg.Template),
			slog.String("to", msg.To),
			slog.String("error", err.Error()))
		return fmt.Errorf("send %s mail: %w", msg.Template, err)
	}
	s.logger.Debug("mail sent", slog.String("template", msg.Template), slog.String("to", msg.To))
	return nil
}

func (s *SMTPSender) SendVerification(ctx context.Context, user *models.User, link string) error {
	return s.send(ctx, render(TemplateVerification, user, link))
}

func (s *SMTPSender) ResendVerification(ctx context.Context, user *models.User, link string) error {
	return s.send(ctx, render(TemplateResendVerification, user, link))
}

func (s *SMTPSender) SendVerificationSuccess(ctx context.Context, user *models.User) error {
	return s.send(ctx, render(TemplateVerificationSuccess, user, ""))
}

func (s *SMTPSender) SendChangePasswordRequest(ctx context.Context, user *models.User, link string) error {
	return s.send(ctx, render(TemplateChangePassword, user, link))
}

func (s *SMTPSender) SendForgotPasswordRequest(ctx context.Context, user *models.User, link string) error {
	return s.send(ctx, render(TemplateForgotPassword, user, link))
}

func (s *SMTPSender) SendPasswordChanged(ctx context.Context, user *models.User) error {
	return s.send(ctx, render(TemplatePasswordChanged, user, ""))
}
