package tokens

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/mikepea/mms/pkg/mms/apperr"
	"github.com/mikepea/mms/pkg/mms/auth"
	"github.com/mikepea/mms/pkg/mms/logging"
	"github.com/mikepea/mms/pkg/mms/mail"
	"github.com/mikepea/mms/pkg/mms/metrics"
	"github.com/mikepea/mms/pkg/mms/models"
	"github.com/mikepea/mms/pkg/mms/users"
)

// Flow is a "send me a token" request type
type Flow string

const (
	FlowResendVerification Flow = "resend_verification"
	FlowChangePassword     Flow = "change_password_request"
	FlowForgotPassword     Flow = "forgot_password_request"
)

// Request paths that start each flow, relative to the API root
const (
	ResendVerificationPath = "/registration/resend-verification"
	ChangePasswordPath     = "/password/change/request"
	ForgotPasswordPath     = "/password/forgot/request"
)

// APIPrefix is where the token routes are mounted
const APIPrefix = "/api"

// Paths embedded in emailed links
const (
	VerifyEmailLinkPath    = APIPrefix + "/registration/verify-email"
	ChangePasswordLinkPath = APIPrefix + "/password/change"
	ForgotPasswordLinkPath = APIPrefix + "/password/reset"
)

// FlowForPath maps the invoking request path to its flow
func FlowForPath(path string) (Flow, bool) {
	switch {
	case strings.HasSuffix(path, ResendVerificationPath):
		return FlowResendVerification, true
	case strings.HasSuffix(path, ChangePasswordPath):
		return FlowChangePassword, true
	case strings.HasSuffix(path, ForgotPasswordPath):
		return FlowForgotPassword, true
	default:
		return "", false
	}
}

// Dispatcher issues tokens on request and mails the callback links.
type Dispatcher struct {
	users          *users.Store
	verification   *Lifecycle
	changePassword *Lifecycle
	forgotPassword *Lifecycle
	mail           mail.Sender
	logger         *slog.Logger
}

// NewDispatcher creates a dispatcher over the three lifecycles
func NewDispatcher(userStore *users.Store, verification, changePassword, forgotPassword *Lifecycle, sender mail.Sender, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		users:          userStore,
		verification:   verification,
		changePassword: changePassword,
		forgotPassword: forgotPassword,
		mail:           sender,
		logger:         logging.OrDefault(logger),
	}
}

// Dispatch runs flow for the account identified by email. baseURL is the
// application URL links are built on.
func (d *Dispatcher) Dispatch(ctx context.Context, flow Flow, email, baseURL string, session auth.Session) Outcome {
	outcome := d.dispatch(ctx, flow, email, baseURL, session)
	metrics.ObserveFlowOutcome(string(flow), string(outcome))
	return outcome
}

func (d *Dispatcher) dispatch(ctx context.Context, flow Flow, email, baseURL string, session auth.Session) Outcome {
	user, err := d.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return OutcomeEmailNotFound
		}
		d.logger.Error("dispatch lookup", slog.String("flow", string(flow)), slog.String("error", err.Error()))
		return OutcomeError
	}

	switch flow {
	case FlowResendVerification:
		if user.Enabled {
			return OutcomeEmailVerified
		}
		return d.send(ctx, d.verification, user, baseURL, VerifyEmailLinkPath, d.mail.ResendVerification)

	case FlowChangePassword:
		if session == nil || session.IsAnonymous() || session.UserID() != user.ID {
			return OutcomeUnauthorized
		}
		return d.send(ctx, d.changePassword, user, baseURL, ChangePasswordLinkPath, d.mail.SendChangePasswordRequest)

	case FlowForgotPassword:
		if !user.AccountNonLocked {
			return OutcomeAccountLocked
		}
		return d.send(ctx, d.forgotPassword, user, baseURL, ForgotPasswordLinkPath, d.mail.SendForgotPasswordRequest)

	default:
		return OutcomeNoAction
	}
}

type linkSender func(ctx context.Context, user *models.User, link string) error

func (d *Dispatcher) send(ctx context.Context, lc *Lifecycle, user *models.User, baseURL, linkPath string, sendFn linkSender) Outcome {
	raw := NewRawToken()
	if _, err := lc.Issue(ctx, user, raw); err != nil {
		d.logger.Error("issue token", slog.String("kind", string(lc.Kind())), slog.String("error", err.Error()))
		return OutcomeError
	}

	if err := sendFn(ctx, user, CallbackURL(baseURL, linkPath, raw)); err != nil {
		d.logger.Warn("token mail failed",
			slog.String("kind", string(lc.Kind())),
			slog.Uint64("user_id", uint64(user.ID)),
			slog.String("error", err.Error()))
		return OutcomeError
	}
	return OutcomeSuccess
}

// SendVerification issues a verification token for a new account and mails it.
func (d *Dispatcher) SendVerification(ctx context.Context, user *models.User, baseURL string) error {
	raw := NewRawToken()
	if _, err := d.verification.Issue(ctx, user, raw); err != nil {
		return err
	}
	if err := d.mail.SendVerification(ctx, user, CallbackURL(baseURL, VerifyEmailLinkPath, raw)); err != nil {
		return apperr.Wrap(apperr.KindMessaging, err, "send verification mail")
	}
	return nil
}
