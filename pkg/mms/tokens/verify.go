package tokens

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mikepea/mms/pkg/mms/apperr"
	"github.com/mikepea/mms/pkg/mms/metrics"
	"gorm.io/gorm"
)

const flowVerifyEmail = "verify_email"

// VerifyEmail confirms a registration with an email verification token.
// The account is enabled in the same transaction that consumes the token.
func (l *Lifecycle) VerifyEmail(ctx context.Context, raw string) Outcome {
	outcome := l.verifyEmail(ctx, raw)
	metrics.ObserveFlowOutcome(flowVerifyEmail, string(outcome))
	return outcome
}

func (l *Lifecycle) verifyEmail(ctx context.Context, raw string) Outcome {
	user, err := l.ResolveUser(ctx, raw)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return OutcomeVerificationInvalid
		}
		l.logger.Error("resolve token owner", slog.String("error", err.Error()))
		return OutcomeError
	}
	if user.Enabled {
		return OutcomeAlreadyVerified
	}

	var validity Validity
	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txl := l.WithTx(tx)
		v, err := txl.CheckValidity(ctx, raw)
		if err != nil {
			return err
		}
		validity = v
		if v != Valid {
			return nil
		}
		return txl.users.Enable(ctx, user.ID)
	})
	if err != nil {
		l.logger.Error("verify email", slog.Uint64("user_id", uint64(user.ID)), slog.String("error", err.Error()))
		return OutcomeError
	}

	switch validity {
	case Invalid:
		return OutcomeVerificationInvalid
	case Expired:
		return OutcomeVerificationExpired
	}

	l.logger.Info("email verified", slog.Uint64("user_id", uint64(user.ID)))
	if err := l.mail.SendVerificationSuccess(ctx, user); err != nil {
		return OutcomeEmailSendError
	}
	return OutcomeVerificationValid
}
