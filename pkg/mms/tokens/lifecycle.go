package tokens

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mikepea/mms/pkg/mms/apperr"
	"github.com/mikepea/mms/pkg/mms/auth"
	"github.com/mikepea/mms/pkg/mms/logging"
	"github.com/mikepea/mms/pkg/mms/mail"
	"github.com/mikepea/mms/pkg/mms/metrics"
	"github.com/mikepea/mms/pkg/mms/models"
	"github.com/mikepea/mms/pkg/mms/tracing"
	"github.com/mikepea/mms/pkg/mms/users"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

// NewRawToken returns a fresh opaque token string
func NewRawToken() string {
	return uuid.NewString()
}

// Lifecycle is the token state machine for one kind. A token is ISSUED
// until a successful check consumes it; expiry is computed from ExpiresAt
// and never written back.
type Lifecycle struct {
	policy Policy
	db     *gorm.DB
	store  Store
	users  *users.Store
	mail   mail.Sender
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Lifecycle
type Option func(*Lifecycle)

// WithClock replaces the time source
func WithClock(now func() time.Time) Option {
	return func(l *Lifecycle) { l.now = now }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(l *Lifecycle) { l.logger = logger }
}

// NewLifecycle creates the lifecycle for one token kind
func NewLifecycle(db *gorm.DB, policy Policy, store Store, userStore *users.Store, sender mail.Sender, opts ...Option) *Lifecycle {
	l := &Lifecycle{
		policy: policy,
		db:     db,
		store:  store,
		users:  userStore,
		mail:   sender,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = logging.OrDefault(l.logger).With(slog.String("token_kind", string(policy.Kind)))
	return l
}

// Kind returns the token kind handled by this lifecycle
func (l *Lifecycle) Kind() Kind {
	return l.policy.Kind
}

// WithTx returns the lifecycle bound to tx, for callers composing a larger
// transaction.
func (l *Lifecycle) WithTx(tx *gorm.DB) *Lifecycle {
	cp := *l
	cp.db = tx
	cp.store = l.store.WithTx(tx)
	cp.users = l.users.WithTx(tx)
	return &cp
}

// Issue stores a new token for user expiring one window from now. Earlier
// tokens of the same user stay usable.
func (l *Lifecycle) Issue(ctx context.Context, user *models.User, raw string) (*models.BaseToken, error) {
	tok, err := l.store.Create(ctx, user.ID, raw, l.now().Add(l.policy.Window))
	if err != nil {
		return nil, err
	}
	metrics.ObserveTokenIssued(string(l.policy.Kind))
	l.logger.Debug("token issued",
		slog.Uint64("user_id", uint64(user.ID)),
		slog.String("token", logging.TokenPrefix(raw)))
	return tok, nil
}

// CheckValidity reports whether raw is usable and consumes it if so.
// An expired token is reported EXPIRED and left unconsumed.
func (l *Lifecycle) CheckValidity(ctx context.Context, raw string) (Validity, error) {
	ctx, span := tracing.Tracer().Start(ctx, "tokens.CheckValidity")
	defer span.End()
	span.SetAttributes(attribute.String("token.kind", string(l.policy.Kind)))

	result, err := l.checkValidity(ctx, raw)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	span.SetAttributes(attribute.String("token.result", string(result)))
	metrics.ObserveTokenCheck(string(l.policy.Kind), string(result))
	return result, nil
}

func (l *Lifecycle) checkValidity(ctx context.Context, raw string) (Validity, error) {
	tok, err := l.store.FindByToken(ctx, raw)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return Invalid, nil
		}
		return "", err
	}
	if !tok.Valid {
		return Invalid, nil
	}
	if l.now().After(tok.ExpiresAt) {
		return Expired, nil
	}

	consumed, err := l.store.Consume(ctx, raw)
	if err != nil {
		return "", err
	}
	if !consumed {
		// a concurrent check consumed it first
		return Invalid, nil
	}
	return Valid, nil
}

// ResolveUser returns the owner of raw without consuming it
func (l *Lifecycle) ResolveUser(ctx context.Context, raw string) (*models.User, error) {
	tok, err := l.store.FindByToken(ctx, raw)
	if err != nil {
		return nil, err
	}
	return l.users.FindByID(ctx, tok.UserID)
}

// CompleteAction applies a password change authorized by a token.
// The password pair is validated before the token is consumed, so a
// pw_error leaves the token usable. A failed notification does not undo
// the change, but it skips ending the caller's session.
func (l *Lifecycle) CompleteAction(ctx context.Context, session auth.Session, change PasswordChange) Outcome {
	outcome := l.completeAction(ctx, session, change)
	metrics.ObserveFlowOutcome(string(l.policy.Kind), string(outcome))
	return outcome
}

func (l *Lifecycle) completeAction(ctx context.Context, session auth.Session, change PasswordChange) Outcome {
	user, err := l.ResolveUser(ctx, change.Token)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return OutcomeEmptyUser
		}
		l.logger.Error("resolve token owner", slog.String("error", err.Error()))
		return OutcomeError
	}

	if !l.policy.ValidatePassword(user, change) {
		return OutcomePasswordError
	}

	hash, err := auth.HashPassword(change.NewPassword)
	if err != nil {
		l.logger.Error("hash password", slog.String("error", err.Error()))
		return OutcomeError
	}

	var validity Validity
	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txl := l.WithTx(tx)
		v, err := txl.CheckValidity(ctx, change.Token)
		if err != nil {
			return err
		}
		validity = v
		if v != Valid {
			return nil
		}
		return txl.users.UpdatePassword(ctx, user.ID, hash)
	})
	if err != nil {
		l.logger.Error("complete password action", slog.Uint64("user_id", uint64(user.ID)), slog.String("error", err.Error()))
		return OutcomeError
	}

	switch validity {
	case Invalid:
		return OutcomeInvalidPwToken
	case Expired:
		return OutcomeExpiredPwToken
	}

	l.logger.Info("password changed", slog.Uint64("user_id", uint64(user.ID)))
	if err := l.mail.SendPasswordChanged(ctx, user); err != nil {
		// the session stays open when the notification fails
		return OutcomeEmailSendError
	}

	if l.policy.TerminateSession && session != nil && !session.IsAnonymous() {
		if err := session.Terminate(ctx); err != nil {
			l.logger.Error("terminate session", slog.Uint64("user_id", uint64(user.ID)), slog.String("error", err.Error()))
		}
	}
	return OutcomePasswordChanged
}

// DeleteAllForUser removes every token of this kind owned by the user
func (l *Lifecycle) DeleteAllForUser(ctx context.Context, userID uint) error {
	return l.store.DeleteByUserID(ctx, userID)
}

// TokensForUser lists the tokens of this kind owned by the user
func (l *Lifecycle) TokensForUser(ctx context.Context, userID uint) ([]models.BaseToken, error) {
	return l.store.FindByUserID(ctx, userID)
}
