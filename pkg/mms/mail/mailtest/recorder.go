// Package mailtest provides a recording mail.Sender for tests.
package mailtest

import (
	"context"
	"sync"

	"github.com/mikepea/mms/pkg/mms/mail"
	"github.com/mikepea/mms/pkg/mms/models"
)

// Sent is one recorded notification.
type Sent struct {
	Template string
	To       string
	Link     string
}

// Recorder records notifications instead of sending them. Set Err to make
// every send fail.
type Recorder struct {
	mu   sync.Mutex
	Err  error
	sent []Sent
}

var _ mail.Sender = (*Recorder)(nil)

func (r *Recorder) record(template string, user *models.User, link string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.sent = append(r.sent, Sent{Template: template, To: user.Email, Link: link})
	return nil
}

// Sent returns the recorded notifications in order.
func (r *Recorder) Sent() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Sent, len(r.sent))
	copy(out, r.sent)
	return out
}

// Last returns the most recent notification, if any.
func (r *Recorder) Last() (Sent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sent) == 0 {
		return Sent{}, false
	}
	return r.sent[len(r.sent)-1], true
}

func (r *Recorder) SendVerification(_ context.Context, user *models.User, link string) error {
	return r.record(mail.TemplateVerification, user, link)
}

func (r *Recorder) ResendVerification(_ context.Context, user *models.User, link string) error {
	return r.record(mail.TemplateResendVerification, user, link)
}

func (r *Recorder) SendVerificationSuccess(_ context.Context, user *models.User) error {
	return r.record(mail.TemplateVerificationSuccess, user, "")
}

func (r *Recorder) SendChangePasswordRequest(_ context.Context, user *models.User, link string) error {
	return r.record(mail.TemplateChangePassword, user, link)
}

func (r *Recorder) SendForgotPasswordRequest(_ context.Context, user *models.User, link string) error {
	return r.record(mail.TemplateForgotPassword, user, link)
}

func (r *Recorder) SendPasswordChanged(_ context.Context, user *models.User) error {
	return r.record(mail.TemplatePasswordChanged, user, "")
}
