package mail

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mikepea/mms/pkg/mms/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

type fakeDialer struct {
	err      error
	messages []*gomail.Message
}

func (d *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	if d.err != nil {
		return d.err
	}
	d.messages = append(d.messages, m...)
	return nil
}

func testUser() *models.User {
	return &models.User{ID: 1, FirstName: "Ada", Email: "ada@example.com"}
}

func TestSMTPSenderSubjects(t *testing.T) {
	d := &fakeDialer{}
	s := NewSMTPSenderWithDialer(d, "no-reply@mms.local", "Mechanical Management System", nil)
	ctx := context.Background()
	u := testUser()

	require.NoError(t, s.SendVerification(ctx, u, "http://x/verify?token=a"))
	require.NoError(t, s.ResendVerification(ctx, u, "http://x/verify?token=b"))
	require.NoError(t, s.SendVerificationSuccess(ctx, u))
	require.NoError(t, s.SendChangePasswordRequest(ctx, u, "http://x/change?token=c"))
	require.NoError(t, s.SendForgotPasswordRequest(ctx, u, "http://x/reset?token=d"))
	require.NoError(t, s.SendPasswordChanged(ctx, u))

	want := []string{
		"New Account Registration",
		"Account Verification Request",
		"Successful email verification",
		"Change Password",
		"Forgot Password",
		"Password Successfully Changed",
	}
	require.Len(t, d.messages, len(want))
	for i, m := range d.messages {
		assert.Equal(t, []string{want[i]}, m.GetHeader("Subject"))
		assert.Equal(t, []string{"ada@example.com"}, m.GetHeader("To"))
	}
	assert.True(t, strings.Contains(d.messages[0].GetHeader("From")[0], "Mechanical Management System"))
}

func TestSMTPSenderWrapsDeliveryFailure(t *testing.T) {
	cause := errors.New("connection refused")
	s := NewSMTPSenderWithDialer(&fakeDialer{err: cause}, "from@x", "X", nil)

	err := s.SendPasswordChanged(context.Background(), testUser())
	assert.ErrorIs(t, err, cause)
}

func TestSMTPSenderHonoursCancelledContext(t *testing.T) {
	d := &fakeDialer{}
	s := NewSMTPSenderWithDialer(d, "from@x", "X", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, s.SendVerificationSuccess(ctx, testUser()))
	assert.Empty(t, d.messages)
}

func TestRenderEmbedsLinkAndEscapesName(t *testing.T) {
	u := &models.User{FirstName: "<b>Eve</b>", Email: "eve@example.com"}
	msg := render(TemplateForgotPassword, u, "http://x/reset?token=abc")

	assert.Contains(t, msg.Body, "http://x/reset?token=abc")
	assert.NotContains(t, msg.Body, "<b>Eve</b>")
	assert.Equal(t, "eve@example.com", msg.To)
}

func TestLogSenderNeverFails(t *testing.T) {
	s := NewLogSender(nil)
	assert.NoError(t, s.SendVerification(context.Background(), testUser(), "http://x"))
	assert.NoError(t, s.SendPasswordChanged(context.Background(), testUser()))
}
