package notifier

import (
	"context"
	"errors"
	"testing"

	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewBroadcaster_Providers(t *testing.T) {
	_, err := NewBroadcaster(Config{Provider: "sendgrid"}, zap.NewNop())
	assert.Error(t, err)

	_, err = NewBroadcaster(Config{Provider: "pigeon"}, zap.NewNop())
	assert.Error(t, err)

	b, err := NewBroadcaster(Config{}, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, b.send)
}

func TestSend_NotifiesListenersAndEmails(t *testing.T) {
	b, err := NewBroadcaster(Config{FromEmail: "no-reply@x.io", AlertRecipient: "ops@x.io"}, zap.NewNop())
	require.NoError(t, err)

	var sent *mail.SGMailV3
	b.send = func(ctx context.Context, message *mail.SGMailV3) (int, string, error) {
		sent = message
		return 202, "", nil
	}

	var got []Alert
	b.OnAlert(func(a Alert) { got = append(got, a) })

	b.Send(context.Background(), Alert{WalletIDHint: "abcd", Email: "user@x.io"})

	require.Len(t, got, 1)
	assert.Equal(t, "abcd", got[0].WalletIDHint)
	assert.False(t, got[0].At.IsZero())
	require.NotNil(t, sent)
	assert.Equal(t, "Restore your existing wallet", sent.Subject)
}

func TestSend_EmailFailureStillNotifies(t *testing.T) {
	b, _ := NewBroadcaster(Config{}, zap.NewNop())
	b.send = func(ctx context.Context, message *mail.SGMailV3) (int, string, error) {
		return 0, "", errors.New("smtp down")
	}
	called := false
	b.OnAlert(func(Alert) { called = true })

	b.Send(context.Background(), Alert{WalletIDHint: "h", Email: "u@x.io"})
	assert.True(t, called)
}
