package infra

import (
	"errors"
	"net/smtp"
	"testing"
	"time"

	"retailpos/internal/config"

	"github.com/jordan-wright/email"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailer_DisabledWithoutHost(t *testing.T) {
	m := NewMailer(&config.Config{}, nil)

	assert.False(t, m.Enabled())
	assert.ErrorIs(t, m.SendReceipt("a@b.c", "s", "b", ""), ErrMailerDisabled)
}

func TestMailer_SendReceipt(t *testing.T) {
	m := NewMailer(&config.Config{SMTPHost: "smtp.local", SMTPPort: 2525, SMTPUser: "pos@store.test"}, nil)

	var got *email.Email
	var gotAddr string
	m.send = func(e *email.Email, addr string, _ smtp.Auth) error {
		got, gotAddr = e, addr
		return nil
	}

	require.NoError(t, m.SendReceipt("client@example.com", "Tu comprobante", "Gracias", ""))
	assert.Equal(t, "smtp.local:2525", gotAddr)
	assert.Equal(t, []string{"client@example.com"}, got.To)
	assert.Equal(t, "pos@store.test", got.From)
	assert.Equal(t, "Tu comprobante", got.Subject)
}

func TestMailer_BreakerOpensOnRepeatedFailures(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "smtp", FailureThreshold: 2, OpenTimeout: time.Hour})
	m := NewMailer(&config.Config{SMTPHost: "smtp.local", SMTPPort: 25}, cb)

	calls := 0
	m.send = func(*email.Email, string, smtp.Auth) error {
		calls++
		return errors.New("connection refused")
	}

	_ = m.SendReceipt("x@example.com", "s", "b", "")
	_ = m.SendReceipt("x@example.com", "s", "b", "")
	err := m.SendReceipt("x@example.com", "s", "b", "")

	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 2, calls)
}
