package email

import (
	"context"
	"errors"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RetailBackOffice/pkg/config"
	"RetailBackOffice/pkg/logger"
	"RetailBackOffice/services/notification-service/internal/template"
)

func newTestSender(t *testing.T, send transport) *Sender {
	t.Helper()
	s := NewSender(Config{
		Host:          "smtp.test",
		FromAddress:   "noreply@backoffice.test",
		FromName:      "Back Office",
		RetryAttempts: 3,
	}, logger.NewNop())
	s.retry.InitialDelay = time.Millisecond
	s.retry.MaxDelay = time.Millisecond
	s.retry.Jitter = false
	s.send = send
	return s
}

var testMessage = template.Message{Subject: "Subject", Text: "plain body", HTML: "<p>html body</p>"}

func TestSender_Send(t *testing.T) {
	var gotFrom, gotTo string
	var gotBody []byte
	s := newTestSender(t, func(_ context.Context, from, to string, message []byte) error {
		gotFrom, gotTo, gotBody = from, to, message
		return nil
	})

	err := s.Send(context.Background(), "clerk@shop.test", "2F0abc", testMessage)
	require.NoError(t, err)

	assert.Equal(t, "noreply@backoffice.test", gotFrom)
	assert.Equal(t, "clerk@shop.test", gotTo)
	body := string(gotBody)
	assert.Contains(t, body, `From: "Back Office" <noreply@backoffice.test>`)
	assert.Contains(t, body, "Message-ID: <2F0abc>")
	assert.Contains(t, body, "Content-Type: multipart/alternative; boundary=")
	assert.Contains(t, body, "plain body")
	assert.Contains(t, body, "<p>html body</p>")
}

func TestSender_RetriesTransientErrors(t *testing.T) {
	calls := 0
	s := newTestSender(t, func(context.Context, string, string, []byte) error {
		calls++
		if calls < 3 {
			return &textproto.Error{Code: 421, Msg: "try again later"}
		}
		return nil
	})

	require.NoError(t, s.Send(context.Background(), "clerk@shop.test", "id", testMessage))
	assert.Equal(t, 3, calls)
}

func TestSender_PermanentErrorStopsRetries(t *testing.T) {
	calls := 0
	s := newTestSender(t, func(context.Context, string, string, []byte) error {
		calls++
		return &textproto.Error{Code: 550, Msg: "mailbox unavailable"}
	})

	err := s.Send(context.Background(), "clerk@shop.test", "id", testMessage)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, IsPermanent(err))
}

func TestSender_TransientErrorExhaustsAttempts(t *testing.T) {
	calls := 0
	s := newTestSender(t, func(context.Context, string, string, []byte) error {
		calls++
		return errors.New("connection reset")
	})

	err := s.Send(context.Background(), "clerk@shop.test", "id", testMessage)
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.False(t, IsPermanent(err))
}

func TestSender_InvalidRecipient(t *testing.T) {
	s := newTestSender(t, func(context.Context, string, string, []byte) error {
		t.Fatal("transport must not be called")
		return nil
	})

	err := s.Send(context.Background(), "not-an-address", "id", testMessage)
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
}

func TestBuildMessage_EncodesSubject(t *testing.T) {
	raw := string(buildMessage("from@test", "to@test", "", template.Message{Subject: "Сброс пароля"}))
	assert.Contains(t, raw, "Subject: =?utf-8?q?")
	assert.NotContains(t, raw, "Message-ID")
	assert.True(t, strings.HasSuffix(raw, "--\r\n"))
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(config.SMTPConfig{Host: "mail", Port: 2525, UseStartTLS: true, Timeout: config.Duration{Duration: time.Second}})
	assert.Equal(t, "mail", cfg.Host)
	assert.Equal(t, 2525, cfg.Port)
	assert.True(t, cfg.UseStartTLS)
	assert.Equal(t, time.Second, cfg.Timeout)
}
