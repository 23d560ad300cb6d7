package mailer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RetailBackOffice/pkg/connection"
	apperrors "RetailBackOffice/pkg/errors"
	"RetailBackOffice/pkg/logger"
	"RetailBackOffice/pkg/mail"
	"RetailBackOffice/pkg/metrics"
	"RetailBackOffice/pkg/rabbitmq"
)

type fakeProducer struct {
	body []byte
	opts rabbitmq.PublishOptions
	err  error
}

func (f *fakeProducer) PublishWithRetry(_ context.Context, body []byte, _ connection.RetryConfig, options ...rabbitmq.PublishOption) error {
	f.body = body
	for _, o := range options {
		o(&f.opts)
	}
	return f.err
}

func TestPublisher_SendPasswordReset(t *testing.T) {
	producer := &fakeProducer{}
	m := metrics.NewMetrics("auth-service-test")
	p := NewPublisher(producer, "", connection.DefaultRetryConfig(), m, logger.NewNop())

	expires := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	require.NoError(t, p.SendPasswordReset(context.Background(), "u1@shop.example", "https://x.example/reset?token=t", expires))

	assert.Equal(t, "", producer.opts.Exchange)
	assert.Equal(t, mail.DefaultQueue, producer.opts.RoutingKey)

	job, err := mail.Decode(producer.body)
	require.NoError(t, err)
	assert.Equal(t, job.ID, producer.opts.MessageID)
	assert.Equal(t, mail.KindPasswordReset, job.Kind)
	assert.Equal(t, "u1@shop.example", job.To)
	assert.Equal(t, "https://x.example/reset?token=t", job.Data[mail.DataLink])
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MailJobs.WithLabelValues(string(mail.KindPasswordReset), metrics.ResultSuccess)))
}

func TestPublisher_UnavailableAfterRetries(t *testing.T) {
	producer := &fakeProducer{err: errors.New("connection refused")}
	m := metrics.NewMetrics("auth-service-test")
	p := NewPublisher(producer, "mail.custom", connection.DefaultRetryConfig(), m, logger.NewNop())

	err := p.SendUserCode(context.Background(), "u1@shop.example", "U1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMailUnavailable)
	assert.Equal(t, apperrors.ErrUnavailable, apperrors.KindOf(err))
	assert.Equal(t, "mail.custom", producer.opts.RoutingKey)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MailJobs.WithLabelValues(string(mail.KindUserCode), metrics.ResultFailure)))
}
