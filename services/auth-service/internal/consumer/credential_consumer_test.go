package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"RetailBackOffice/pkg/logger"
	"RetailBackOffice/services/auth-service/internal/domain"
	"RetailBackOffice/services/auth-service/internal/projection"
	"RetailBackOffice/services/auth-service/internal/repository/memory"
)

type mockObserver struct {
	mock.Mock
}

func (m *mockObserver) ObserveCredentialEvent(eventType, outcome string) {
	m.Called(eventType, outcome)
}

func delivery(t *testing.T, envelope map[string]interface{}) amqp091.Delivery {
	t.Helper()
	body, err := json.Marshal(envelope)
	require.NoError(t, err)
	return amqp091.Delivery{Body: body, MessageId: "msg-1"}
}

func createdEnvelope() map[string]interface{} {
	return map[string]interface{}{
		"eventId":  "e-1",
		"type":     "Created",
		"userId":   "1",
		"sequence": 1,
		"payload": map[string]interface{}{
			"id": "1", "userCode": "U1", "passwordHash": "hash", "roles": []string{"ADMIN"}, "isDeleted": false,
		},
	}
}

func TestHandle_AppliesAndDeduplicates(t *testing.T) {
	repo := memory.NewCredentialRepository()
	observer := &mockObserver{}
	observer.On("ObserveCredentialEvent", "Created", "applied").Once()
	observer.On("ObserveCredentialEvent", "Created", "skipped").Once()

	h := NewCredentialEventHandler(projection.NewProjector(repo, logger.NewNop()), observer, logger.NewNop())
	msg := delivery(t, createdEnvelope())

	require.NoError(t, h.Handle(context.Background(), msg))
	require.NoError(t, h.Handle(context.Background(), msg))

	rec, err := repo.FindByUserID(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, "U1", rec.UserCode)
	observer.AssertExpectations(t)
}

func TestHandle_PoisonIsAcked(t *testing.T) {
	observer := &mockObserver{}
	observer.On("ObserveCredentialEvent", mock.Anything, "poison")

	h := NewCredentialEventHandler(projection.NewProjector(memory.NewCredentialRepository(), logger.NewNop()), observer, logger.NewNop())

	bodies := [][]byte{
		[]byte(`not json`),
		[]byte(`{"type":"Renamed","userId":"1","sequence":1,"payload":{}}`),
		[]byte(`{"type":"Created","sequence":1,"payload":{"userCode":"U1","roles":["ADMIN"]}}`),
		[]byte(`{"type":"Created","userId":"1","payload":{"userCode":"U1","roles":["ADMIN"]}}`),
	}
	for _, body := range bodies {
		assert.NoError(t, h.Handle(context.Background(), amqp091.Delivery{Body: body}), string(body))
	}
	observer.AssertNumberOfCalls(t, "ObserveCredentialEvent", len(bodies))
}

func TestHandle_NotProjectedIsRetried(t *testing.T) {
	observer := &mockObserver{}
	observer.On("ObserveCredentialEvent", "SafeDeleted", "retry").Once()

	h := NewCredentialEventHandler(projection.NewProjector(memory.NewCredentialRepository(), logger.NewNop()), observer, logger.NewNop())
	msg := delivery(t, map[string]interface{}{
		"type": "SafeDeleted", "userId": "1", "sequence": 2,
		"payload": map[string]interface{}{"id": "1", "isDeleted": true},
	})

	err := h.Handle(context.Background(), msg)
	assert.ErrorIs(t, err, projection.ErrNotProjected)
	observer.AssertExpectations(t)
}

type failingProjector struct{ err error }

func (f failingProjector) Project(context.Context, *domain.CredentialEvent) (projection.Outcome, error) {
	return "", f.err
}

func TestHandle_StoreFailureIsRetried(t *testing.T) {
	observer := &mockObserver{}
	observer.On("ObserveCredentialEvent", "Created", "failed").Once()

	storeErr := errors.New("connection reset")
	h := NewCredentialEventHandler(failingProjector{err: storeErr}, observer, logger.NewNop())

	err := h.Handle(context.Background(), delivery(t, createdEnvelope()))
	assert.ErrorIs(t, err, storeErr)
	observer.AssertExpectations(t)
}

func TestPartitionKey(t *testing.T) {
	assert.Equal(t, "1", PartitionKey(delivery(t, createdEnvelope())))
	assert.Equal(t, "msg-2", PartitionKey(amqp091.Delivery{Body: []byte("garbage"), MessageId: "msg-2"}))
}
