package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewError проверяет создание новой ошибки
func TestNewError(t *testing.T) {
	e := New(ErrNotFound, "resource not found")
	require.NotNil(t, e)
	assert.Equal(t, ErrNotFound, e.Code)
	assert.Equal(t, "resource not found", e.Message)
	assert.Nil(t, e.Cause)
}

// TestWrapError проверяет оборачивание существующей ошибки
func TestWrapError(t *testing.T) {
	original := fmt.Errorf("database error")
	e := Wrap(original, ErrInternal, "failed to save credential")

	require.NotNil(t, e)
	assert.Equal(t, ErrInternal, e.Code)
	assert.ErrorIs(t, e, original)
	assert.Equal(t, "failed to save credential: database error", e.Error())

	assert.Nil(t, Wrap(nil, ErrInternal, "nothing"))
}

// TestWithReason_DoesNotMutate проверяет, что исходная ошибка не меняется
func TestWithReason_DoesNotMutate(t *testing.T) {
	base := New(ErrUnauthenticated, "invalid credentials")
	withReason := base.WithReason("BAD_CREDENTIALS").WithDetails("user code or password is wrong")

	assert.Empty(t, base.Reason)
	assert.Empty(t, base.Details)
	assert.Equal(t, "BAD_CREDENTIALS", withReason.Reason)
	assert.Equal(t, "invalid credentials (BAD_CREDENTIALS)", withReason.Error())
}

// TestErrorIs проверяет сравнение по коду и причине
func TestErrorIs(t *testing.T) {
	expired := New(ErrUnauthenticated, "refresh token expired").WithReason("EXPIRED_REFRESH_TOKEN")
	invalid := New(ErrUnauthenticated, "refresh token invalid").WithReason("INVALID_REFRESH_TOKEN")

	wrapped := fmt.Errorf("refresh: %w", expired)

	assert.True(t, Is(wrapped, expired))
	assert.False(t, Is(wrapped, invalid))
	// цель без причины совпадает с любой причиной того же класса
	assert.True(t, Is(wrapped, New(ErrUnauthenticated, "any")))
	assert.False(t, Is(wrapped, New(ErrConflict, "any")))
}

func TestKindOfAndReasonOf(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(ErrConflict, "same password").WithReason("SAME_PASSWORD"))

	assert.Equal(t, ErrConflict, KindOf(err))
	assert.Equal(t, "SAME_PASSWORD", ReasonOf(err))
	assert.Equal(t, ErrInternal, KindOf(fmt.Errorf("plain")))
	assert.Equal(t, ErrorCode(""), KindOf(nil))
	assert.Empty(t, ReasonOf(fmt.Errorf("plain")))
}

// TestHTTPStatus проверяет таблицу соответствия HTTP статусов
func TestHTTPStatus(t *testing.T) {
	testCases := []struct {
		code     ErrorCode
		expected int
	}{
		{ErrUnauthenticated, http.StatusUnauthorized},
		{ErrForbidden, http.StatusForbidden},
		{ErrValidation, http.StatusBadRequest},
		{ErrConflict, http.StatusConflict},
		{ErrNotFound, http.StatusNotFound},
		{ErrUnavailable, http.StatusServiceUnavailable},
		{ErrTooManyRequests, http.StatusTooManyRequests},
		{ErrInternal, http.StatusInternalServerError},
		{ErrorCode("SOMETHING_ELSE"), http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		t.Run(string(tc.code), func(t *testing.T) {
			assert.Equal(t, tc.expected, New(tc.code, "test").HTTPStatus())
		})
	}
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedCode   ErrorCode
		expectedReason string
		expectDetails  bool
	}{
		{
			name:           "taxonomy error",
			err:            New(ErrNotFound, "reset token unknown").WithReason("INVALID_RESET_TOKEN").WithDetails("token not found"),
			expectedStatus: http.StatusNotFound,
			expectedCode:   ErrNotFound,
			expectedReason: "INVALID_RESET_TOKEN",
			expectDetails:  true,
		},
		{
			name:           "wrapped taxonomy error",
			err:            fmt.Errorf("handler: %w", New(ErrUnavailable, "mail bus down")),
			expectedStatus: http.StatusServiceUnavailable,
			expectedCode:   ErrUnavailable,
		},
		{
			name:           "plain error is internal",
			err:            fmt.Errorf("pq: connection refused"),
			expectedStatus: http.StatusInternalServerError,
			expectedCode:   ErrInternal,
		},
		{
			name:           "internal details are hidden",
			err:            New(ErrInternal, "boom").WithDetails("secret stack"),
			expectedStatus: http.StatusInternalServerError,
			expectedCode:   ErrInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, tt.err)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			var body errorBody
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.expectedCode, body.Error.Code)
			assert.Equal(t, tt.expectedReason, body.Error.Reason)
			assert.NotEmpty(t, body.Error.Message)
			assert.Equal(t, tt.expectDetails, body.Error.Details != "")
		})
	}
}
