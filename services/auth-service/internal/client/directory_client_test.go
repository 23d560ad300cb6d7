package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "RetailBackOffice/pkg/errors"
	"RetailBackOffice/pkg/logger"
	"RetailBackOffice/services/auth-service/internal/repository"
)

func TestDirectoryClient_FindByEmail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/internal/identities", r.URL.Path)
		switch r.URL.Query().Get("email") {
		case "u1+shop@shop.example":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"u-1","userCode":"U1","email":"u1+shop@shop.example"}`))
		case "broken@shop.example":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	c := NewDirectoryClient(server.URL+"/", time.Second, logger.NewNop())

	identity, err := c.FindByEmail(context.Background(), "u1+shop@shop.example")
	require.NoError(t, err)
	assert.Equal(t, "u-1", identity.ID)
	assert.Equal(t, "U1", identity.UserCode)

	_, err = c.FindByEmail(context.Background(), "ghost@shop.example")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = c.FindByEmail(context.Background(), "broken@shop.example")
	assert.ErrorIs(t, err, ErrDirectoryUnavailable)
	assert.Equal(t, apperrors.ErrUnavailable, apperrors.KindOf(err))
}

func TestDirectoryClient_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	c := NewDirectoryClient(server.URL, 20*time.Millisecond, logger.NewNop())
	_, err := c.FindByEmail(context.Background(), "u1@shop.example")
	assert.ErrorIs(t, err, ErrDirectoryUnavailable)
}
