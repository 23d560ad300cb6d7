package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RetailBackOffice/pkg/authfilter"
	"RetailBackOffice/pkg/jwt"
	"RetailBackOffice/pkg/logger"
	"RetailBackOffice/services/api-gateway/internal/middleware"
)

const accessSecret = "gateway-test-access-secret"

func issue(t *testing.T, secret string, ttl time.Duration, now time.Time) string {
	t.Helper()
	manager := jwt.NewManager(secret, secret+"-refresh", ttl, 2*ttl, jwt.WithClock(func() time.Time { return now }))
	token, _, err := manager.GenerateAccessToken("U1", []string{"CASHIER"})
	require.NoError(t, err)
	return token
}

// upstream фиксирует, дошел ли запрос и с каким заголовком
type upstream struct {
	called bool
	header string
}

func (u *upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	u.called = true
	u.header = r.Header.Get("Authorization")
	w.WriteHeader(http.StatusOK)
}

func TestEdgeAuth_LocalVerification(t *testing.T) {
	valid := issue(t, accessSecret, time.Hour, time.Now())
	expired := issue(t, accessSecret, time.Minute, time.Now().Add(-time.Hour))
	foreign := issue(t, "some-other-secret", time.Hour, time.Now())

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantCalled bool
		wantReason string
	}{
		{name: "no header passes", header: "", wantStatus: http.StatusOK, wantCalled: true},
		{name: "valid token passes", header: "Bearer " + valid, wantStatus: http.StatusOK, wantCalled: true},
		{name: "basic scheme", header: "Basic dXNlcjpwYXNz", wantStatus: http.StatusUnauthorized, wantReason: "MALFORMED_AUTHORIZATION"},
		{name: "not a jwt", header: "Bearer opaque", wantStatus: http.StatusUnauthorized, wantReason: "MALFORMED_AUTHORIZATION"},
		{name: "expired token", header: "Bearer " + expired, wantStatus: http.StatusUnauthorized, wantReason: "EXPIRED_ACCESS_TOKEN"},
		{name: "wrong signature", header: "Bearer " + foreign, wantStatus: http.StatusUnauthorized, wantReason: "INVALID_ACCESS_TOKEN"},
	}

	verifier := authfilter.NewLocalVerifier(jwt.NewVerifier(accessSecret))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := &upstream{}
			var observed int
			h := middleware.EdgeAuth(verifier, logger.NewNop(), func(error) { observed++ })(up)

			req := httptest.NewRequest(http.MethodGet, "/api/stock", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCalled, up.called)
			if tt.wantCalled {
				assert.Equal(t, tt.header, up.header)
			}
			if tt.wantReason != "" {
				var body struct {
					Error struct {
						Reason string `json:"reason"`
					} `json:"error"`
				}
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Equal(t, tt.wantReason, body.Error.Reason)
			}
		})
	}
}

func TestEdgeAuth_RemoteVerification(t *testing.T) {
	valid := issue(t, accessSecret, time.Hour, time.Now())

	auth := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/validate", r.URL.Path)
		var req authfilter.ValidateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Token != valid {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(authfilter.ValidateResponse{Principal: authfilter.Principal{UserCode: "U1", Roles: []string{"CASHIER"}}})
	}))
	defer auth.Close()

	verifier := authfilter.NewRemoteVerifier(auth.URL, time.Second)

	up := &upstream{}
	h := middleware.EdgeAuth(verifier, logger.NewNop(), nil)(up)

	req := httptest.NewRequest(http.MethodGet, "/api/stock", nil)
	req.Header.Set("Authorization", "Bearer "+valid)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, up.called)

	up = &upstream{}
	h = middleware.EdgeAuth(verifier, logger.NewNop(), nil)(up)
	req = httptest.NewRequest(http.MethodGet, "/api/stock", nil)
	req.Header.Set("Authorization", "Bearer "+issue(t, "some-other-secret", time.Hour, time.Now()))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, up.called)
}

func TestEdgeAuth_RemoteUnavailableFailsClosed(t *testing.T) {
	auth := httptest.NewServer(http.NotFoundHandler())
	authURL := auth.URL
	auth.Close()

	up := &upstream{}
	h := middleware.EdgeAuth(authfilter.NewRemoteVerifier(authURL, 200*time.Millisecond), logger.NewNop(), nil)(up)

	req := httptest.NewRequest(http.MethodGet, "/api/stock", nil)
	req.Header.Set("Authorization", "Bearer "+issue(t, accessSecret, time.Hour, time.Now()))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, up.called)
}
