package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "RetailBackOffice/pkg/errors"
)

func TestNormalizeRoles(t *testing.T) {
	roles := NormalizeRoles([]string{"MANAGER", "ADMIN", "", "MANAGER"})
	assert.Equal(t, []RoleName{RoleAdmin, RoleManager}, roles)
	assert.Empty(t, NormalizeRoles(nil))
}

func TestCredentialRecord_IsActive(t *testing.T) {
	rec := &CredentialRecord{UserID: "1", Roles: []RoleName{RoleUser}}
	assert.True(t, rec.IsActive())

	rec.IsDeleted = true
	assert.False(t, rec.IsActive())

	assert.False(t, (&CredentialRecord{UserID: "2"}).IsActive())
	var nilRec *CredentialRecord
	assert.False(t, nilRec.IsActive())
}

func TestCredentialRecord_CloneIsIndependent(t *testing.T) {
	rec := &CredentialRecord{UserID: "1", Roles: []RoleName{RoleUser}}
	cp := rec.Clone()
	cp.Roles[0] = RoleAdmin
	assert.Equal(t, RoleUser, rec.Roles[0])
}

func TestResetToken_State(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	token := &ResetToken{ExpiresAt: now.Add(time.Minute)}

	assert.Equal(t, ResetTokenIssued, token.State(now))
	assert.Equal(t, ResetTokenExpired, token.State(now.Add(time.Minute)))

	consumed := now
	token.ConsumedAt = &consumed
	// погашенный токен остается погашенным и после истечения
	assert.Equal(t, ResetTokenConsumed, token.State(now.Add(time.Hour)))
}

func TestRefreshToken_IsExpired(t *testing.T) {
	now := time.Now()
	token := &RefreshToken{ExpiresAt: now.Add(time.Second)}
	assert.False(t, token.IsExpired(now))
	assert.True(t, token.IsExpired(now.Add(time.Second)))
}

func TestDecodeCredentialEvent_Variants(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		check func(t *testing.T, e *CredentialEvent)
	}{
		{
			name: "created",
			body: `{"eventId":"e1","type":"Created","userId":"1","sequence":1,"payload":{"id":"1","userCode":"U1","passwordHash":"$2a$","roles":["ADMIN"],"isDeleted":false}}`,
			check: func(t *testing.T, e *CredentialEvent) {
				require.NotNil(t, e.Created)
				assert.Equal(t, "U1", e.Created.UserCode)
				assert.Equal(t, []string{"ADMIN"}, e.Created.Roles)
			},
		},
		{
			name: "updated",
			body: `{"eventId":"e2","type":"Updated","userId":"1","sequence":2,"payload":{"id":"1","userCode":"U1","roles":["USER"],"email":"u1@example.com"}}`,
			check: func(t *testing.T, e *CredentialEvent) {
				require.NotNil(t, e.Updated)
				assert.Equal(t, "u1@example.com", e.Updated.Email)
			},
		},
		{
			name: "safe deleted",
			body: `{"eventId":"e3","type":"SafeDeleted","userId":"1","sequence":3,"payload":{"id":"1","isDeleted":true}}`,
			check: func(t *testing.T, e *CredentialEvent) {
				require.NotNil(t, e.SafeDeleted)
				assert.True(t, e.SafeDeleted.IsDeleted)
			},
		},
		{
			name: "reactivated without password",
			body: `{"eventId":"e4","type":"Reactivated","userId":"1","sequence":4,"payload":{"id":"1","isDeleted":false}}`,
			check: func(t *testing.T, e *CredentialEvent) {
				require.NotNil(t, e.Reactivated)
				assert.Empty(t, e.Reactivated.PasswordHash)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := DecodeCredentialEvent([]byte(tt.body))
			require.NoError(t, err)
			tt.check(t, event)
		})
	}
}

func TestDecodeCredentialEvent_Poison(t *testing.T) {
	bodies := map[string]string{
		"not json":          `{{{`,
		"unknown type":      `{"type":"Merged","userId":"1","sequence":1,"payload":{}}`,
		"missing user":      `{"type":"Created","sequence":1,"payload":{"userCode":"U1","roles":["ADMIN"]}}`,
		"missing sequence":  `{"type":"Created","userId":"1","payload":{"userCode":"U1","roles":["ADMIN"]}}`,
		"missing payload":   `{"type":"Created","userId":"1","sequence":1}`,
		"no roles":          `{"type":"Created","userId":"1","sequence":1,"payload":{"id":"1","userCode":"U1","roles":[]}}`,
		"payload mismatch":  `{"type":"SafeDeleted","userId":"1","sequence":1,"payload":{"id":"2","isDeleted":true}}`,
		"bad payload shape": `{"type":"Updated","userId":"1","sequence":1,"payload":{"roles":"ADMIN"}}`,
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeCredentialEvent([]byte(body))
			require.Error(t, err)
			assert.Equal(t, apperrors.ErrPoisonEvent, apperrors.KindOf(err))
		})
	}
}
