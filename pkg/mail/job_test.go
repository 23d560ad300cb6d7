package mail

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/ksuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordResetJob_RoundTrip(t *testing.T) {
	expires := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	job := PasswordResetJob("u1@shop.example", "https://backoffice.example/reset-password?token=abc", expires)

	_, err := ksuid.Parse(job.ID)
	require.NoError(t, err)
	assert.Equal(t, KindPasswordReset, job.Kind)
	assert.Equal(t, "2024-03-01T10:30:00Z", job.Data[DataExpiresAt])

	body, err := json.Marshal(job)
	require.NoError(t, err)
	decoded, err := Decode(body)
	require.NoError(t, err)
	assert.Equal(t, job.ID, decoded.ID)
	assert.Equal(t, job.Data, decoded.Data)
}

func TestDecode_Rejects(t *testing.T) {
	valid := UserCodeJob("u1@shop.example", "U1")

	tests := []struct {
		name   string
		mutate func(j *Job)
	}{
		{name: "bad id", mutate: func(j *Job) { j.ID = "not-a-ksuid" }},
		{name: "unknown kind", mutate: func(j *Job) { j.Kind = "newsletter" }},
		{name: "bad address", mutate: func(j *Job) { j.To = "not-an-email" }},
		{name: "missing data", mutate: func(j *Job) { j.Data = nil }},
		{name: "reset without link", mutate: func(j *Job) {
			j.Kind = KindPasswordReset
			j.Data = map[string]string{DataExpiresAt: "2024-03-01T10:30:00Z"}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := valid
			job.Data = map[string]string{DataUserCode: "U1"}
			tt.mutate(&job)
			body, err := json.Marshal(job)
			require.NoError(t, err)
			_, err = Decode(body)
			assert.Error(t, err)
		})
	}

	_, err := Decode([]byte("{"))
	assert.Error(t, err)
}
