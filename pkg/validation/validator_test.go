package validation

import (
	"errors"
	"testing"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "RetailBackOffice/pkg/errors"
)

type signupRequest struct {
	UserCode string `json:"userCode"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Confirm  string `json:"confirm"`
}

func (r signupRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.UserCode, UserCode...),
		validation.Field(&r.Email, Email...),
		validation.Field(&r.Password, Secret...),
		validation.Field(&r.Confirm, validation.Required, validation.By(StringEquals(r.Password))),
	)
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name       string
		req        signupRequest
		wantFields []string
	}{
		{
			name: "valid",
			req:  signupRequest{UserCode: "cashier.01", Email: "a@shop.example", Password: "Secret123", Confirm: "Secret123"},
		},
		{
			name:       "missing user code and email",
			req:        signupRequest{Password: "Secret123", Confirm: "Secret123"},
			wantFields: []string{"email", "userCode"},
		},
		{
			name:       "bad email",
			req:        signupRequest{UserCode: "u1", Email: "not-an-email", Password: "x", Confirm: "x"},
			wantFields: []string{"email"},
		},
		{
			name:       "user code with spaces",
			req:        signupRequest{UserCode: "bad code", Email: "a@shop.example", Password: "x", Confirm: "x"},
			wantFields: []string{"userCode"},
		},
		{
			name:       "confirmation mismatch",
			req:        signupRequest{UserCode: "u1", Email: "a@shop.example", Password: "x", Confirm: "y"},
			wantFields: []string{"confirm"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(tt.req)
			if len(tt.wantFields) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, apperrors.ErrValidation, apperrors.KindOf(err))
			appErr, ok := apperrors.As(err)
			require.True(t, ok)
			for _, field := range tt.wantFields {
				assert.Contains(t, appErr.Details, field+":")
			}
		})
	}
}

func TestFormatErrors_SortedFields(t *testing.T) {
	errs := validation.Errors{
		"password": errors.New("cannot be blank"),
		"email":    errors.New("must be a valid email address"),
	}
	assert.Equal(t, "email: must be a valid email address; password: cannot be blank", FormatErrors(errs))
}

func TestToAppError_PlainError(t *testing.T) {
	err := ToAppError(errors.New("body is empty"))
	assert.Equal(t, apperrors.ErrValidation, apperrors.KindOf(err))
	assert.Nil(t, ToAppError(nil))
}
