package http

import (
	validation "github.com/go-ozzo/ozzo-validation"

	rules "RetailBackOffice/pkg/validation"
)

// LoginRequest тело POST /login
type LoginRequest struct {
	UserCode string `json:"userCode"`
	Password string `json:"password"`
}

// Validate проверяет запрос
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.UserCode, rules.UserCode...),
		validation.Field(&r.Password, rules.Secret...),
	)
}

// RefreshRequest тело POST /refresh и POST /logout
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Validate проверяет запрос
func (r RefreshRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RefreshToken, rules.Secret...),
	)
}

// EmailRequest тело POST /forgot-user-code и POST /forgot-password
type EmailRequest struct {
	Email string `json:"email"`
}

// Validate проверяет запрос
func (r EmailRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, rules.Email...),
	)
}

// ResetPasswordRequest тело POST /reset-password?token=
type ResetPasswordRequest struct {
	NewPassword string `json:"newPassword"`
}

// Validate проверяет запрос. Политика пароля проверяется сервисом.
func (r ResetPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.NewPassword, rules.Secret...),
	)
}

// ChangePasswordRequest тело POST /change-password
type ChangePasswordRequest struct {
	OldPassword     string `json:"oldPassword"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

// Validate проверяет запрос. Совпадение подтверждения проверяет сервис (PASSWORD_MISMATCH).
func (r ChangePasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.OldPassword, rules.Secret...),
		validation.Field(&r.NewPassword, rules.Secret...),
		validation.Field(&r.ConfirmPassword, rules.Secret...),
	)
}

// ValidateTokenRequest тело POST /validate
type ValidateTokenRequest struct {
	Token string `json:"token"`
}

// Validate проверяет запрос
func (r ValidateTokenRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, rules.Secret...),
	)
}
