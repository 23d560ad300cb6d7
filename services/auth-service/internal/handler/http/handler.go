package http

import (
	"context"
	"net/http"

	"RetailBackOffice/pkg/authfilter"
	apperrors "RetailBackOffice/pkg/errors"
	"RetailBackOffice/pkg/httpx"
	"RetailBackOffice/pkg/logger"
	"RetailBackOffice/pkg/validation"
	"RetailBackOffice/services/auth-service/internal/domain"
)

// TokenService операции с токенами (реализуется service.TokenAuthority)
type TokenService interface {
	Login(ctx context.Context, userCode, password string) (*domain.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	ValidateAccessToken(token string) (authfilter.Principal, error)
}

// PasswordService восстановление и смена пароля (реализуется service.PasswordService)
type PasswordService interface {
	ForgotUserCode(ctx context.Context, email string) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	ChangePassword(ctx context.Context, principal authfilter.Principal, oldPassword, newPassword, confirm string) error
}

// Handler HTTP API сервиса аутентификации
type Handler struct {
	tokens    TokenService
	passwords PasswordService
	logger    logger.Logger
}

// NewHandler создает новый экземпляр Handler
func NewHandler(tokens TokenService, passwords PasswordService, log logger.Logger) *Handler {
	return &Handler{
		tokens:    tokens,
		passwords: passwords,
		logger:    log,
	}
}

// Register регистрирует маршруты. limited оборачивает публичные эндпоинты, по которым возможен перебор.
func (h *Handler) Register(mux *http.ServeMux, limited httpx.Middleware) {
	mux.Handle("/login", limited(httpx.MethodHandler(http.MethodPost, h.Login)))
	mux.Handle("/refresh", httpx.MethodHandler(http.MethodPost, h.Refresh))
	mux.Handle("/logout", httpx.MethodHandler(http.MethodPost, h.Logout))
	mux.Handle("/forgot-user-code", limited(httpx.MethodHandler(http.MethodPost, h.ForgotUserCode)))
	mux.Handle("/forgot-password", limited(httpx.MethodHandler(http.MethodPost, h.ForgotPassword)))
	mux.Handle("/reset-password", limited(httpx.MethodHandler(http.MethodPost, h.ResetPassword)))
	mux.Handle("/change-password", authfilter.RequireAuthenticated(httpx.MethodHandler(http.MethodPost, h.ChangePassword)))
	mux.Handle("/validate", httpx.MethodHandler(http.MethodPost, h.Validate))
	mux.Handle("/me", authfilter.RequireAuthenticated(httpx.MethodHandler(http.MethodGet, h.Me)))
}

// decode разбирает и проверяет тело запроса
func decode(r *http.Request, req validation.Validatable) error {
	if err := httpx.DecodeJSON(r, req); err != nil {
		return err
	}
	return validation.Check(req)
}

// Login POST /login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decode(r, &req); err != nil {
		apperrors.WriteError(w, err)
		return
	}
	pair, err := h.tokens.Login(r.Context(), req.UserCode, req.Password)
	if err != nil {
		h.fail(w, r, "login", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, pair)
}

// Refresh POST /refresh
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := decode(r, &req); err != nil {
		apperrors.WriteError(w, err)
		return
	}
	pair, err := h.tokens.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.fail(w, r, "refresh", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, pair)
}

// Logout POST /logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := decode(r, &req); err != nil {
		apperrors.WriteError(w, err)
		return
	}
	if err := h.tokens.Logout(r.Context(), req.RefreshToken); err != nil {
		h.fail(w, r, "logout", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ForgotUserCode POST /forgot-user-code
func (h *Handler) ForgotUserCode(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if err := decode(r, &req); err != nil {
		apperrors.WriteError(w, err)
		return
	}
	if err := h.passwords.ForgotUserCode(r.Context(), req.Email); err != nil {
		h.fail(w, r, "forgot user code", err)
		return
	}
	httpx.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

// ForgotPassword POST /forgot-password
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if err := decode(r, &req); err != nil {
		apperrors.WriteError(w, err)
		return
	}
	if err := h.passwords.ForgotPassword(r.Context(), req.Email); err != nil {
		h.fail(w, r, "forgot password", err)
		return
	}
	httpx.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

// ResetPassword POST /reset-password?token=
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		apperrors.WriteError(w, apperrors.New(apperrors.ErrValidation, "invalid request").WithDetails("token: cannot be blank"))
		return
	}
	var req ResetPasswordRequest
	if err := decode(r, &req); err != nil {
		apperrors.WriteError(w, err)
		return
	}
	if err := h.passwords.ResetPassword(r.Context(), token, req.NewPassword); err != nil {
		h.fail(w, r, "reset password", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ChangePassword POST /change-password (требует bearer токен)
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	principal, _ := authfilter.PrincipalFromContext(r.Context())
	var req ChangePasswordRequest
	if err := decode(r, &req); err != nil {
		apperrors.WriteError(w, err)
		return
	}
	err := h.passwords.ChangePassword(r.Context(), principal, req.OldPassword, req.NewPassword, req.ConfirmPassword)
	if err != nil {
		h.fail(w, r, "change password", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Validate POST /validate: удаленная проверка access токена для контекстов без общего секрета
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	var req ValidateTokenRequest
	if err := decode(r, &req); err != nil {
		apperrors.WriteError(w, err)
		return
	}
	principal, err := h.tokens.ValidateAccessToken(req.Token)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authfilter.ValidateResponse{Principal: principal})
}

// Me GET /me возвращает principal текущего запроса
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	principal, _ := authfilter.PrincipalFromContext(r.Context())
	httpx.WriteJSON(w, http.StatusOK, principal)
}

// fail пишет ошибку; внутренние ошибки и недоступность инфраструктуры логируются
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch apperrors.KindOf(err) {
	case apperrors.ErrInternal, apperrors.ErrUnavailable:
		h.logger.Error("Request failed",
			logger.String("operation", op),
			logger.Error(err),
			logger.CtxField(r.Context()))
	default:
		h.logger.Debug("Request rejected",
			logger.String("operation", op),
			logger.String("reason", apperrors.ReasonOf(err)),
			logger.CtxField(r.Context()))
	}
	apperrors.WriteError(w, err)
}
