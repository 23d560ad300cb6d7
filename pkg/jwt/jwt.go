package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Типы токенов
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

var (
	// ErrTokenExpired срок действия токена истек
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid подпись, формат или тип токена некорректны
	ErrTokenInvalid = errors.New("token invalid")
	// ErrRefreshDisabled менеджер создан только для проверки access токенов
	ErrRefreshDisabled = errors.New("refresh secret is not configured")
)

// AccessClaims набор утверждений access токена: sub=userCode, roles, iat, exp, jti
type AccessClaims struct {
	Roles     []string `json:"roles"`
	TokenType string   `json:"token_type"`
	jwt.RegisteredClaims
}

// RefreshClaims набор утверждений refresh токена: sub=userCode, uid=ownerId, jti=tokenId
type RefreshClaims struct {
	OwnerID   string `json:"uid"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// Manager подписывает и проверяет токены. Создается один раз при старте и далее не меняется.
type Manager struct {
	accessSecretKey  []byte
	refreshSecretKey []byte
	accessTokenTTL   time.Duration
	refreshTokenTTL  time.Duration
	issuer           string
	now              func() time.Time
}

// Option настраивает Manager
type Option func(*Manager)

// WithIssuer задает значение iss и требует его при проверке
func WithIssuer(issuer string) Option {
	return func(m *Manager) {
		m.issuer = issuer
	}
}

// WithClock подменяет источник времени (используется в тестах)
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager создает новый экземпляр JWT менеджера
func NewManager(accessSecretKey, refreshSecretKey string, accessTokenTTL, refreshTokenTTL time.Duration, opts ...Option) *Manager {
	m := &Manager{
		accessSecretKey:  []byte(accessSecretKey),
		refreshSecretKey: []byte(refreshSecretKey),
		accessTokenTTL:   accessTokenTTL,
		refreshTokenTTL:  refreshTokenTTL,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewVerifier создает менеджер, который умеет только проверять access токены.
// Используется ресурсными серверами и gateway.
func NewVerifier(accessSecretKey string, opts ...Option) *Manager {
	return NewManager(accessSecretKey, "", 0, 0, opts...)
}

// AccessTokenTTL время жизни access токена
func (m *Manager) AccessTokenTTL() time.Duration {
	return m.accessTokenTTL
}

// RefreshTokenTTL время жизни refresh токена
func (m *Manager) RefreshTokenTTL() time.Duration {
	return m.refreshTokenTTL
}

// GenerateAccessToken генерирует access токен для userCode с текущими ролями
func (m *Manager) GenerateAccessToken(userCode string, roles []string) (string, *AccessClaims, error) {
	now := m.now().UTC()
	claims := &AccessClaims{
		Roles:     roles,
		TokenType: TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    m.issuer,
			Subject:   userCode,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessTokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.accessSecretKey)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, claims, nil
}

// GenerateRefreshToken генерирует refresh токен. tokenID совпадает с ключом записи в хранилище.
func (m *Manager) GenerateRefreshToken(userCode, ownerID, tokenID string) (string, *RefreshClaims, error) {
	if len(m.refreshSecretKey) == 0 {
		return "", nil, ErrRefreshDisabled
	}

	now := m.now().UTC()
	claims := &RefreshClaims{
		OwnerID:   ownerID,
		TokenType: TokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			Issuer:    m.issuer,
			Subject:   userCode,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.refreshTokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.refreshSecretKey)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}
	return signed, claims, nil
}

// ValidateAccessToken проверяет подпись, срок действия и тип access токена. Хранилище не используется.
func (m *Manager) ValidateAccessToken(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := m.parse(token, claims, m.accessSecretKey); err != nil {
		return nil, err
	}
	if claims.TokenType != TokenTypeAccess {
		return nil, fmt.Errorf("%w: expected 'access', got '%s'", ErrTokenInvalid, claims.TokenType)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	return claims, nil
}

// ValidateRefreshToken проверяет подпись, срок действия и тип refresh токена
func (m *Manager) ValidateRefreshToken(token string) (*RefreshClaims, error) {
	if len(m.refreshSecretKey) == 0 {
		return nil, ErrRefreshDisabled
	}

	claims := &RefreshClaims{}
	if err := m.parse(token, claims, m.refreshSecretKey); err != nil {
		return nil, err
	}
	if claims.TokenType != TokenTypeRefresh {
		return nil, fmt.Errorf("%w: expected 'refresh', got '%s'", ErrTokenInvalid, claims.TokenType)
	}
	if claims.ID == "" || claims.OwnerID == "" {
		return nil, fmt.Errorf("%w: missing token id or owner", ErrTokenInvalid)
	}
	return claims, nil
}

// parse разбирает токен и сводит ошибки библиотеки к ErrTokenExpired / ErrTokenInvalid
func (m *Manager) parse(token string, claims jwt.Claims, secretKey []byte) error {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secretKey, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !parsed.Valid {
		return ErrTokenInvalid
	}
	return nil
}
