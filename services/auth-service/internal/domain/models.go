package domain

import (
	"sort"
	"time"
)

// RoleName имя роли. Роли являются неизменяемым справочником.
type RoleName string

// Предустановленные роли
const (
	RoleAdmin   RoleName = "ADMIN"
	RoleManager RoleName = "MANAGER"
	RoleCashier RoleName = "CASHIER"
	RoleUser    RoleName = "USER"
)

// Role представляет роль из справочника
type Role struct {
	Name RoleName `json:"name"`
}

// CredentialRecord локальная проекция учетных данных пользователя.
// Источником истины для профиля является сервис учетных записей; запись создается только событием Created
// и никогда не удаляется физически.
//
// Version локальная ревизия записи: растет при каждом примененном событии и смене пароля,
// используется как токен оптимистичной блокировки. ProfileSeq, StatusSeq и CredentialSeq хранят
// последний примененный sequence события для профиля, статуса и хеша пароля соответственно.
type CredentialRecord struct {
	UserID        string     `json:"user_id"`
	UserCode      string     `json:"user_code"`
	Email         string     `json:"email"`
	PasswordHash  string     `json:"-"`
	Roles         []RoleName `json:"roles"`
	IsDeleted     bool       `json:"is_deleted"`
	Version       int64      `json:"version"`
	ProfileSeq    int64      `json:"profile_seq"`
	StatusSeq     int64      `json:"status_seq"`
	CredentialSeq int64      `json:"credential_seq"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// IsActive запись не удалена и имеет хотя бы одну роль
func (c *CredentialRecord) IsActive() bool {
	return c != nil && !c.IsDeleted && len(c.Roles) > 0
}

// RoleStrings возвращает роли в виде строк (для claims)
func (c *CredentialRecord) RoleStrings() []string {
	out := make([]string, len(c.Roles))
	for i, r := range c.Roles {
		out[i] = string(r)
	}
	return out
}

// Clone возвращает независимую копию записи
func (c *CredentialRecord) Clone() *CredentialRecord {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Roles = append([]RoleName(nil), c.Roles...)
	return &cp
}

// NormalizeRoles убирает дубликаты и пустые значения, сортирует роли. Роли являются множеством.
func NormalizeRoles(roles []string) []RoleName {
	seen := make(map[RoleName]struct{}, len(roles))
	out := make([]RoleName, 0, len(roles))
	for _, r := range roles {
		if r == "" {
			continue
		}
		name := RoleName(r)
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RefreshToken запись об выданном refresh токене. Хранится в Redis, чтобы его можно было отозвать до истечения.
type RefreshToken struct {
	TokenID    string    `json:"token_id"`
	OwnerID    string    `json:"owner_id"`
	UserCode   string    `json:"user_code"`
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	Revoked    bool      `json:"revoked"`
	ReplacedBy string    `json:"replaced_by,omitempty"`
}

// IsExpired истек ли срок действия токена на момент now
func (t *RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// ResetPurpose назначение одноразового токена
type ResetPurpose string

const (
	PurposePassword ResetPurpose = "password"
	PurposeUserCode ResetPurpose = "userCode"
)

// ResetToken одноразовый токен восстановления. Значение токена не хранится, только SHA256 хеш.
// Состояния: Issued -> Consumed или Issued -> Expired, обратных переходов нет.
type ResetToken struct {
	TokenHash  string       `json:"-"`
	OwnerID    string       `json:"owner_id"`
	Purpose    ResetPurpose `json:"purpose"`
	ExpiresAt  time.Time    `json:"expires_at"`
	ConsumedAt *time.Time   `json:"consumed_at,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
}

// ResetTokenState состояние токена восстановления
type ResetTokenState string

const (
	ResetTokenIssued   ResetTokenState = "issued"
	ResetTokenConsumed ResetTokenState = "consumed"
	ResetTokenExpired  ResetTokenState = "expired"
)

// State вычисляет состояние токена. Погашенный токен остается погашенным независимо от времени.
func (t *ResetToken) State(now time.Time) ResetTokenState {
	switch {
	case t.ConsumedAt != nil:
		return ResetTokenConsumed
	case !now.Before(t.ExpiresAt):
		return ResetTokenExpired
	default:
		return ResetTokenIssued
	}
}

// TokenPair пара токенов, выдаваемая при входе и обновлении
type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	TokenType        string    `json:"tokenType"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

// Identity запись из справочника учетных записей (внешний сервис)
type Identity struct {
	ID       string `json:"id"`
	UserCode string `json:"userCode"`
	Email    string `json:"email"`
}
