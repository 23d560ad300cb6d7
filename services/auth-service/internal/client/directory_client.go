package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "RetailBackOffice/pkg/errors"
	"RetailBackOffice/pkg/logger"
	"RetailBackOffice/services/auth-service/internal/domain"
	"RetailBackOffice/services/auth-service/internal/repository"
)

// ErrDirectoryUnavailable справочник учетных записей не ответил
var ErrDirectoryUnavailable = apperrors.New(apperrors.ErrUnavailable, "identity directory is unavailable").WithReason("DIRECTORY_UNAVAILABLE")

// DirectoryClient HTTP клиент справочника учетных записей.
// Используется только для поиска адресата писем, решения о доступе по нему не принимаются.
type DirectoryClient struct {
	baseURL string
	client  *http.Client
	logger  logger.Logger
}

// NewDirectoryClient создает новый HTTP клиент справочника
func NewDirectoryClient(baseURL string, timeout time.Duration, log logger.Logger) *DirectoryClient {
	return &DirectoryClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  log,
	}
}

// FindByEmail ищет учетную запись по адресу: GET {base}/internal/identities?email=
// Возвращает repository.ErrNotFound, если записи нет.
func (c *DirectoryClient) FindByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	endpoint := fmt.Sprintf("%s/internal/identities?%s", c.baseURL, url.Values{"email": {email}}.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternal, "failed to build directory request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("Directory request failed", logger.Error(err), logger.CtxField(ctx))
		return nil, ErrDirectoryUnavailable.WithCause(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, repository.ErrNotFound
	default:
		c.logger.Error("Directory returned unexpected status", logger.Int("status", resp.StatusCode))
		return nil, ErrDirectoryUnavailable.WithDetails(fmt.Sprintf("status %d", resp.StatusCode))
	}

	var identity domain.Identity
	if err := json.NewDecoder(resp.Body).Decode(&identity); err != nil {
		return nil, ErrDirectoryUnavailable.WithCause(fmt.Errorf("failed to decode response: %w", err))
	}
	if identity.ID == "" {
		return nil, repository.ErrNotFound
	}
	return &identity, nil
}
