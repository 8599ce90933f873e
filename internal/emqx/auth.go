// Package emqx 封装EMQX管理API的broker凭证下发
//
// 用户在平台侧创建后，在broker的内置密码认证库里同步一份凭证，
// 会话代理用它建立broker连接。
package emqx

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ErkamTaha/smart-factory/internal/domain"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const authenticatorID = "password_based:built_in_database"

// credentialBody 创建/更新凭证的请求体
type credentialBody struct {
	UserID   string `json:"user_id,omitempty"`
	Password string `json:"password"`
}

// CredentialInfo EMQX返回的凭证信息（不含密码）
type CredentialInfo struct {
	UserID      string `json:"user_id"`
	IsSuperuser bool   `json:"is_superuser"`
}

// apiError EMQX管理API的错误响应
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AuthProvisioner EMQX内置密码认证库的凭证管理客户端
type AuthProvisioner struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewAuthProvisioner 创建凭证下发客户端
// apiKey/apiSecret 是EMQX管理API的key对，经BasicAuth传递
func NewAuthProvisioner(apiURL, apiKey, apiSecret string, logger *zap.Logger) *AuthProvisioner {
	client := resty.New().
		SetBaseURL(apiURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetBasicAuth(apiKey, apiSecret).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &AuthProvisioner{
		httpClient: client,
		logger:     logger,
	}
}

// EnsureCredential 确保broker侧存在该用户的凭证
// 已存在（409）时改为更新密码，结果等价
func (p *AuthProvisioner) EnsureCredential(ctx context.Context, userID, password string) error {
	var errBody apiError
	resp, err := p.httpClient.R().
		SetContext(ctx).
		SetBody(credentialBody{UserID: userID, Password: password}).
		SetError(&errBody).
		Post(p.usersPath())

	if err != nil {
		return fmt.Errorf("%w: create broker credential: %v", domain.ErrBackendUnavailable, err)
	}

	switch resp.StatusCode() {
	case http.StatusCreated, http.StatusOK:
		p.logger.Info("broker credential created", zap.String("user_id", userID))
		return nil
	case http.StatusConflict:
		p.logger.Debug("broker credential exists, updating password",
			zap.String("user_id", userID),
		)
		return p.UpdateCredential(ctx, userID, password)
	default:
		p.logger.Error("EMQX API rejected credential creation",
			zap.String("user_id", userID),
			zap.Int("status_code", resp.StatusCode()),
			zap.String("code", errBody.Code),
		)
		return fmt.Errorf("create broker credential: %s (status: %d)", errBody.Message, resp.StatusCode())
	}
}

// UpdateCredential 更新已存在凭证的密码
func (p *AuthProvisioner) UpdateCredential(ctx context.Context, userID, password string) error {
	var errBody apiError
	resp, err := p.httpClient.R().
		SetContext(ctx).
		SetBody(credentialBody{Password: password}).
		SetError(&errBody).
		Put(p.userPath(userID))

	if err != nil {
		return fmt.Errorf("%w: update broker credential: %v", domain.ErrBackendUnavailable, err)
	}

	switch resp.StatusCode() {
	case http.StatusOK, http.StatusNoContent:
		p.logger.Info("broker credential updated", zap.String("user_id", userID))
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("%w: broker credential %s", domain.ErrNotFound, userID)
	default:
		return fmt.Errorf("update broker credential: %s (status: %d)", errBody.Message, resp.StatusCode())
	}
}

// DeleteCredential 删除broker侧凭证（不存在视为成功）
func (p *AuthProvisioner) DeleteCredential(ctx context.Context, userID string) error {
	var errBody apiError
	resp, err := p.httpClient.R().
		SetContext(ctx).
		SetError(&errBody).
		Delete(p.userPath(userID))

	if err != nil {
		return fmt.Errorf("%w: delete broker credential: %v", domain.ErrBackendUnavailable, err)
	}

	switch resp.StatusCode() {
	case http.StatusNoContent, http.StatusOK, http.StatusNotFound:
		p.logger.Info("broker credential deleted", zap.String("user_id", userID))
		return nil
	default:
		return fmt.Errorf("delete broker credential: %s (status: %d)", errBody.Message, resp.StatusCode())
	}
}

// GetCredential 查询broker侧凭证是否存在
func (p *AuthProvisioner) GetCredential(ctx context.Context, userID string) (*CredentialInfo, error) {
	var info CredentialInfo
	var errBody apiError
	resp, err := p.httpClient.R().
		SetContext(ctx).
		SetResult(&info).
		SetError(&errBody).
		Get(p.userPath(userID))

	if err != nil {
		return nil, fmt.Errorf("%w: get broker credential: %v", domain.ErrBackendUnavailable, err)
	}

	switch resp.StatusCode() {
	case http.StatusOK:
		return &info, nil
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: broker credential %s", domain.ErrNotFound, userID)
	default:
		return nil, fmt.Errorf("get broker credential: %s (status: %d)", errBody.Message, resp.StatusCode())
	}
}

func (p *AuthProvisioner) usersPath() string {
	return fmt.Sprintf("/api/v5/authentication/%s/users", authenticatorID)
}

func (p *AuthProvisioner) userPath(userID string) string {
	return fmt.Sprintf("/api/v5/authentication/%s/users/%s", authenticatorID, url.PathEscape(userID))
}
