package acl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ErkamTaha/smart-factory/internal/cache"
	"github.com/ErkamTaha/smart-factory/internal/domain"
	"github.com/ErkamTaha/smart-factory/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// accountEntry 缓存槽：账号的已展开规则快照
// 整个槽一次性替换，读取方永远看到完整的旧值或完整的新值
type accountEntry struct {
	active bool
	// 角色规则（按角色分配顺序）在前，自定义规则（按插入顺序）在后
	rules []domain.Permission
}

// Engine ACL评估引擎
//
// 评估是确定性的：规则按固定顺序扫描，第一条模式匹配的规则决定结果——
// 显式deny立即返回false，显式allow立即返回true，两者都不含该操作则继续扫描。
// 多条allow规则同时匹配时，定义顺序在前者生效（契约，见测试）。
// 扫描结束无规则命中时返回默认策略。
type Engine struct {
	accountsRepo repository.AccountsRepository
	rolesRepo    repository.RolesRepository
	auditRepo    repository.AuditRepository

	accountCache *cache.TTLCache[accountEntry]
	defaultAllow bool
	logger       *zap.Logger
}

// NewEngine 创建ACL评估引擎
// defaultPolicy: "allow" 或 "deny"
func NewEngine(
	accountsRepo repository.AccountsRepository,
	rolesRepo repository.RolesRepository,
	auditRepo repository.AuditRepository,
	defaultPolicy string,
	cacheTTL time.Duration,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		accountsRepo: accountsRepo,
		rolesRepo:    rolesRepo,
		auditRepo:    auditRepo,
		accountCache: cache.NewTTL[accountEntry](0, cacheTTL),
		defaultAllow: defaultPolicy == "allow",
		logger:       logger,
	}
}

// Evaluate 评估账号对主题执行操作的权限
// 存储不可达时fail-closed（拒绝），审计失败不影响决策
func (e *Engine) Evaluate(ctx context.Context, username, topic string, action domain.Action) bool {
	entry, err := e.loadEntry(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			e.audit(ctx, username, topic, action, "denied", "user_not_found")
			return e.defaultAllow
		}
		// 后端故障：fail-closed
		e.logger.Error("ACL backend unavailable, denying",
			zap.String("username", username),
			zap.String("topic", topic),
			zap.Error(err),
		)
		e.audit(ctx, username, topic, action, "error", err.Error())
		return false
	}

	if !entry.active {
		e.audit(ctx, username, topic, action, "denied", "user_inactive")
		return e.defaultAllow
	}

	// 评估路径上的副作用，失败可忽略
	if err := e.accountsRepo.TouchLastLogin(ctx, username, time.Now().UTC()); err != nil {
		e.logger.Debug("failed to touch last_login", zap.String("username", username), zap.Error(err))
	}

	for _, rule := range entry.rules {
		pattern := ExpandPattern(rule.Pattern, username)
		if !MatchTopic(pattern, topic) {
			continue
		}
		if rule.Denies(action) {
			e.audit(ctx, username, topic, action, "denied", "explicit_deny")
			return false
		}
		if rule.Allows(action) {
			e.audit(ctx, username, topic, action, "allowed", "permission_match")
			return true
		}
	}

	e.audit(ctx, username, topic, action, decisionString(e.defaultAllow), "no_match")
	return e.defaultAllow
}

// CanSubscribe 判断账号是否可订阅主题
func (e *Engine) CanSubscribe(ctx context.Context, username, topic string) bool {
	return e.Evaluate(ctx, username, topic, domain.ActionSubscribe)
}

// CanPublish 判断账号是否可发布到主题
func (e *Engine) CanPublish(ctx context.Context, username, topic string) bool {
	return e.Evaluate(ctx, username, topic, domain.ActionPublish)
}

// Reload 清空缓存，后续评估重新读取账号/角色定义
func (e *Engine) Reload() {
	e.accountCache.Purge()
	e.logger.Info("ACL cache invalidated")
}

// AddAccount 创建账号
// 不存在的角色记录warn后跳过（与角色列表保持一致后落库）
func (e *Engine) AddAccount(ctx context.Context, username, email string, roles []string, customPermissions []domain.Permission) error {
	if username == "" {
		return fmt.Errorf("%w: username is required", domain.ErrValidation)
	}
	if err := validatePermissions(customPermissions); err != nil {
		return err
	}

	validRoles, err := e.filterKnownRoles(ctx, roles)
	if err != nil {
		return err
	}

	account := &domain.Account{
		Username:          username,
		Email:             email,
		Roles:             validRoles,
		CustomPermissions: customPermissions,
		IsActive:          true,
	}
	if err := e.accountsRepo.CreateAccount(ctx, account); err != nil {
		return err
	}

	e.refreshEntry(ctx, username)
	e.logger.Info("ACL account created",
		zap.String("username", username),
		zap.Strings("roles", validRoles),
	)
	return nil
}

// RemoveAccount 停用账号（软删除）
func (e *Engine) RemoveAccount(ctx context.Context, username string) error {
	if err := e.accountsRepo.DeactivateAccount(ctx, username); err != nil {
		return err
	}
	e.accountCache.Delete(username)
	e.logger.Info("ACL account deactivated", zap.String("username", username))
	return nil
}

// SetRoles 替换账号的角色列表
// 落库成功后整体替换缓存槽，并发读取方不会观察到半更新状态
func (e *Engine) SetRoles(ctx context.Context, username string, roles []string) error {
	account, err := e.accountsRepo.GetAccount(ctx, username)
	if err != nil {
		return err
	}

	validRoles, err := e.filterKnownRoles(ctx, roles)
	if err != nil {
		return err
	}

	account.Roles = validRoles
	if err := e.accountsRepo.UpdateAccount(ctx, account); err != nil {
		return err
	}

	e.refreshEntry(ctx, username)
	e.logger.Info("ACL roles updated",
		zap.String("username", username),
		zap.Strings("roles", validRoles),
	)
	return nil
}

// AppendPermission 追加一条自定义权限规则（插入顺序保留）
func (e *Engine) AppendPermission(ctx context.Context, username string, permission domain.Permission) error {
	if err := validatePermissions([]domain.Permission{permission}); err != nil {
		return err
	}

	account, err := e.accountsRepo.GetAccount(ctx, username)
	if err != nil {
		return err
	}

	account.CustomPermissions = append(account.CustomPermissions, permission)
	if err := e.accountsRepo.UpdateAccount(ctx, account); err != nil {
		return err
	}

	e.refreshEntry(ctx, username)
	e.logger.Info("ACL permission appended",
		zap.String("username", username),
		zap.String("pattern", permission.Pattern),
	)
	return nil
}

// GetAccountPermissions 返回账号展开后的全部规则（角色规则+自定义规则，评估顺序）
func (e *Engine) GetAccountPermissions(ctx context.Context, username string) ([]domain.Permission, error) {
	entry, err := e.loadEntry(ctx, username)
	if err != nil {
		return nil, err
	}
	return entry.rules, nil
}

// loadEntry 读取账号缓存槽，miss时从存储构建
func (e *Engine) loadEntry(ctx context.Context, username string) (accountEntry, error) {
	if entry, ok := e.accountCache.Get(username); ok {
		return entry, nil
	}
	return e.buildEntry(ctx, username)
}

// buildEntry 从存储构建缓存槽并写入缓存
func (e *Engine) buildEntry(ctx context.Context, username string) (accountEntry, error) {
	account, err := e.accountsRepo.GetAccount(ctx, username)
	if err != nil {
		return accountEntry{}, err
	}

	var rules []domain.Permission
	for _, roleName := range account.Roles {
		role, err := e.rolesRepo.GetRole(ctx, roleName)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				e.logger.Warn("role referenced by account does not exist",
					zap.String("username", username),
					zap.String("role", roleName),
				)
				continue
			}
			return accountEntry{}, err
		}
		rules = append(rules, role.Permissions...)
	}
	rules = append(rules, account.CustomPermissions...)

	entry := accountEntry{active: account.IsActive, rules: rules}
	e.accountCache.Set(username, entry)
	return entry, nil
}

// refreshEntry 重建缓存槽；失败时退化为删除（下次评估重新读取）
func (e *Engine) refreshEntry(ctx context.Context, username string) {
	e.accountCache.Delete(username)
	if _, err := e.buildEntry(ctx, username); err != nil {
		e.logger.Warn("failed to rebuild ACL cache entry",
			zap.String("username", username),
			zap.Error(err),
		)
	}
}

// filterKnownRoles 过滤掉不存在的角色，存储故障时返回错误
func (e *Engine) filterKnownRoles(ctx context.Context, roles []string) ([]string, error) {
	valid := make([]string, 0, len(roles))
	for _, name := range roles {
		if _, err := e.rolesRepo.GetRole(ctx, name); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				e.logger.Warn("role does not exist, skipping", zap.String("role", name))
				continue
			}
			return nil, err
		}
		valid = append(valid, name)
	}
	return valid, nil
}

// audit 尽力而为写审计记录，失败只记日志
func (e *Engine) audit(ctx context.Context, username, topic string, action domain.Action, result, reason string) {
	entry := &domain.AuditEntry{
		ID:        uuid.New().String(),
		Username:  username,
		Action:    "permission_check",
		Resource:  fmt.Sprintf("%s:%s", action, topic),
		Result:    result,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}
	if err := e.auditRepo.Append(ctx, entry); err != nil {
		e.logger.Error("failed to write ACL audit entry",
			zap.String("username", username),
			zap.Error(err),
		)
	}
}

func validatePermissions(perms []domain.Permission) error {
	for _, p := range perms {
		if p.Pattern == "" {
			return fmt.Errorf("%w: permission pattern is required", domain.ErrValidation)
		}
		for _, a := range append(append([]domain.Action{}, p.Allow...), p.Deny...) {
			if a != domain.ActionSubscribe && a != domain.ActionPublish {
				return fmt.Errorf("%w: unknown action %q", domain.ErrValidation, a)
			}
		}
	}
	return nil
}

func decisionString(allowed bool) string {
	if allowed {
		return "allowed"
	}
	return "denied"
}
