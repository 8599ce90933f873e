package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ErkamTaha/smart-factory/internal/acl"
	"github.com/ErkamTaha/smart-factory/internal/domain"
	"github.com/ErkamTaha/smart-factory/internal/emqx"
	"github.com/ErkamTaha/smart-factory/internal/repository"
	"github.com/ErkamTaha/smart-factory/internal/session"

	"go.uber.org/zap"
)

// ACLHandler ACL管理Handler
// 变更类操作在落库后通知会话注册表重新校验订阅
type ACLHandler struct {
	engine       *acl.Engine
	registry     *session.Registry
	accountsRepo repository.AccountsRepository
	rolesRepo    repository.RolesRepository
	auditRepo    repository.AuditRepository
	provisioner  *emqx.AuthProvisioner // 可为nil（开发环境无EMQX管理API）
	logger       *zap.Logger
}

// NewACLHandler 创建ACL管理Handler
func NewACLHandler(
	engine *acl.Engine,
	registry *session.Registry,
	accountsRepo repository.AccountsRepository,
	rolesRepo repository.RolesRepository,
	auditRepo repository.AuditRepository,
	provisioner *emqx.AuthProvisioner,
	logger *zap.Logger,
) *ACLHandler {
	return &ACLHandler{
		engine:       engine,
		registry:     registry,
		accountsRepo: accountsRepo,
		rolesRepo:    rolesRepo,
		auditRepo:    auditRepo,
		provisioner:  provisioner,
		logger:       logger,
	}
}

// ServeHTTP 实现 http.Handler 接口
func (h *ACLHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case path == "/api/v1/acl/accounts" && r.Method == http.MethodGet:
		h.ListAccounts(w, r)
	case path == "/api/v1/acl/accounts" && r.Method == http.MethodPost:
		h.CreateAccount(w, r)
	case path == "/api/v1/acl/roles" && r.Method == http.MethodGet:
		h.ListRoles(w, r)
	case path == "/api/v1/acl/roles" && r.Method == http.MethodPut:
		h.PutRole(w, r)
	case path == "/api/v1/acl/reload" && r.Method == http.MethodPost:
		h.Reload(w, r)
	case path == "/api/v1/acl/audit" && r.Method == http.MethodGet:
		h.ListAudit(w, r)
	case strings.HasPrefix(path, "/api/v1/acl/accounts/"):
		h.dispatchAccount(w, r, strings.TrimPrefix(path, "/api/v1/acl/accounts/"))
	case strings.HasPrefix(path, "/api/v1/acl/roles/") && r.Method == http.MethodDelete:
		name := strings.TrimPrefix(path, "/api/v1/acl/roles/")
		if name == "" || strings.Contains(name, "/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.DeleteRole(w, r, name)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// dispatchAccount 账号子路由：/{username}[/roles|/permissions]
func (h *ACLHandler) dispatchAccount(w http.ResponseWriter, r *http.Request, rest string) {
	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 1 && parts[0] != "" && r.Method == http.MethodGet:
		h.GetAccountPermissions(w, r, parts[0])
	case len(parts) == 1 && parts[0] != "" && r.Method == http.MethodDelete:
		h.RemoveAccount(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "roles" && r.Method == http.MethodPut:
		h.SetRoles(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "permissions" && r.Method == http.MethodPost:
		h.AppendPermission(w, r, parts[0])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// ListAccounts 查询账号列表
func (h *ACLHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active_only") == "true"
	accounts, err := h.accountsRepo.ListAccounts(r.Context(), activeOnly)
	if err != nil {
		h.logger.Error("failed to list accounts", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to list accounts"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(accounts))
}

// CreateAccount 创建账号（含角色与自定义规则）
func (h *ACLHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username          string              `json:"username"`
		Email             string              `json:"email"`
		Password          string              `json:"password"`
		Roles             []string            `json:"roles"`
		CustomPermissions []domain.Permission `json:"custom_permissions"`
	}
	if err := readBodyJSON(r, 1<<20, &req); err != nil || req.Username == "" {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}

	if err := h.engine.AddAccount(r.Context(), req.Username, req.Email, req.Roles, req.CustomPermissions); err != nil {
		h.writeEngineError(w, "create account", err)
		return
	}

	// broker侧同步一份凭证，失败不回滚账号（broker可能尚未就绪）
	if h.provisioner != nil && req.Password != "" {
		if err := h.provisioner.EnsureCredential(r.Context(), req.Username, req.Password); err != nil {
			h.logger.Error("failed to provision broker credential",
				zap.String("username", req.Username),
				zap.Error(err),
			)
		}
	}
	writeJSON(w, http.StatusCreated, Ok(map[string]string{"username": req.Username}))
}

// GetAccountPermissions 查询账号的有效权限规则（角色展开后）
func (h *ACLHandler) GetAccountPermissions(w http.ResponseWriter, r *http.Request, username string) {
	permissions, err := h.engine.GetAccountPermissions(r.Context(), username)
	if err != nil {
		h.writeEngineError(w, "get account permissions", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(permissions))
}

// RemoveAccount 停用账号并拆除其活跃会话
func (h *ACLHandler) RemoveAccount(w http.ResponseWriter, r *http.Request, username string) {
	if err := h.engine.RemoveAccount(r.Context(), username); err != nil {
		h.writeEngineError(w, "remove account", err)
		return
	}
	h.registry.RemoveSession(username)

	if h.provisioner != nil {
		if err := h.provisioner.DeleteCredential(r.Context(), username); err != nil {
			h.logger.Error("failed to delete broker credential",
				zap.String("username", username),
				zap.Error(err),
			)
		}
	}
	writeJSON(w, http.StatusOK, Ok(map[string]string{"username": username}))
}

// SetRoles 整体替换账号角色，立即对活跃会话生效
func (h *ACLHandler) SetRoles(w http.ResponseWriter, r *http.Request, username string) {
	var req struct {
		Roles []string `json:"roles"`
	}
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}

	if err := h.engine.SetRoles(r.Context(), username, req.Roles); err != nil {
		h.writeEngineError(w, "set roles", err)
		return
	}
	h.registry.OnPolicyChanged(r.Context())
	writeJSON(w, http.StatusOK, Ok(map[string]string{"username": username}))
}

// AppendPermission 追加自定义权限规则，立即对活跃会话生效
func (h *ACLHandler) AppendPermission(w http.ResponseWriter, r *http.Request, username string) {
	var permission domain.Permission
	if err := readBodyJSON(r, 1<<20, &permission); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}

	if err := h.engine.AppendPermission(r.Context(), username, permission); err != nil {
		h.writeEngineError(w, "append permission", err)
		return
	}
	h.registry.OnPolicyChanged(r.Context())
	writeJSON(w, http.StatusOK, Ok(map[string]string{"username": username}))
}

// ListRoles 查询角色列表
func (h *ACLHandler) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.rolesRepo.ListRoles(r.Context())
	if err != nil {
		h.logger.Error("failed to list roles", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to list roles"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(roles))
}

// PutRole 创建或整体替换角色，随后刷新缓存并重新校验会话
func (h *ACLHandler) PutRole(w http.ResponseWriter, r *http.Request) {
	var role domain.Role
	if err := readBodyJSON(r, 1<<20, &role); err != nil || role.Name == "" {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}

	if err := h.rolesRepo.PutRole(r.Context(), &role); err != nil {
		h.logger.Error("failed to put role", zap.String("role", role.Name), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to put role"))
		return
	}

	// 角色内容变化影响所有引用它的账号：清空缓存重建
	h.engine.Reload()
	h.registry.OnPolicyChanged(r.Context())
	writeJSON(w, http.StatusOK, Ok(map[string]string{"role": role.Name}))
}

// DeleteRole 删除角色
func (h *ACLHandler) DeleteRole(w http.ResponseWriter, r *http.Request, name string) {
	if err := h.rolesRepo.DeleteRole(r.Context(), name); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, Fail("role not found"))
			return
		}
		h.logger.Error("failed to delete role", zap.String("role", name), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to delete role"))
		return
	}

	h.engine.Reload()
	h.registry.OnPolicyChanged(r.Context())
	writeJSON(w, http.StatusOK, Ok(map[string]string{"role": name}))
}

// Reload 清空规则缓存并重新校验所有活跃会话
func (h *ACLHandler) Reload(w http.ResponseWriter, r *http.Request) {
	h.engine.Reload()
	h.registry.OnPolicyChanged(r.Context())
	writeJSON(w, http.StatusOK, Ok(map[string]string{"status": "reloaded"}))
}

// ListAudit 查询最近的权限评估审计记录
func (h *ACLHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	limit := parseInt(r.URL.Query().Get("limit"), 100)
	entries, err := h.auditRepo.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list audit entries", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to list audit entries"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(entries))
}

func (h *ACLHandler) writeEngineError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, Fail("account not found"))
	case errors.Is(err, domain.ErrValidation):
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
	default:
		h.logger.Error("ACL operation failed", zap.String("op", op), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("internal error"))
	}
}
