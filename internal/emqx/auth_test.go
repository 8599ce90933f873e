package emqx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ErkamTaha/smart-factory/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeEMQX 模拟EMQX管理API的内置密码认证库
type fakeEMQX struct {
	mu    sync.Mutex
	users map[string]string // user_id -> password
}

func newFakeEMQX() *fakeEMQX {
	return &fakeEMQX{users: map[string]string{}}
}

func (f *fakeEMQX) handler() http.Handler {
	mux := http.NewServeMux()
	basePath := "/api/v5/authentication/password_based:built_in_database/users"

	mux.HandleFunc(basePath, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			UserID   string `json:"user_id"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		f.mu.Lock()
		defer f.mu.Unlock()
		if _, exists := f.users[body.UserID]; exists {
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(map[string]string{
				"code":    "ALREADY_EXISTS",
				"message": "user already exists",
			})
			return
		}
		f.users[body.UserID] = body.Password
		w.WriteHeader(http.StatusCreated)
	})

	mux.HandleFunc(basePath+"/", func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Path[len(basePath)+1:]

		f.mu.Lock()
		defer f.mu.Unlock()
		_, exists := f.users[userID]

		switch r.Method {
		case http.MethodGet:
			if !exists {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			json.NewEncoder(w).Encode(map[string]any{"user_id": userID, "is_superuser": false})
		case http.MethodPut:
			if !exists {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			var body struct {
				Password string `json:"password"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			f.users[userID] = body.Password
			w.WriteHeader(http.StatusOK)
		case http.MethodDelete:
			if !exists {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			delete(f.users, userID)
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	return mux
}

func setupProvisioner(t *testing.T) (*AuthProvisioner, *fakeEMQX) {
	t.Helper()
	emqx := newFakeEMQX()
	server := httptest.NewServer(emqx.handler())
	t.Cleanup(server.Close)

	return NewAuthProvisioner(server.URL, "key", "secret", zap.NewNop()), emqx
}

func TestEnsureCredential_Creates(t *testing.T) {
	provisioner, emqx := setupProvisioner(t)

	err := provisioner.EnsureCredential(context.Background(), "alice", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "secret1", emqx.users["alice"])
}

func TestEnsureCredential_ConflictUpdatesPassword(t *testing.T) {
	provisioner, emqx := setupProvisioner(t)
	ctx := context.Background()

	require.NoError(t, provisioner.EnsureCredential(ctx, "alice", "secret1"))
	// 已存在时走更新路径，结果等价
	require.NoError(t, provisioner.EnsureCredential(ctx, "alice", "secret2"))
	assert.Equal(t, "secret2", emqx.users["alice"])
}

func TestUpdateCredential_NotFound(t *testing.T) {
	provisioner, _ := setupProvisioner(t)

	err := provisioner.UpdateCredential(context.Background(), "ghost", "pw")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestDeleteCredential_MissingIsSuccess(t *testing.T) {
	provisioner, emqx := setupProvisioner(t)
	ctx := context.Background()

	require.NoError(t, provisioner.EnsureCredential(ctx, "alice", "pw"))
	require.NoError(t, provisioner.DeleteCredential(ctx, "alice"))
	assert.NotContains(t, emqx.users, "alice")

	// 重复删除不报错
	assert.NoError(t, provisioner.DeleteCredential(ctx, "alice"))
}

func TestCredential_UserIDWithReservedChars(t *testing.T) {
	provisioner, emqx := setupProvisioner(t)
	ctx := context.Background()

	// '#'不转义会被当作URL fragment截断路径
	userID := "dept#1/alice"
	require.NoError(t, provisioner.EnsureCredential(ctx, userID, "pw"))

	info, err := provisioner.GetCredential(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, userID, info.UserID)

	require.NoError(t, provisioner.UpdateCredential(ctx, userID, "pw2"))
	assert.Equal(t, "pw2", emqx.users[userID])

	require.NoError(t, provisioner.DeleteCredential(ctx, userID))
	assert.NotContains(t, emqx.users, userID)
}

func TestGetCredential(t *testing.T) {
	provisioner, _ := setupProvisioner(t)
	ctx := context.Background()

	_, err := provisioner.GetCredential(ctx, "alice")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	require.NoError(t, provisioner.EnsureCredential(ctx, "alice", "pw"))
	info, err := provisioner.GetCredential(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", info.UserID)
	assert.False(t, info.IsSuperuser)
}
