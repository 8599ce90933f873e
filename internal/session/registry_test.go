package session

import (
	"context"
	"sync"
	"testing"
	"time"

	mqtt "github.com/ErkamTaha/smart-factory/common/mqtt"
	"github.com/ErkamTaha/smart-factory/internal/acl"
	"github.com/ErkamTaha/smart-factory/internal/domain"
	"github.com/ErkamTaha/smart-factory/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// multiBrokerDialer 每次建连生成独立的fakeBroker，记录全部实例
type multiBrokerDialer struct {
	mu      sync.Mutex
	brokers []*fakeBroker
}

func (d *multiBrokerDialer) dial(opts *mqtt.ClientOptions) BrokerConn {
	broker := newFakeBroker()
	broker.opts = opts

	d.mu.Lock()
	d.brokers = append(d.brokers, broker)
	d.mu.Unlock()
	return broker
}

func (d *multiBrokerDialer) connectedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	count := 0
	for _, broker := range d.brokers {
		if broker.IsConnected() {
			count++
		}
	}
	return count
}

func setupRegistry(t *testing.T) (*Registry, *acl.Engine, *multiBrokerDialer) {
	t.Helper()
	ctx := context.Background()

	accountsRepo := repository.NewMemoryAccountsRepository()
	rolesRepo := repository.NewMemoryRolesRepository()
	auditRepo := repository.NewMemoryAuditRepository()
	engine := acl.NewEngine(accountsRepo, rolesRepo, auditRepo, "deny", 5*time.Minute, zap.NewNop())

	require.NoError(t, rolesRepo.PutRole(ctx, &domain.Role{
		Name: "operator",
		Permissions: []domain.Permission{
			{
				Pattern: "sf/sensors/#",
				Allow:   []domain.Action{domain.ActionSubscribe, domain.ActionPublish},
			},
		},
	}))
	require.NoError(t, engine.AddAccount(ctx, "alice", "", []string{"operator"}, nil))
	require.NoError(t, engine.AddAccount(ctx, "bob", "", []string{"operator"}, nil))

	dialer := &multiBrokerDialer{}
	registry := NewRegistry(engine, nil, testConfig(), dialer.dial, zap.NewNop())
	t.Cleanup(registry.CloseAll)

	return registry, engine, dialer
}

func TestCreateSession_SingleConnectionPerUser(t *testing.T) {
	registry, _, dialer := setupRegistry(t)
	ctx := context.Background()

	first, err := registry.CreateSession(ctx, "alice", &fakeSink{})
	require.NoError(t, err)

	// 同一用户再次建会话：旧连接先完整拆除
	second, err := registry.CreateSession(ctx, "alice", &fakeSink{})
	require.NoError(t, err)

	assert.Equal(t, 1, registry.Count())
	assert.Equal(t, 1, dialer.connectedCount())
	assert.Equal(t, domain.SessionClosed, first.Info().State)
	assert.Equal(t, domain.SessionConnected, second.Info().State)

	current, ok := registry.GetSession("alice")
	require.True(t, ok)
	assert.Same(t, second, current)
}

func TestRemoveSession(t *testing.T) {
	registry, _, dialer := setupRegistry(t)
	ctx := context.Background()

	proxy, err := registry.CreateSession(ctx, "alice", &fakeSink{})
	require.NoError(t, err)

	registry.RemoveSession("alice")
	assert.Equal(t, 0, registry.Count())
	assert.Equal(t, 0, dialer.connectedCount())
	assert.Equal(t, domain.SessionClosed, proxy.Info().State)

	// 幂等
	registry.RemoveSession("alice")
	_, ok := registry.GetSession("alice")
	assert.False(t, ok)
}

func TestOnPolicyChanged_RevokesAcrossSessions(t *testing.T) {
	registry, engine, _ := setupRegistry(t)
	ctx := context.Background()

	aliceSink := &fakeSink{}
	alice, err := registry.CreateSession(ctx, "alice", aliceSink)
	require.NoError(t, err)
	bob, err := registry.CreateSession(ctx, "bob", &fakeSink{})
	require.NoError(t, err)

	require.True(t, alice.Subscribe(ctx, "sf/sensors/room1/temp", nil).Success)
	require.True(t, bob.Subscribe(ctx, "sf/sensors/room1/temp", nil).Success)

	// 只撤销alice的角色
	require.NoError(t, engine.SetRoles(ctx, "alice", nil))
	registry.OnPolicyChanged(ctx)

	assert.Empty(t, alice.Info().Subscriptions)
	assert.Contains(t, bob.Info().Subscriptions, "sf/sensors/room1/temp")

	assert.Eventually(t, func() bool {
		return len(aliceSink.eventsOfType("permission_revoked")) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestListActiveSessions(t *testing.T) {
	registry, _, _ := setupRegistry(t)
	ctx := context.Background()

	_, err := registry.CreateSession(ctx, "bob", &fakeSink{})
	require.NoError(t, err)
	alice, err := registry.CreateSession(ctx, "alice", &fakeSink{})
	require.NoError(t, err)
	require.True(t, alice.Subscribe(ctx, "sf/sensors/room1/temp", nil).Success)

	infos := registry.ListActiveSessions()
	require.Len(t, infos, 2)
	// 按用户排序
	assert.Equal(t, "alice", infos[0].UserID)
	assert.Equal(t, "bob", infos[1].UserID)
	assert.Equal(t, []string{"sf/sensors/room1/temp"}, infos[0].Subscriptions)
}

func TestCloseAll(t *testing.T) {
	registry, _, dialer := setupRegistry(t)
	ctx := context.Background()

	_, err := registry.CreateSession(ctx, "alice", &fakeSink{})
	require.NoError(t, err)
	_, err = registry.CreateSession(ctx, "bob", &fakeSink{})
	require.NoError(t, err)

	registry.CloseAll()
	assert.Equal(t, 0, registry.Count())
	assert.Equal(t, 0, dialer.connectedCount())
}
