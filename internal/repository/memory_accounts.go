package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ErkamTaha/smart-factory/internal/domain"
)

// MemoryAccountsRepository 内存账号Repository（DB未启用时的回退实现，也用于测试）
type MemoryAccountsRepository struct {
	mu       sync.RWMutex
	accounts map[string]*domain.Account
}

// NewMemoryAccountsRepository 创建内存账号Repository
func NewMemoryAccountsRepository() *MemoryAccountsRepository {
	return &MemoryAccountsRepository{
		accounts: map[string]*domain.Account{},
	}
}

var _ AccountsRepository = (*MemoryAccountsRepository)(nil)

func (r *MemoryAccountsRepository) GetAccount(_ context.Context, username string) (*domain.Account, error) {
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", domain.ErrValidation)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.accounts[username]
	if !ok {
		return nil, fmt.Errorf("%w: account %s", domain.ErrNotFound, username)
	}
	return copyAccount(account), nil
}

func (r *MemoryAccountsRepository) ListAccounts(_ context.Context, activeOnly bool) ([]*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var accounts []*domain.Account
	for _, account := range r.accounts {
		if activeOnly && !account.IsActive {
			continue
		}
		accounts = append(accounts, copyAccount(account))
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].Username < accounts[j].Username
	})
	return accounts, nil
}

func (r *MemoryAccountsRepository) CreateAccount(_ context.Context, account *domain.Account) error {
	if account.Username == "" {
		return fmt.Errorf("%w: username is required", domain.ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.accounts[account.Username]; exists {
		return fmt.Errorf("%w: account %s already exists", domain.ErrValidation, account.Username)
	}

	stored := copyAccount(account)
	now := time.Now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	r.accounts[account.Username] = stored
	return nil
}

func (r *MemoryAccountsRepository) UpdateAccount(_ context.Context, account *domain.Account) error {
	if account.Username == "" {
		return fmt.Errorf("%w: username is required", domain.ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.accounts[account.Username]
	if !ok {
		return fmt.Errorf("%w: account %s", domain.ErrNotFound, account.Username)
	}

	stored := copyAccount(account)
	stored.CreatedAt = existing.CreatedAt
	stored.LastLogin = existing.LastLogin
	stored.UpdatedAt = time.Now().UTC()
	r.accounts[account.Username] = stored
	return nil
}

func (r *MemoryAccountsRepository) DeactivateAccount(_ context.Context, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[username]
	if !ok {
		return fmt.Errorf("%w: account %s", domain.ErrNotFound, username)
	}
	account.IsActive = false
	account.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryAccountsRepository) TouchLastLogin(_ context.Context, username string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if account, ok := r.accounts[username]; ok {
		t := at
		account.LastLogin = &t
	}
	return nil
}

func copyAccount(a *domain.Account) *domain.Account {
	c := *a
	c.Roles = append([]string(nil), a.Roles...)
	c.CustomPermissions = copyPermissions(a.CustomPermissions)
	if a.LastLogin != nil {
		t := *a.LastLogin
		c.LastLogin = &t
	}
	return &c
}

func copyPermissions(perms []domain.Permission) []domain.Permission {
	copied := make([]domain.Permission, len(perms))
	for i, p := range perms {
		copied[i] = domain.Permission{
			Pattern: p.Pattern,
			Allow:   append([]domain.Action(nil), p.Allow...),
			Deny:    append([]domain.Action(nil), p.Deny...),
		}
	}
	return copied
}
