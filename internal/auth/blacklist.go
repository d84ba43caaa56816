package auth

import (
	"context"
	"sync"
	"time"
)

// TokenBlacklist 定义了 Token 黑名单的存储操作接口
type TokenBlacklist interface {
	// Add 将 jti 加入黑名单，并使其在 Token 的原始过期时间点之后自动从黑名单中移除。
	Add(ctx context.Context, jti string, originalTokenExpTime time.Time) error
	// IsBlacklisted 检查 jti 是否存在于黑名单中。
	IsBlacklisted(ctx context.Context, jti string) (bool, error)
}

// MemoryBlacklist is a process-local TokenBlacklist, used when Redis is not
// reachable. Revocations are lost on restart and not shared between instances.
type MemoryBlacklist struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

// NewMemoryBlacklist creates an empty MemoryBlacklist.
func NewMemoryBlacklist() *MemoryBlacklist {
	return &MemoryBlacklist{entries: make(map[string]time.Time)}
}

func (m *MemoryBlacklist) Add(ctx context.Context, jti string, originalTokenExpTime time.Time) error {
	if !time.Now().Before(originalTokenExpTime) {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[jti] = originalTokenExpTime
	return nil
}

func (m *MemoryBlacklist) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.entries[jti]
	if !ok {
		return false, nil
	}
	if !time.Now().Before(exp) {
		delete(m.entries, jti)
		return false, nil
	}
	return true, nil
}
