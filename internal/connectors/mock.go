package connectors

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// MockWorkspaceConnector — имитация оркестратора рабочих столов для локальной
// разработки и демо. Помнит уже завершенные цели, поэтому повторная
// терминация — no-op (как и у реального оркестратора).
type MockWorkspaceConnector struct {
	mu         sync.Mutex
	sessions   map[string][]string // scope:id -> session ids
	pods       map[string][]string
	users      map[string][]string // tenant -> user ids
	terminated map[string]struct{}
}

func NewMockWorkspaceConnector() *MockWorkspaceConnector {
	return &MockWorkspaceConnector{
		sessions:   make(map[string][]string),
		pods:       make(map[string][]string),
		users:      make(map[string][]string),
		terminated: make(map[string]struct{}),
	}
}

// Seed наполняет мок данными (для demo-стенда)
func (c *MockWorkspaceConnector) Seed(scope TargetScope, id string, sessions, pods []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := string(scope) + ":" + id
	c.sessions[key] = sessions
	c.pods[key] = pods
}

func (c *MockWorkspaceConnector) SeedTenantUsers(tenantID string, users []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users[tenantID] = users
}

func (c *MockWorkspaceConnector) ListActiveSessions(ctx context.Context, scope TargetScope, id string) ([]string, error) {
	if err := c.simulateLatency(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active(c.sessions[string(scope)+":"+id]), nil
}

func (c *MockWorkspaceConnector) ListActivePods(ctx context.Context, scope TargetScope, id string) ([]string, error) {
	if err := c.simulateLatency(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active(c.pods[string(scope)+":"+id]), nil
}

func (c *MockWorkspaceConnector) TerminateSession(ctx context.Context, sessionID string) error {
	if err := c.simulateLatency(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.terminated[sessionID] = struct{}{}
	return nil
}

func (c *MockWorkspaceConnector) TerminatePod(ctx context.Context, podID string) error {
	if err := c.simulateLatency(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.terminated[podID] = struct{}{}
	return nil
}

func (c *MockWorkspaceConnector) RevokeUserTokens(ctx context.Context, userID string) (int, error) {
	if err := c.simulateLatency(ctx); err != nil {
		return 0, err
	}
	return 1 + rand.Intn(3), nil
}

func (c *MockWorkspaceConnector) RevokeSessionTokens(ctx context.Context, sessionID string) (int, error) {
	if err := c.simulateLatency(ctx); err != nil {
		return 0, err
	}
	return 1, nil
}

func (c *MockWorkspaceConnector) ListTenantUsers(ctx context.Context, tenantID string) ([]string, error) {
	if err := c.simulateLatency(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.users[tenantID], nil
}

func (c *MockWorkspaceConnector) active(ids []string) []string {
	var out []string
	for _, id := range ids {
		if _, done := c.terminated[id]; !done {
			out = append(out, id)
		}
	}
	return out
}

// simulateLatency — имитация сетевой задержки 10-60мс
func (c *MockWorkspaceConnector) simulateLatency(ctx context.Context) error {
	latency := time.Duration(10+rand.Intn(50)) * time.Millisecond
	select {
	case <-time.After(latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
