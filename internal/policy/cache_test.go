package policy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/skillancer/securedesk/internal/domain"
)

type fakePolicyRepo struct {
	policies []domain.SecurityPolicy
	err      error
	calls    int
}

func (r *fakePolicyRepo) GetAllPolicies(_ context.Context) ([]domain.SecurityPolicy, error) {
	r.calls++
	return r.policies, r.err
}

func TestMemoCache_GetPolicy(t *testing.T) {
	repo := &fakePolicyRepo{policies: []domain.SecurityPolicy{
		{TenantID: "t-strict", ClipboardEnabled: false, WatermarkEnabled: true, WatermarkCodec: domain.CodecDWT},
		{TenantID: "*", ClipboardEnabled: true, PrintingEnabled: true},
	}}
	cache := NewMemoCache(repo, nil, zap.NewNop())
	require.NoError(t, cache.Refresh(context.Background()))

	// 1. Персональная политика арендатора
	p := cache.GetPolicy("t-strict")
	require.False(t, p.ClipboardEnabled)
	require.Equal(t, domain.CodecDWT, p.WatermarkCodec)

	// 2. Fallback на глобальную "*"
	p = cache.GetPolicy("t-unknown")
	require.True(t, p.ClipboardEnabled)
	require.True(t, p.PrintingEnabled)
	// Effective() подставляет кодек по умолчанию
	require.Equal(t, domain.CodecDCT, p.WatermarkCodec)
}

// Пустой кэш отдает строгий дефолт, а не разрешительную политику
func TestMemoCache_EmptyCacheIsStrict(t *testing.T) {
	cache := NewMemoCache(&fakePolicyRepo{}, nil, zap.NewNop())
	require.NoError(t, cache.Refresh(context.Background()))

	p := cache.GetPolicy("t-any")
	require.False(t, p.ClipboardEnabled)
	require.False(t, p.FileTransferOut)
	require.False(t, p.USBEnabled)
	require.True(t, p.WatermarkEnabled)
	require.Equal(t, 15*time.Minute, p.IdleTimeout)
	require.Equal(t, 8*time.Hour, p.MaxDuration)
}

// Отказ БД при Refresh не портит уже загруженный снимок
func TestMemoCache_RefreshFailureKeepsSnapshot(t *testing.T) {
	repo := &fakePolicyRepo{policies: []domain.SecurityPolicy{
		{TenantID: "t-1", ClipboardEnabled: true},
	}}
	cache := NewMemoCache(repo, nil, zap.NewNop())
	require.NoError(t, cache.Refresh(context.Background()))

	repo.err = errors.New("connection refused")
	require.Error(t, cache.Refresh(context.Background()))

	p := cache.GetPolicy("t-1")
	require.True(t, p.ClipboardEnabled)
	require.Equal(t, 3, repo.calls)
}

func TestMemoCache_RefreshReplacesSnapshot(t *testing.T) {
	repo := &fakePolicyRepo{policies: []domain.SecurityPolicy{{TenantID: "t-old", PrintingEnabled: true}}}
	cache := NewMemoCache(repo, nil, zap.NewNop())
	require.NoError(t, cache.Refresh(context.Background()))

	repo.policies = []domain.SecurityPolicy{{TenantID: "t-new", PrintingEnabled: true}}
	require.NoError(t, cache.Refresh(context.Background()))

	// Старая запись ушла целиком, кэш — снимок, а не накопитель
	require.False(t, cache.GetPolicy("t-old").PrintingEnabled)
	require.True(t, cache.GetPolicy("t-new").PrintingEnabled)
}
