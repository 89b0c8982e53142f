package subscription

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"guildhub.ru/discord-bot/internal/features/settings"
)

// MockRepository — мок хранилища подписок
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) GetActive(ctx context.Context, guildID, userID string) (*Subscription, error) {
	args := m.Called(ctx, guildID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Subscription), args.Error(1)
}

func (m *MockRepository) GrantOrExtend(ctx context.Context, guildID, userID string,
	tier settings.Tier, duration time.Duration) (*Subscription, error) {
	args := m.Called(ctx, guildID, userID, tier, duration)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Subscription), args.Error(1)
}

func (m *MockRepository) ListActive(ctx context.Context, guildID string) ([]*Subscription, error) {
	args := m.Called(ctx, guildID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Subscription), args.Error(1)
}

func testSnapshot() *settings.Snapshot {
	return &settings.Snapshot{
		GuildID: "guild-1",
		Tiers: map[settings.Tier]settings.TierConfig{
			// Серебро без льгот, золото освобождает от комиссий и налога
			settings.TierSilver: {StorageLimit: 100000, InterestRate: decimal.RequireFromString("1.0")},
			settings.TierGold: {
				StorageLimit: 500000, InterestRate: decimal.RequireFromString("2.5"),
				FeeExempt: true, TaxExempt: true,
			},
		},
	}
}

func TestService_IsFeeExempt(t *testing.T) {
	tests := []struct {
		name     string
		sub      *Subscription
		expected bool
	}{
		{"нет подписки", nil, false},
		{"серебро без льготы", &Subscription{Tier: settings.TierSilver}, false},
		{"золото с льготой", &Subscription{Tier: settings.TierGold}, true},
		{"неизвестный тир", &Subscription{Tier: "bronze"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(MockRepository)
			mockRepo.On("GetActive", mock.Anything, "guild-1", "user-1").Return(tt.sub, nil)

			service := NewService(mockRepo)
			exempt, err := service.IsFeeExempt(context.Background(), testSnapshot(), "user-1")
			require.NoError(t, err)
			assert.Equal(t, tt.expected, exempt)
		})
	}
}

// Налоговая льгота привязана к тиру: в выборку попадают только держатели
// тиров с TaxExempt.
func TestService_TaxExemptUsers(t *testing.T) {
	mockRepo := new(MockRepository)
	mockRepo.On("ListActive", mock.Anything, "guild-1").Return([]*Subscription{
		{UserID: "user-1", Tier: settings.TierSilver},
		{UserID: "user-2", Tier: settings.TierGold},
		{UserID: "user-3", Tier: settings.TierGold},
	}, nil)

	service := NewService(mockRepo)
	exempt, err := service.TaxExemptUsers(context.Background(), testSnapshot())

	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"user-2": true, "user-3": true}, exempt)
}

func TestSubscription_Active(t *testing.T) {
	now := time.Now()
	assert.True(t, (&Subscription{ExpiresAt: now.Add(time.Minute)}).Active(now))
	assert.False(t, (&Subscription{ExpiresAt: now.Add(-time.Minute)}).Active(now))
}
