package shop

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/shopspring/decimal"

	"guildhub.ru/discord-bot/internal/common"
	"guildhub.ru/discord-bot/internal/features/settings"
	"guildhub.ru/discord-bot/internal/features/subscription"
)

// MockRepository — мок хранилища магазина
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) GetItem(ctx context.Context, guildID string, itemID int64) (*ShopItem, error) {
	args := m.Called(ctx, guildID, itemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ShopItem), args.Error(1)
}

func (m *MockRepository) ListItems(ctx context.Context, guildID string) ([]*ShopItem, error) {
	args := m.Called(ctx, guildID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*ShopItem), args.Error(1)
}

func (m *MockRepository) GetUserItem(ctx context.Context, guildID, userID string, itemID int64) (*UserItem, error) {
	args := m.Called(ctx, guildID, userID, itemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*UserItem), args.Error(1)
}

func (m *MockRepository) Purchase(ctx context.Context, p PurchaseParams) (*UserItem, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*UserItem), args.Error(1)
}

func (m *MockRepository) GrantItem(ctx context.Context, guildID, userID string, itemID, quantity int64) (*UserItem, error) {
	args := m.Called(ctx, guildID, userID, itemID, quantity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*UserItem), args.Error(1)
}

func (m *MockRepository) TakeItem(ctx context.Context, guildID, userID string, itemID, quantity int64) (*UserItem, error) {
	args := m.Called(ctx, guildID, userID, itemID, quantity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*UserItem), args.Error(1)
}

func (m *MockRepository) SetRoles(ctx context.Context, userItemID int64,
	currentRoleID, fixedRoleID *string, roleExpiresAt *time.Time) error {
	args := m.Called(ctx, userItemID, currentRoleID, fixedRoleID, roleExpiresAt)
	return args.Error(0)
}

func (m *MockRepository) ExpiredItems(ctx context.Context) ([]*ExpiredEntry, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*ExpiredEntry), args.Error(1)
}

func (m *MockRepository) ExpiredRoleEffects(ctx context.Context) ([]*ExpiredEntry, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*ExpiredEntry), args.Error(1)
}

func (m *MockRepository) FinishItemExpiry(ctx context.Context, userItemID int64) error {
	args := m.Called(ctx, userItemID)
	return args.Error(0)
}

func (m *MockRepository) ClearRoles(ctx context.Context, userItemID int64) error {
	args := m.Called(ctx, userItemID)
	return args.Error(0)
}

func (m *MockRepository) TaxExemptUsers(ctx context.Context, guildID string) ([]string, error) {
	args := m.Called(ctx, guildID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// MockSubsRepository — мок хранилища подписок
type MockSubsRepository struct {
	mock.Mock
}

func (m *MockSubsRepository) GetActive(ctx context.Context, guildID, userID string) (*subscription.Subscription, error) {
	args := m.Called(ctx, guildID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.Subscription), args.Error(1)
}

func (m *MockSubsRepository) GrantOrExtend(ctx context.Context, guildID, userID string,
	tier settings.Tier, duration time.Duration) (*subscription.Subscription, error) {
	args := m.Called(ctx, guildID, userID, tier, duration)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.Subscription), args.Error(1)
}

func (m *MockSubsRepository) ListActive(ctx context.Context, guildID string) ([]*subscription.Subscription, error) {
	args := m.Called(ctx, guildID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*subscription.Subscription), args.Error(1)
}

// MockRoleManager — мок управления ролями Discord
type MockRoleManager struct {
	mock.Mock
}

func (m *MockRoleManager) GrantRole(ctx context.Context, guildID, userID, roleID string) error {
	args := m.Called(ctx, guildID, userID, roleID)
	return args.Error(0)
}

func (m *MockRoleManager) RevokeRole(ctx context.Context, guildID, userID, roleID string) error {
	args := m.Called(ctx, guildID, userID, roleID)
	return args.Error(0)
}

func testSnapshot() *settings.Snapshot {
	return &settings.Snapshot{
		GuildID:            "guild-1",
		ShopFeePercent:     decimal.RequireFromString("3.0"),
		CurrencyManagerIDs: []string{"admin-1"},
		Tiers: map[settings.Tier]settings.TierConfig{
			settings.TierGold: {StorageLimit: 500000, FeeExempt: true},
		},
	}
}

func newTestService(repo Repository, subsRepo subscription.Repository, roles RoleManager) *Service {
	return NewService(repo, subscription.NewService(subsRepo), roles, 30)
}

func TestService_Purchase_ChargeMath(t *testing.T) {
	item := &ShopItem{
		ID: 7, GuildID: "guild-1", Name: "Тестовый товар",
		TopyPrice: 1000, RubyPrice: 500,
		CurrencyType: CurrencyTypeBoth, Enabled: true, ItemType: ItemTypeNormal,
	}

	t.Run("обе валюты: комиссия 3% с каждой цены", func(t *testing.T) {
		mockRepo := new(MockRepository)
		mockSubs := new(MockSubsRepository)
		mockRepo.On("GetItem", mock.Anything, "guild-1", int64(7)).Return(item, nil)
		mockSubs.On("GetActive", mock.Anything, "guild-1", "user-1").Return(nil, nil)
		mockRepo.On("Purchase", mock.Anything, PurchaseParams{
			GuildID: "guild-1", UserID: "user-1", ItemID: 7, Quantity: 2,
			Charges: []Charge{
				{Kind: "topy", Price: 2000, Fee: 60},
				{Kind: "ruby", Price: 1000, Fee: 30},
			},
		}).Return(&UserItem{Quantity: 2}, nil)

		service := newTestService(mockRepo, mockSubs, new(MockRoleManager))
		result, err := service.Purchase(context.Background(), testSnapshot(), "user-1", 7, 2)

		require.NoError(t, err)
		assert.Equal(t, int64(2060), result.PaidTopy)
		assert.Equal(t, int64(1030), result.PaidRuby)
		assert.Equal(t, int64(60), result.FeeTopy)
		assert.Equal(t, int64(30), result.FeeRuby)
		mockRepo.AssertExpectations(t)
	})

	t.Run("льготник подписки не платит комиссию магазина", func(t *testing.T) {
		mockRepo := new(MockRepository)
		mockSubs := new(MockSubsRepository)
		mockRepo.On("GetItem", mock.Anything, "guild-1", int64(7)).Return(item, nil)
		mockSubs.On("GetActive", mock.Anything, "guild-1", "user-1").
			Return(&subscription.Subscription{
				GuildID: "guild-1", UserID: "user-1", Tier: settings.TierGold,
				ExpiresAt: time.Now().Add(time.Hour),
			}, nil)
		mockRepo.On("Purchase", mock.Anything, mock.MatchedBy(func(p PurchaseParams) bool {
			for _, c := range p.Charges {
				if c.Fee != 0 {
					return false
				}
			}
			return len(p.Charges) == 2
		})).Return(&UserItem{Quantity: 2}, nil)

		service := newTestService(mockRepo, mockSubs, new(MockRoleManager))
		result, err := service.Purchase(context.Background(), testSnapshot(), "user-1", 7, 2)

		require.NoError(t, err)
		assert.Zero(t, result.FeeTopy)
		assert.Zero(t, result.FeeRuby)
	})

	t.Run("недоступный товар", func(t *testing.T) {
		disabled := *item
		disabled.Enabled = false
		mockRepo := new(MockRepository)
		mockRepo.On("GetItem", mock.Anything, "guild-1", int64(7)).Return(&disabled, nil)

		service := newTestService(mockRepo, new(MockSubsRepository), new(MockRoleManager))
		_, err := service.Purchase(context.Background(), testSnapshot(), "user-1", 7, 1)
		assert.ErrorIs(t, err, common.ErrItemNotFound)
	})

	t.Run("нехватка на складе пробрасывается", func(t *testing.T) {
		mockRepo := new(MockRepository)
		mockSubs := new(MockSubsRepository)
		mockRepo.On("GetItem", mock.Anything, "guild-1", int64(7)).Return(item, nil)
		mockSubs.On("GetActive", mock.Anything, "guild-1", "user-1").Return(nil, nil)
		mockRepo.On("Purchase", mock.Anything, mock.Anything).
			Return(nil, &common.OutOfStockError{Requested: 2, Stock: 1})

		service := newTestService(mockRepo, mockSubs, new(MockRoleManager))
		_, err := service.Purchase(context.Background(), testSnapshot(), "user-1", 7, 2)

		var oos *common.OutOfStockError
		require.ErrorAs(t, err, &oos)
		assert.Equal(t, int64(1), oos.Stock)
	})
}

// Покупка товара-подписки: тир и срок (30 дней × количество) передаются
// внутрь транзакции покупки, а не выдаются отдельным запросом после неё.
func TestService_Purchase_VaultSubscription(t *testing.T) {
	tier := settings.TierGold
	item := &ShopItem{
		ID: 9, GuildID: "guild-1", Name: "Золотая подписка",
		TopyPrice: 5000, CurrencyType: CurrencyTypeTopy,
		Enabled: true, ItemType: ItemTypeVaultSubscription, SubscriptionTier: &tier,
	}

	t.Run("подписка едет в параметрах транзакции покупки", func(t *testing.T) {
		mockRepo := new(MockRepository)
		mockSubs := new(MockSubsRepository)
		mockRepo.On("GetItem", mock.Anything, "guild-1", int64(9)).Return(item, nil)
		mockSubs.On("GetActive", mock.Anything, "guild-1", "user-1").Return(nil, nil)
		mockRepo.On("Purchase", mock.Anything, mock.MatchedBy(func(p PurchaseParams) bool {
			return p.SubscriptionTier != nil && *p.SubscriptionTier == settings.TierGold &&
				p.SubscriptionDuration == time.Duration(60)*24*time.Hour
		})).Return(&UserItem{Quantity: 2}, nil)

		service := newTestService(mockRepo, mockSubs, new(MockRoleManager))
		_, err := service.Purchase(context.Background(), testSnapshot(), "user-1", 9, 2)

		require.NoError(t, err)
		mockRepo.AssertExpectations(t)
		// Отдельной выдачи после покупки нет: атомарность на транзакции БД
		mockSubs.AssertNotCalled(t, "GrantOrExtend",
			mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("сбой транзакции покупки не оставляет ни списания, ни подписки", func(t *testing.T) {
		mockRepo := new(MockRepository)
		mockSubs := new(MockSubsRepository)
		mockRepo.On("GetItem", mock.Anything, "guild-1", int64(9)).Return(item, nil)
		mockSubs.On("GetActive", mock.Anything, "guild-1", "user-1").Return(nil, nil)
		mockRepo.On("Purchase", mock.Anything, mock.Anything).
			Return(nil, errors.New("обрыв соединения с БД"))

		service := newTestService(mockRepo, mockSubs, new(MockRoleManager))
		_, err := service.Purchase(context.Background(), testSnapshot(), "user-1", 9, 2)

		require.Error(t, err)
		mockSubs.AssertNotCalled(t, "GrantOrExtend",
			mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("обычный товар не несёт подписки в параметрах", func(t *testing.T) {
		normal := &ShopItem{
			ID: 7, GuildID: "guild-1", Name: "Обычный товар",
			TopyPrice: 1000, CurrencyType: CurrencyTypeTopy,
			Enabled: true, ItemType: ItemTypeNormal,
		}
		mockRepo := new(MockRepository)
		mockSubs := new(MockSubsRepository)
		mockRepo.On("GetItem", mock.Anything, "guild-1", int64(7)).Return(normal, nil)
		mockSubs.On("GetActive", mock.Anything, "guild-1", "user-1").Return(nil, nil)
		mockRepo.On("Purchase", mock.Anything, mock.MatchedBy(func(p PurchaseParams) bool {
			return p.SubscriptionTier == nil && p.SubscriptionDuration == 0
		})).Return(&UserItem{Quantity: 1}, nil)

		service := newTestService(mockRepo, mockSubs, new(MockRoleManager))
		_, err := service.Purchase(context.Background(), testSnapshot(), "user-1", 7, 1)
		require.NoError(t, err)
		mockRepo.AssertExpectations(t)
	})
}

func TestService_GiveItem_RequiresManager(t *testing.T) {
	mockRepo := new(MockRepository)
	service := newTestService(mockRepo, new(MockSubsRepository), new(MockRoleManager))

	_, err := service.GiveItem(context.Background(), testSnapshot(), "user-1", "user-2", 7, 1)
	assert.ErrorIs(t, err, common.ErrNotCurrencyManager)
	mockRepo.AssertNotCalled(t, "GrantItem")
}

func TestService_ActivateRoleTicket(t *testing.T) {
	roleA, roleB := "role-a", "role-b"
	fixed := "role-fixed"
	duration := int64(3600)
	item := &ShopItem{
		ID: 11, GuildID: "guild-1", Name: "Ролевой билет", Enabled: true,
		ItemType: ItemTypeNormal,
		RoleTicket: &RoleTicketConfig{
			RoleOptionIDs:         []string{roleA, roleB},
			RemovePreviousRole:    true,
			FixedRoleID:           &fixed,
			EffectDurationSeconds: &duration,
		},
	}

	t.Run("роль вне списка опций отклоняется", func(t *testing.T) {
		mockRepo := new(MockRepository)
		mockRepo.On("GetItem", mock.Anything, "guild-1", int64(11)).Return(item, nil)

		service := newTestService(mockRepo, new(MockSubsRepository), new(MockRoleManager))
		err := service.ActivateRoleTicket(context.Background(), "guild-1", "user-1", 11, "role-x")
		assert.Error(t, err)
		mockRepo.AssertNotCalled(t, "SetRoles")
	})

	t.Run("активация: запись в БД, снятие прежней роли, выдача новой и фиксированной", func(t *testing.T) {
		mockRepo := new(MockRepository)
		mockRoles := new(MockRoleManager)
		mockRepo.On("GetItem", mock.Anything, "guild-1", int64(11)).Return(item, nil)
		mockRepo.On("GetUserItem", mock.Anything, "guild-1", "user-1", int64(11)).
			Return(&UserItem{ID: 42, Quantity: 1, CurrentRoleID: &roleB}, nil)
		mockRepo.On("SetRoles", mock.Anything, int64(42), &roleA, &fixed, mock.Anything).Return(nil)
		mockRoles.On("RevokeRole", mock.Anything, "guild-1", "user-1", roleB).Return(nil)
		mockRoles.On("GrantRole", mock.Anything, "guild-1", "user-1", roleA).Return(nil)
		mockRoles.On("GrantRole", mock.Anything, "guild-1", "user-1", fixed).Return(nil)

		service := newTestService(mockRepo, new(MockSubsRepository), mockRoles)
		err := service.ActivateRoleTicket(context.Background(), "guild-1", "user-1", 11, roleA)

		require.NoError(t, err)
		mockRepo.AssertExpectations(t)
		mockRoles.AssertExpectations(t)
	})

	t.Run("сбой Discord не откатывает запись", func(t *testing.T) {
		mockRepo := new(MockRepository)
		mockRoles := new(MockRoleManager)
		mockRepo.On("GetItem", mock.Anything, "guild-1", int64(11)).Return(item, nil)
		mockRepo.On("GetUserItem", mock.Anything, "guild-1", "user-1", int64(11)).
			Return(&UserItem{ID: 42, Quantity: 1}, nil)
		mockRepo.On("SetRoles", mock.Anything, int64(42), &roleA, &fixed, mock.Anything).Return(nil)
		mockRoles.On("GrantRole", mock.Anything, "guild-1", "user-1", mock.Anything).
			Return(errors.New("discord api: 503"))

		service := newTestService(mockRepo, new(MockSubsRepository), mockRoles)
		err := service.ActivateRoleTicket(context.Background(), "guild-1", "user-1", 11, roleA)

		assert.NoError(t, err)
	})
}

func TestService_SweepExpirations(t *testing.T) {
	roleID := "role-a"
	mockRepo := new(MockRepository)
	mockRoles := new(MockRoleManager)

	mockRepo.On("ExpiredItems", mock.Anything).Return([]*ExpiredEntry{
		{UserItemID: 1, GuildID: "guild-1", UserID: "user-1", ItemName: "VIP", CurrentRoleID: &roleID},
	}, nil)
	mockRoles.On("RevokeRole", mock.Anything, "guild-1", "user-1", roleID).Return(nil)
	mockRepo.On("FinishItemExpiry", mock.Anything, int64(1)).Return(nil)

	mockRepo.On("ExpiredRoleEffects", mock.Anything).Return([]*ExpiredEntry{
		{UserItemID: 2, GuildID: "guild-1", UserID: "user-2", ItemName: "Билет", CurrentRoleID: &roleID},
	}, nil)
	mockRoles.On("RevokeRole", mock.Anything, "guild-1", "user-2", roleID).Return(nil)
	mockRepo.On("ClearRoles", mock.Anything, int64(2)).Return(nil)

	service := newTestService(mockRepo, new(MockSubsRepository), mockRoles)
	items, roles, err := service.SweepExpirations(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, items)
	assert.Equal(t, 1, roles)
	mockRepo.AssertExpectations(t)
	mockRoles.AssertExpectations(t)
}
