package economy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"guildhub.ru/discord-bot/internal/common"
	"guildhub.ru/discord-bot/internal/features/settings"
)

// MockRepository — мок хранилища кошельков
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) EnsureWallet(ctx context.Context, guildID, userID string, kind CurrencyKind) error {
	args := m.Called(ctx, guildID, userID, kind)
	return args.Error(0)
}

func (m *MockRepository) GetWallet(ctx context.Context, guildID, userID string, kind CurrencyKind) (*Wallet, error) {
	args := m.Called(ctx, guildID, userID, kind)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Wallet), args.Error(1)
}

func (m *MockRepository) Credit(ctx context.Context, guildID, userID string, kind CurrencyKind,
	amount int64, txType string, description *string) (int64, error) {
	args := m.Called(ctx, guildID, userID, kind, amount, txType, description)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) Debit(ctx context.Context, guildID, userID string, kind CurrencyKind,
	amount int64, txType string, description *string) (int64, error) {
	args := m.Called(ctx, guildID, userID, kind, amount, txType, description)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) Transfer(ctx context.Context, p TransferParams) (*TransferOutcome, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*TransferOutcome), args.Error(1)
}

func (m *MockRepository) ChargeMonthlyTax(ctx context.Context, guildID, period string,
	percent decimal.Decimal, exempt map[string]bool) (*TaxResult, error) {
	args := m.Called(ctx, guildID, period, percent, exempt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*TaxResult), args.Error(1)
}

func (m *MockRepository) GetTransactions(ctx context.Context, guildID, userID string, limit int) ([]*Transaction, error) {
	args := m.Called(ctx, guildID, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Transaction), args.Error(1)
}

func (m *MockRepository) GetTransactionsByPeriod(ctx context.Context, guildID, userID string, since time.Time) ([]*Transaction, error) {
	args := m.Called(ctx, guildID, userID, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Transaction), args.Error(1)
}

func (m *MockRepository) ListGuildIDs(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// testSnapshot — настройки гильдии для тестов: комиссия 1.2%, минимум 100
func testSnapshot() *settings.Snapshot {
	return &settings.Snapshot{
		GuildID:            "guild-1",
		TransferFeePercent: decimal.RequireFromString("1.2"),
		ShopFeePercent:     decimal.RequireFromString("3.0"),
		TaxPercent:         decimal.RequireFromString("3.3"),
		TaxEnabled:         true,
		MinTransfer:        100,
		CurrencyManagerIDs: []string{"admin-1"},
	}
}

func TestService_Transfer(t *testing.T) {
	tests := []struct {
		name        string
		from, to    string
		amount      int64
		feeExempt   bool
		setupMock   func(*MockRepository)
		expectedErr error
		expectedFee int64
	}{
		{
			name: "обычный перевод: комиссия floor(1000 × 1.2%) = 12",
			from: "user-1", to: "user-2", amount: 1000,
			setupMock: func(m *MockRepository) {
				m.On("Transfer", mock.Anything, TransferParams{
					GuildID: "guild-1", FromUserID: "user-1", ToUserID: "user-2",
					Kind: CurrencyTopy, Amount: 1000, Fee: 12,
				}).Return(&TransferOutcome{SenderBalance: 9000, RecipientBalance: 988}, nil)
			},
			expectedFee: 12,
		},
		{
			name: "льготник подписки не платит комиссию",
			from: "user-1", to: "user-2", amount: 1000, feeExempt: true,
			setupMock: func(m *MockRepository) {
				m.On("Transfer", mock.Anything, TransferParams{
					GuildID: "guild-1", FromUserID: "user-1", ToUserID: "user-2",
					Kind: CurrencyTopy, Amount: 1000, Fee: 0,
				}).Return(&TransferOutcome{SenderBalance: 9000, RecipientBalance: 1000}, nil)
			},
		},
		{
			name: "перевод самому себе запрещён",
			from: "user-1", to: "user-1", amount: 1000,
			setupMock:   func(m *MockRepository) {},
			expectedErr: common.ErrSelfTransfer,
		},
		{
			name: "сумма ниже минимума гильдии",
			from: "user-1", to: "user-2", amount: 99,
			setupMock:   func(m *MockRepository) {},
			expectedErr: &common.BelowMinTransferError{Amount: 99, Minimum: 100},
		},
		{
			name: "неположительная сумма",
			from: "user-1", to: "user-2", amount: 0,
			setupMock:   func(m *MockRepository) {},
			expectedErr: common.ErrInvalidAmount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(MockRepository)
			tt.setupMock(mockRepo)

			service := NewService(mockRepo)
			outcome, err := service.Transfer(context.Background(), testSnapshot(),
				tt.from, tt.to, CurrencyTopy, tt.amount, tt.feeExempt)

			if tt.expectedErr != nil {
				require.Error(t, err)
				var below *common.BelowMinTransferError
				if errors.As(tt.expectedErr, &below) {
					var got *common.BelowMinTransferError
					require.ErrorAs(t, err, &got)
					assert.Equal(t, below.Minimum, got.Minimum)
				} else {
					assert.ErrorIs(t, err, tt.expectedErr)
				}
				return
			}
			require.NoError(t, err)
			require.NotNil(t, outcome)
			mockRepo.AssertExpectations(t)
		})
	}
}

// Сохранение суммы: amount = зачисление получателю + комиссия в казну.
// Проверяем на параметрах, которые сервис передаёт репозиторию.
func TestService_Transfer_Conservation(t *testing.T) {
	mockRepo := new(MockRepository)
	var captured TransferParams
	mockRepo.On("Transfer", mock.Anything, mock.MatchedBy(func(p TransferParams) bool {
		captured = p
		return true
	})).Return(&TransferOutcome{}, nil)

	service := NewService(mockRepo)
	_, err := service.Transfer(context.Background(), testSnapshot(),
		"user-1", "user-2", CurrencyTopy, 10007, false)
	require.NoError(t, err)

	// floor(10007 × 1.2 / 100) = 120
	assert.Equal(t, int64(120), captured.Fee)
	recipientGets := captured.Amount - captured.Fee
	assert.Equal(t, captured.Amount, recipientGets+captured.Fee)
}

func TestService_AdminGrant(t *testing.T) {
	t.Run("не управляющий получает отказ", func(t *testing.T) {
		mockRepo := new(MockRepository)
		service := NewService(mockRepo)

		_, err := service.AdminGrant(context.Background(), testSnapshot(),
			"user-1", "user-2", CurrencyTopy, 500)
		assert.ErrorIs(t, err, common.ErrNotCurrencyManager)
		mockRepo.AssertNotCalled(t, "Credit")
	})

	t.Run("управляющий выдаёт валюту", func(t *testing.T) {
		mockRepo := new(MockRepository)
		mockRepo.On("Credit", mock.Anything, "guild-1", "user-2", CurrencyTopy,
			int64(500), TxTypeAdminGrant, mock.Anything).Return(int64(500), nil)

		service := NewService(mockRepo)
		balance, err := service.AdminGrant(context.Background(), testSnapshot(),
			"admin-1", "user-2", CurrencyTopy, 500)
		require.NoError(t, err)
		assert.Equal(t, int64(500), balance)
		mockRepo.AssertExpectations(t)
	})
}

func TestService_ProcessMonthlyTax(t *testing.T) {
	t.Run("налог выключен — свип пропускается", func(t *testing.T) {
		mockRepo := new(MockRepository)
		service := NewService(mockRepo)

		snap := testSnapshot()
		snap.TaxEnabled = false
		result, err := service.ProcessMonthlyTax(context.Background(), snap, "2026-08", nil)
		require.NoError(t, err)
		assert.Equal(t, 0, result.TaxedWallets)
		mockRepo.AssertNotCalled(t, "ChargeMonthlyTax")
	})

	t.Run("повторный запуск за период отдаёт ошибку идемпотентности", func(t *testing.T) {
		mockRepo := new(MockRepository)
		mockRepo.On("ChargeMonthlyTax", mock.Anything, "guild-1", "2026-08",
			mock.Anything, mock.Anything).Return(nil,
			&common.AlreadyProcessedError{GuildID: "guild-1", Period: "2026-08", Job: "tax"})

		service := NewService(mockRepo)
		_, err := service.ProcessMonthlyTax(context.Background(), testSnapshot(), "2026-08", nil)

		var already *common.AlreadyProcessedError
		require.ErrorAs(t, err, &already)
		assert.Equal(t, "2026-08", already.Period)
	})
}

func TestService_GetTransactionHistory_LimitClamp(t *testing.T) {
	mockRepo := new(MockRepository)
	mockRepo.On("GetTransactions", mock.Anything, "guild-1", "user-1", 10).
		Return([]*Transaction{}, nil)

	service := NewService(mockRepo)
	_, err := service.GetTransactionHistory(context.Background(), "guild-1", "user-1", -5)
	require.NoError(t, err)
	mockRepo.AssertExpectations(t)
}
