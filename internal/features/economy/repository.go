// Package economy — repository.go выполняет все операции с таблицами
// wallets и transactions. Все денежные операции выполняются в транзакциях
// БД: чтение баланса, проверка инвариантов, запись нового баланса и запись
// журнала фиксируются вместе или не фиксируются вовсе.
package economy

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"guildhub.ru/discord-bot/internal/common"
	"guildhub.ru/discord-bot/internal/features/treasury"
)

// PgRepository — реализация Repository поверх pgxpool.
type PgRepository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт новый репозиторий экономики.
func NewRepository(db *pgxpool.Pool) *PgRepository {
	return &PgRepository{db: db}
}

// EnsureWallet гарантирует, что у пользователя есть кошелёк данного вида.
// Начальный баланс всегда 0.
func (r *PgRepository) EnsureWallet(ctx context.Context, guildID, userID string, kind CurrencyKind) error {
	query := `
		INSERT INTO wallets (guild_id, user_id, currency_kind, balance, total_earned, daily_earned, earned_date)
		VALUES ($1, $2, $3, 0, 0, 0, CURRENT_DATE)
		ON CONFLICT (guild_id, user_id, currency_kind) DO NOTHING
	`
	_, err := r.db.Exec(ctx, query, guildID, userID, kind)
	if err != nil {
		return fmt.Errorf("ошибка создания кошелька: %w", err)
	}
	return nil
}

// GetWallet возвращает кошелёк пользователя.
func (r *PgRepository) GetWallet(ctx context.Context, guildID, userID string, kind CurrencyKind) (*Wallet, error) {
	query := `
		SELECT id, guild_id, user_id, currency_kind, balance, total_earned,
		       daily_earned, earned_date, created_at, updated_at
		FROM wallets
		WHERE guild_id = $1 AND user_id = $2 AND currency_kind = $3
	`
	var w Wallet
	err := r.db.QueryRow(ctx, query, guildID, userID, kind).Scan(
		&w.ID, &w.GuildID, &w.UserID, &w.Kind, &w.Balance, &w.TotalEarned,
		&w.DailyEarned, &w.EarnedDate, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения кошелька: %w", err)
	}
	return &w, nil
}

// LockWallet блокирует строку кошелька (FOR UPDATE) и возвращает баланс.
// Кошелёк создаётся при первом обращении.
func LockWallet(ctx context.Context, tx pgx.Tx, guildID, userID string, kind CurrencyKind) (int64, error) {
	_, err := tx.Exec(ctx, `
		INSERT INTO wallets (guild_id, user_id, currency_kind, balance, total_earned, daily_earned, earned_date)
		VALUES ($1, $2, $3, 0, 0, 0, CURRENT_DATE)
		ON CONFLICT (guild_id, user_id, currency_kind) DO NOTHING
	`, guildID, userID, kind)
	if err != nil {
		return 0, fmt.Errorf("ошибка создания кошелька: %w", err)
	}

	var balance int64
	err = tx.QueryRow(ctx, `
		SELECT balance FROM wallets
		WHERE guild_id = $1 AND user_id = $2 AND currency_kind = $3
		FOR UPDATE
	`, guildID, userID, kind).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("ошибка блокировки кошелька: %w", err)
	}
	return balance, nil
}

// CreditLocked увеличивает баланс уже заблокированного кошелька и пишет журнал.
// Счётчики заработка обновляются только для заработных типов транзакций.
func CreditLocked(ctx context.Context, tx pgx.Tx, guildID, userID string, kind CurrencyKind,
	current, amount int64, txType string, fee int64, relatedUserID, description *string) (int64, error) {

	if current > math.MaxInt64-amount {
		return 0, fmt.Errorf("переполнение баланса кошелька %s/%s", guildID, userID)
	}

	earning := IsEarningType(txType)
	var newBalance int64
	err := tx.QueryRow(ctx, `
		UPDATE wallets SET
			balance = balance + $4,
			total_earned = total_earned + CASE WHEN $5 THEN $4 ELSE 0 END,
			daily_earned = CASE
				WHEN NOT $5 THEN daily_earned
				WHEN earned_date = CURRENT_DATE THEN daily_earned + $4
				ELSE $4
			END,
			earned_date = CASE WHEN $5 THEN CURRENT_DATE ELSE earned_date END,
			updated_at = NOW()
		WHERE guild_id = $1 AND user_id = $2 AND currency_kind = $3
		RETURNING balance
	`, guildID, userID, kind, amount, earning).Scan(&newBalance)
	if err != nil {
		return 0, fmt.Errorf("ошибка начисления: %w", err)
	}

	if err := InsertTransaction(ctx, tx, guildID, userID, kind, txType, amount, newBalance, fee, relatedUserID, description); err != nil {
		return 0, err
	}
	return newBalance, nil
}

// DebitLocked списывает с уже заблокированного кошелька и пишет журнал.
func DebitLocked(ctx context.Context, tx pgx.Tx, guildID, userID string, kind CurrencyKind,
	current, amount int64, txType string, fee int64, relatedUserID, description *string) (int64, error) {

	if current < amount {
		return 0, &common.InsufficientBalanceError{Required: amount, Available: current}
	}

	var newBalance int64
	err := tx.QueryRow(ctx, `
		UPDATE wallets SET balance = balance - $4, updated_at = NOW()
		WHERE guild_id = $1 AND user_id = $2 AND currency_kind = $3
		RETURNING balance
	`, guildID, userID, kind, amount).Scan(&newBalance)
	if err != nil {
		return 0, fmt.Errorf("ошибка списания: %w", err)
	}

	if err := InsertTransaction(ctx, tx, guildID, userID, kind, txType, amount, newBalance, fee, relatedUserID, description); err != nil {
		return 0, err
	}
	return newBalance, nil
}

// InsertTransaction дописывает запись в журнал операций.
func InsertTransaction(ctx context.Context, tx pgx.Tx, guildID, userID string, kind CurrencyKind,
	txType string, amount, balanceAfter, fee int64, relatedUserID, description *string) error {

	_, err := tx.Exec(ctx, `
		INSERT INTO transactions (guild_id, user_id, currency_kind, transaction_type,
		                          amount, balance_after, fee, related_user_id, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, guildID, userID, kind, txType, amount, balanceAfter, fee, relatedUserID, description)
	if err != nil {
		return fmt.Errorf("ошибка записи транзакции: %w", err)
	}
	return nil
}

// Credit добавляет валюту на кошелёк пользователя.
// Используется для начислений: XP-конвейер, админ-выдача, снятие из хранилища.
func (r *PgRepository) Credit(ctx context.Context, guildID, userID string, kind CurrencyKind,
	amount int64, txType string, description *string) (int64, error) {

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := LockWallet(ctx, tx, guildID, userID, kind)
	if err != nil {
		return 0, err
	}
	newBalance, err := CreditLocked(ctx, tx, guildID, userID, kind, current, amount, txType, 0, nil, description)
	if err != nil {
		return 0, err
	}
	return newBalance, tx.Commit(ctx)
}

// Debit списывает валюту с кошелька пользователя.
// Проверяет достаточность средств под блокировкой строки: два конкурентных
// списания не могут пройти проверку по одному и тому же устаревшему балансу.
func (r *PgRepository) Debit(ctx context.Context, guildID, userID string, kind CurrencyKind,
	amount int64, txType string, description *string) (int64, error) {

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := LockWallet(ctx, tx, guildID, userID, kind)
	if err != nil {
		return 0, err
	}
	newBalance, err := DebitLocked(ctx, tx, guildID, userID, kind, current, amount, txType, 0, nil, description)
	if err != nil {
		return 0, err
	}
	return newBalance, tx.Commit(ctx)
}

// Transfer переводит валюту от одного пользователя к другому.
// Одна транзакция БД: списание, зачисление за вычетом комиссии, комиссия в
// казну и три записи журнала. Частичного результата не бывает.
func (r *PgRepository) Transfer(ctx context.Context, p TransferParams) (*TransferOutcome, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	// Кошельки блокируются в порядке возрастания user_id независимо от
	// направления перевода, иначе два встречных перевода могут взаимно
	// заблокироваться.
	first, second := p.FromUserID, p.ToUserID
	if second < first {
		first, second = second, first
	}
	balances := map[string]int64{}
	for _, userID := range []string{first, second} {
		b, err := LockWallet(ctx, tx, p.GuildID, userID, p.Kind)
		if err != nil {
			return nil, err
		}
		balances[userID] = b
	}

	// Списание у отправителя: полная сумма
	senderBalance, err := DebitLocked(ctx, tx, p.GuildID, p.FromUserID, p.Kind,
		balances[p.FromUserID], p.Amount, TxTypeTransferOut, p.Fee, &p.ToUserID, nil)
	if err != nil {
		return nil, err
	}

	// Зачисление получателю: сумма за вычетом комиссии
	recipientBalance, err := CreditLocked(ctx, tx, p.GuildID, p.ToUserID, p.Kind,
		balances[p.ToUserID], p.Amount-p.Fee, TxTypeTransferIn, p.Fee, &p.FromUserID, nil)
	if err != nil {
		return nil, err
	}

	// Комиссия уходит в казну гильдии; запись журнала ссылается на баланс
	// казны, чтобы казну можно было сверить воспроизведением журнала.
	if p.Fee > 0 {
		treasuryBalance, err := treasury.CreditTx(ctx, tx, p.GuildID, string(p.Kind), p.Fee)
		if err != nil {
			return nil, err
		}
		if err := InsertTransaction(ctx, tx, p.GuildID, p.FromUserID, p.Kind,
			TxTypeTransferFee, p.Fee, treasuryBalance, 0, &p.ToUserID, nil); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("ошибка фиксации перевода: %w", err)
	}
	return &TransferOutcome{SenderBalance: senderBalance, RecipientBalance: recipientBalance}, nil
}

// ChargeMonthlyTax списывает месячный налог со всех topy-кошельков гильдии.
//
// Маркер (guild_id, period, job) вставляется ПЕРВЫМ в той же транзакции БД,
// что и списания: конфликт по уникальному ключу означает, что период уже
// обработан, и транзакция откатывается, не тронув ни одного кошелька.
// Падение между списаниями и маркером невозможно по построению.
func (r *PgRepository) ChargeMonthlyTax(ctx context.Context, guildID, period string,
	percent decimal.Decimal, exempt map[string]bool) (*TaxResult, error) {

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	claimed, err := claimPeriod(ctx, tx, guildID, period, "tax")
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, &common.AlreadyProcessedError{GuildID: guildID, Period: period, Job: "tax"}
	}

	// Блокируем все облагаемые кошельки; порядок по user_id — тот же,
	// что у переводов, во избежание взаимных блокировок.
	rows, err := tx.Query(ctx, `
		SELECT user_id, balance FROM wallets
		WHERE guild_id = $1 AND currency_kind = $2 AND balance > 0
		ORDER BY user_id
		FOR UPDATE
	`, guildID, CurrencyTopy)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки кошельков: %w", err)
	}
	type taxable struct {
		userID  string
		balance int64
	}
	var wallets []taxable
	for rows.Next() {
		var t taxable
		if err := rows.Scan(&t.userID, &t.balance); err != nil {
			rows.Close()
			return nil, fmt.Errorf("ошибка сканирования кошелька: %w", err)
		}
		wallets = append(wallets, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка обхода кошельков: %w", err)
	}

	result := &TaxResult{GuildID: guildID, Period: period}
	desc := fmt.Sprintf("Месячный налог за %s", period)
	for _, w := range wallets {
		if exempt[w.userID] {
			continue
		}
		tax := common.PercentFloor(w.balance, percent)
		if tax == 0 {
			continue
		}
		if _, err := DebitLocked(ctx, tx, guildID, w.userID, CurrencyTopy,
			w.balance, tax, TxTypeTax, 0, nil, &desc); err != nil {
			return nil, err
		}
		result.TaxedWallets++
		result.TotalTax += tax
	}

	if result.TotalTax > 0 {
		if _, err := treasury.CreditTx(ctx, tx, guildID, string(CurrencyTopy), result.TotalTax); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("ошибка фиксации налога: %w", err)
	}
	return result, nil
}

// claimPeriod пытается занять период для задачи. false — уже занят.
func claimPeriod(ctx context.Context, tx pgx.Tx, guildID, period, job string) (bool, error) {
	tag, err := tx.Exec(ctx, `
		INSERT INTO monthly_processing (guild_id, period, job_type)
		VALUES ($1, $2, $3)
		ON CONFLICT (guild_id, period, job_type) DO NOTHING
	`, guildID, period, job)
	if err != nil {
		return false, fmt.Errorf("ошибка записи маркера обработки: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ClaimPeriodTx — как claimPeriod, но для использования из других
// репозиториев (начисление процентов) в их собственной транзакции.
func ClaimPeriodTx(ctx context.Context, tx pgx.Tx, guildID, period, job string) (bool, error) {
	return claimPeriod(ctx, tx, guildID, period, job)
}

// GetTransactions возвращает последние N операций пользователя в гильдии.
func (r *PgRepository) GetTransactions(ctx context.Context, guildID, userID string, limit int) ([]*Transaction, error) {
	query := `
		SELECT id, guild_id, user_id, currency_kind, transaction_type,
		       amount, balance_after, fee, related_user_id, description, created_at
		FROM transactions
		WHERE guild_id = $1 AND user_id = $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`
	return r.queryTransactions(ctx, query, guildID, userID, limit)
}

// GetTransactionsByPeriod возвращает операции пользователя с указанного момента.
func (r *PgRepository) GetTransactionsByPeriod(ctx context.Context, guildID, userID string, since time.Time) ([]*Transaction, error) {
	query := `
		SELECT id, guild_id, user_id, currency_kind, transaction_type,
		       amount, balance_after, fee, related_user_id, description, created_at
		FROM transactions
		WHERE guild_id = $1 AND user_id = $2 AND created_at >= $3
		ORDER BY created_at DESC, id DESC
	`
	return r.queryTransactions(ctx, query, guildID, userID, since)
}

func (r *PgRepository) queryTransactions(ctx context.Context, query string, args ...any) ([]*Transaction, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения транзакций: %w", err)
	}
	defer rows.Close()

	var transactions []*Transaction
	for rows.Next() {
		var t Transaction
		err := rows.Scan(
			&t.ID, &t.GuildID, &t.UserID, &t.Kind, &t.TransactionType,
			&t.Amount, &t.BalanceAfter, &t.Fee, &t.RelatedUserID, &t.Description, &t.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования транзакции: %w", err)
		}
		transactions = append(transactions, &t)
	}
	return transactions, rows.Err()
}

// ListGuildIDs возвращает все гильдии, в которых есть хотя бы один кошелёк.
func (r *PgRepository) ListGuildIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT guild_id FROM wallets ORDER BY guild_id`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка гильдий: %w", err)
	}
	defer rows.Close()

	var guilds []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ошибка сканирования гильдии: %w", err)
		}
		guilds = append(guilds, id)
	}
	return guilds, rows.Err()
}
