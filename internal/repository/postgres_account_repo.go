package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/roster/internal/model"
)

// PostgresAccountRepo はPostgreSQLを使用したアカウントリポジトリ。
type PostgresAccountRepo struct {
	db DBTX
}

// NewPostgresAccountRepo はPostgresAccountRepoを生成する。
func NewPostgresAccountRepo(db DBTX) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	return r.findOne(ctx,
		`SELECT id, username, password_hash, created_at, updated_at FROM accounts WHERE id = $1`,
		id,
	)
}

// FindByUsername はユーザー名でアカウントを検索する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByUsername(ctx context.Context, username string) (*model.Account, error) {
	return r.findOne(ctx,
		`SELECT id, username, password_hash, created_at, updated_at FROM accounts WHERE username = $1`,
		username,
	)
}

func (r *PostgresAccountRepo) findOne(ctx context.Context, query string, arg any) (*model.Account, error) {
	account := &model.Account{}
	err := r.db.QueryRowContext(ctx, query, arg).
		Scan(&account.ID, &account.Username, &account.PasswordHash, &account.CreatedAt, &account.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}

	return account, nil
}

// Create はアカウントを作成する。ユーザー名が重複する場合はErrDuplicateを返す。
func (r *PostgresAccountRepo) Create(ctx context.Context, account *model.Account) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (id, username, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		account.ID, account.Username, account.PasswordHash, account.CreatedAt, account.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("アカウントの作成に失敗しました: %w", err)
	}
	return nil
}

// PostgresAccountLocker はアカウント行の SELECT ... FOR UPDATE による排他を提供する。
type PostgresAccountLocker struct {
	db TxBeginner
}

// NewPostgresAccountLocker はPostgresAccountLockerを生成する。
func NewPostgresAccountLocker(db TxBeginner) *PostgresAccountLocker {
	return &PostgresAccountLocker{db: db}
}

// WithAccountLock はアカウント行をロックしたトランザクション内で fn を実行する。
// 同一アカウントに対する並行呼び出しはコミットまで待たされる。
func (l *PostgresAccountLocker) WithAccountLock(ctx context.Context, accountID string, fn func(ctx context.Context, characters CharacterRepository) error) error {
	return withTx(ctx, l.db, nil, func(tx *sql.Tx) error {
		var lockedID string
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM accounts WHERE id = $1 FOR UPDATE`,
			accountID,
		).Scan(&lockedID)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("アカウント行のロックに失敗しました: %w", err)
		}

		return fn(ctx, NewPostgresCharacterRepo(tx))
	})
}

// compile-time interface check
var _ AccountRepository = (*PostgresAccountRepo)(nil)
var _ AccountLocker = (*PostgresAccountLocker)(nil)
