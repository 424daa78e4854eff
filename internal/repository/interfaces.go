// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/hitoshi/roster/internal/model"
)

// ErrDuplicate は一意制約違反を表す。
var ErrDuplicate = errors.New("repository: duplicate key")

// ErrNotFound はロック対象の行が存在しない場合に返される。
var ErrNotFound = errors.New("repository: not found")

// DBTX は *sql.DB と *sql.Tx の共通部分。
// リポジトリをトランザクション内外のどちらでも使えるようにする。
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// AccountRepository はアカウントデータの永続化インターフェース。
type AccountRepository interface {
	// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Account, error)

	// FindByUsername はユーザー名でアカウントを検索する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.Account, error)

	// Create はアカウントを作成する。ユーザー名が重複する場合はErrDuplicateを返す。
	Create(ctx context.Context, account *model.Account) error
}

// CharacterRepository はキャラクターデータの永続化インターフェース。
type CharacterRepository interface {
	// FindByID は指定IDのキャラクターを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Character, error)

	// ListByAccountID はアカウントが所有するキャラクター一覧を作成順に返す。
	ListByAccountID(ctx context.Context, accountID string) ([]*model.Character, error)

	// CountActiveByAccountID は削除予約されていないキャラクター数を返す。
	CountActiveByAccountID(ctx context.Context, accountID string) (int, error)

	// Create はキャラクターを作成する。
	Create(ctx context.Context, character *model.Character) error

	// UpdateComment はコメントのみを更新し、更新後のキャラクターを返す。
	// 対象が存在しない場合（完全削除済みを含む）はnilを返す。
	UpdateComment(ctx context.Context, id, comment string, updatedAt time.Time) (*model.Character, error)

	// UpdateDeletionDate は削除予定日のみを更新し、更新後のキャラクターを返す。
	// 対象が存在しない場合はnilを返す。
	UpdateDeletionDate(ctx context.Context, id string, deletionDate time.Time, updatedAt time.Time) (*model.Character, error)

	// ListPurgeDue は asOf の日付時点で削除予定日を迎えたキャラクターを返す。
	ListPurgeDue(ctx context.Context, asOf time.Time) ([]*model.Character, error)

	// DeleteBatch は指定IDのキャラクターを1回の文で削除し、削除件数を返す。
	// asOf の日付時点で削除予定日を迎えていない行は削除しない。
	DeleteBatch(ctx context.Context, ids []string, asOf time.Time) (int64, error)
}

// AccountLocker はアカウント単位の排他区間を提供する。
// 上限チェックと作成を同一トランザクション内で直列化するために使用する。
type AccountLocker interface {
	// WithAccountLock はアカウント行をロックしたトランザクション内で fn を実行する。
	// fn に渡されるリポジトリは同じトランザクションを使用する。
	// アカウントが存在しない場合は ErrNotFound を返す。
	WithAccountLock(ctx context.Context, accountID string, fn func(ctx context.Context, characters CharacterRepository) error) error
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
