package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/roster/internal/model"
	"github.com/lib/pq"
)

// characterColumns はSELECT/RETURNINGで共通に使用するカラム一覧。
// scanCharacter の読み取り順と一致させること。
const characterColumns = `id, account_id, name, level, vocation, class, comment, deletion_date, created_at, updated_at`

// PostgresCharacterRepo はPostgreSQLを使用したキャラクターリポジトリ。
type PostgresCharacterRepo struct {
	db DBTX
}

// NewPostgresCharacterRepo はPostgresCharacterRepoを生成する。
// db には *sql.DB または *sql.Tx を渡す。
func NewPostgresCharacterRepo(db DBTX) *PostgresCharacterRepo {
	return &PostgresCharacterRepo{db: db}
}

// rowScanner は *sql.Row と *sql.Rows の共通部分。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCharacter(s rowScanner) (*model.Character, error) {
	c := &model.Character{}
	var deletionDate sql.NullTime
	if err := s.Scan(
		&c.ID, &c.AccountID, &c.Name, &c.Level, &c.Vocation, &c.Class, &c.Comment,
		&deletionDate, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if deletionDate.Valid {
		d := model.DateOf(deletionDate.Time)
		c.DeletionDate = &d
	}
	return c, nil
}

// FindByID は指定IDのキャラクターを取得する。見つからない場合はnilを返す。
func (r *PostgresCharacterRepo) FindByID(ctx context.Context, id string) (*model.Character, error) {
	c, err := scanCharacter(r.db.QueryRowContext(ctx,
		`SELECT `+characterColumns+` FROM characters WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("キャラクターの取得に失敗しました: %w", err)
	}
	return c, nil
}

// ListByAccountID はアカウントが所有するキャラクター一覧を作成順に返す。
func (r *PostgresCharacterRepo) ListByAccountID(ctx context.Context, accountID string) ([]*model.Character, error) {
	return r.list(ctx,
		`SELECT `+characterColumns+` FROM characters WHERE account_id = $1 ORDER BY created_at ASC, id ASC`,
		accountID,
	)
}

// CountActiveByAccountID は削除予約されていないキャラクター数を返す。
func (r *PostgresCharacterRepo) CountActiveByAccountID(ctx context.Context, accountID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM characters WHERE account_id = $1 AND deletion_date IS NULL`,
		accountID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("キャラクター数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// Create はキャラクターを作成する。
func (r *PostgresCharacterRepo) Create(ctx context.Context, c *model.Character) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO characters (id, account_id, name, level, vocation, class, comment, deletion_date, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		c.ID, c.AccountID, c.Name, c.Level, c.Vocation, c.Class, c.Comment,
		nullDate(c.DeletionDate), c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("キャラクターの作成に失敗しました: %w", err)
	}
	return nil
}

// UpdateComment はコメントのみを更新し、更新後のキャラクターを返す。
// 削除予定日には触れないため、並行する削除予約を上書きしない。
func (r *PostgresCharacterRepo) UpdateComment(ctx context.Context, id, comment string, updatedAt time.Time) (*model.Character, error) {
	c, err := scanCharacter(r.db.QueryRowContext(ctx,
		`UPDATE characters SET comment = $2, updated_at = $3 WHERE id = $1 RETURNING `+characterColumns,
		id, comment, updatedAt,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("コメントの更新に失敗しました: %w", err)
	}
	return c, nil
}

// UpdateDeletionDate は削除予定日のみを更新し、更新後のキャラクターを返す。
func (r *PostgresCharacterRepo) UpdateDeletionDate(ctx context.Context, id string, deletionDate time.Time, updatedAt time.Time) (*model.Character, error) {
	c, err := scanCharacter(r.db.QueryRowContext(ctx,
		`UPDATE characters SET deletion_date = $2, updated_at = $3 WHERE id = $1 RETURNING `+characterColumns,
		id, model.DateOf(deletionDate), updatedAt,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("削除予定日の更新に失敗しました: %w", err)
	}
	return c, nil
}

// ListPurgeDue は asOf の日付時点で削除予定日を迎えたキャラクターを返す。
func (r *PostgresCharacterRepo) ListPurgeDue(ctx context.Context, asOf time.Time) ([]*model.Character, error) {
	return r.list(ctx,
		`SELECT `+characterColumns+` FROM characters
		 WHERE deletion_date IS NOT NULL AND `+purgeDueCondition+`
		 ORDER BY deletion_date ASC, id ASC`,
		model.DateOf(asOf),
	)
}

// DeleteBatch は指定IDのキャラクターを1回の文で削除し、削除件数を返す。
// 一覧取得後に削除予約がやり直された行は削除予定日の条件で除外される。
func (r *PostgresCharacterRepo) DeleteBatch(ctx context.Context, ids []string, asOf time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	result, err := r.db.ExecContext(ctx,
		`DELETE FROM characters
		 WHERE id = ANY($2) AND deletion_date IS NOT NULL AND `+purgeDueCondition,
		model.DateOf(asOf), pq.Array(ids),
	)
	if err != nil {
		return 0, fmt.Errorf("キャラクターの一括削除に失敗しました: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return deleted, nil
}

func (r *PostgresCharacterRepo) list(ctx context.Context, query string, args ...any) ([]*model.Character, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("キャラクター一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var characters []*model.Character
	for rows.Next() {
		c, err := scanCharacter(rows)
		if err != nil {
			return nil, fmt.Errorf("キャラクター行の読み取りに失敗しました: %w", err)
		}
		characters = append(characters, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("キャラクター一覧の走査に失敗しました: %w", err)
	}
	return characters, nil
}

// purgeDueCondition は $1 を基準日とした完全削除対象の条件。
var purgeDueCondition = func() string {
	if model.PurgeBoundaryInclusive {
		return `deletion_date <= $1`
	}
	return `deletion_date < $1`
}()

func nullDate(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: model.DateOf(*t), Valid: true}
}

// compile-time interface check
var _ CharacterRepository = (*PostgresCharacterRepo)(nil)
