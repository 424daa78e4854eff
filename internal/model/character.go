// Package model はドメインモデルを定義する。
package model

import "time"

// MaxCharactersPerAccount はアカウントあたりの有効キャラクター数の上限。
// 削除予約中のキャラクターは数に含めない。
const MaxCharactersPerAccount = 20

// MaxNameLength はキャラクター名の最大文字数。
const MaxNameLength = 64

// MaxCommentLength はコメントの最大文字数（カラム長と一致させる）。
const MaxCommentLength = 1024

// DeletionGracePeriodDays は削除予約から完全削除の対象になるまでの猶予日数。
const DeletionGracePeriodDays = 30

// PurgeBoundaryInclusive は完全削除の境界に削除予定日当日を含むかどうか。
// true の場合 deletion_date <= 当日 のキャラクターが対象になる。
const PurgeBoundaryInclusive = true

// Character はアカウントが所有するゲームキャラクターを表す。
type Character struct {
	ID        string
	AccountID string // 作成時に一度だけ設定され、以後変更されない
	Name      string
	Level     int
	Vocation  string
	Class     string
	Comment   string
	// DeletionDate は完全削除予定日（UTCの日付）。nilの場合は有効なキャラクター。
	DeletionDate *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CharacterStatus はキャラクターのライフサイクル状態を表す。
type CharacterStatus string

const (
	// CharacterStatusActive は有効な状態。
	CharacterStatusActive CharacterStatus = "active"
	// CharacterStatusPendingPurge は削除予約済みで完全削除を待っている状態。
	CharacterStatusPendingPurge CharacterStatus = "pending_purge"
)

// Status はキャラクターの現在の状態を返す。
func (c *Character) Status() CharacterStatus {
	if c.DeletionDate != nil {
		return CharacterStatusPendingPurge
	}
	return CharacterStatusActive
}

// IsOwnedBy は指定アカウントがこのキャラクターの所有者かを返す。
// 比較は完全一致（大文字小文字を区別する）。
func (c *Character) IsOwnedBy(accountID string) bool {
	return accountID != "" && c.AccountID == accountID
}

// MarkForDeletion は now の日付から猶予日数後を削除予定日として設定する。
// 既に予約済みの場合も now を起点に再設定する。
func (c *Character) MarkForDeletion(now time.Time) {
	deadline := DateOf(now).AddDate(0, 0, DeletionGracePeriodDays)
	c.DeletionDate = &deadline
}

// IsPurgeDue は asOf の日付時点で完全削除の対象かを返す。
func (c *Character) IsPurgeDue(asOf time.Time) bool {
	if c.DeletionDate == nil {
		return false
	}
	deadline := DateOf(*c.DeletionDate)
	day := DateOf(asOf)
	if PurgeBoundaryInclusive {
		return !deadline.After(day)
	}
	return deadline.Before(day)
}

// DateOf は t をUTCの日付（0時0分）に切り詰める。
func DateOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
