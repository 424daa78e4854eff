// Package model はドメインモデルを定義する。
package model

import "time"

// Account はキャラクターを所有するプレイヤーアカウントを表す。
// 所有キャラクターは保持せず、CharacterRepository.ListByAccountID で導出する。
type Account struct {
	ID           string
	Username     string // 一意。作成後は変更不可
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity は認証済みの呼び出し元を表す。
// 認証ミドルウェアがトークンから解決し、各操作に明示的に渡される。
type Identity struct {
	AccountID string
	Username  string
}
