package handler

import (
	"context"

	"github.com/hitoshi/roster/internal/account"
	"github.com/hitoshi/roster/internal/character"
	"github.com/hitoshi/roster/internal/model"
)

// tokenType はレスポンスに含めるトークン種別。
const tokenType = "Bearer"

// AccountServiceAdapter は account.Service を AccountServiceInterface に適合させるアダプタ。
type AccountServiceAdapter struct {
	svc *account.Service
}

// NewAccountServiceAdapter はAccountServiceAdapterを生成する。
func NewAccountServiceAdapter(svc *account.Service) *AccountServiceAdapter {
	return &AccountServiceAdapter{svc: svc}
}

// Register はアカウントを登録しhandlerレスポンス型で返す。
func (a *AccountServiceAdapter) Register(ctx context.Context, username, password string) (*tokenResponse, error) {
	resp, err := a.svc.Register(ctx, username, password)
	if err != nil {
		return nil, err
	}
	return toTokenResponse(resp), nil
}

// Login は資格情報を検証しhandlerレスポンス型で返す。
func (a *AccountServiceAdapter) Login(ctx context.Context, username, password string) (*tokenResponse, error) {
	resp, err := a.svc.Login(ctx, username, password)
	if err != nil {
		return nil, err
	}
	return toTokenResponse(resp), nil
}

func toTokenResponse(resp *account.TokenResponse) *tokenResponse {
	return &tokenResponse{
		AccountID: resp.AccountID,
		Username:  resp.Username,
		Token:     resp.Token,
		TokenType: tokenType,
		ExpiresAt: resp.ExpiresAt.UTC(),
	}
}

// CharacterServiceAdapter は character.Service を CharacterServiceInterface に適合させるアダプタ。
type CharacterServiceAdapter struct {
	svc *character.Service
}

// NewCharacterServiceAdapter はCharacterServiceAdapterを生成する。
func NewCharacterServiceAdapter(svc *character.Service) *CharacterServiceAdapter {
	return &CharacterServiceAdapter{svc: svc}
}

// List は呼び出し元のキャラクター一覧を返す。
func (a *CharacterServiceAdapter) List(ctx context.Context, identity model.Identity) ([]*model.Character, error) {
	return a.svc.List(ctx, identity)
}

// Get は所有キャラクターを返す。
func (a *CharacterServiceAdapter) Get(ctx context.Context, identity model.Identity, characterID string) (*model.Character, error) {
	return a.svc.Get(ctx, identity, characterID)
}

// Create はリクエストの各項目を character.CreateInput にまとめて作成する。
func (a *CharacterServiceAdapter) Create(ctx context.Context, identity model.Identity, name, vocation, class string) (*model.Character, error) {
	return a.svc.Create(ctx, identity, character.CreateInput{
		Name:     name,
		Vocation: vocation,
		Class:    class,
	})
}

// AnnotateComment はコメントを置き換える。
func (a *CharacterServiceAdapter) AnnotateComment(ctx context.Context, identity model.Identity, characterID, comment string) (*model.Character, error) {
	return a.svc.AnnotateComment(ctx, identity, characterID, comment)
}

// MarkForDeletion は削除予約する。
func (a *CharacterServiceAdapter) MarkForDeletion(ctx context.Context, identity model.Identity, characterID string) (*model.Character, error) {
	return a.svc.MarkForDeletion(ctx, identity, characterID)
}

// --- compile-time interface checks ---

var _ AccountServiceInterface = (*AccountServiceAdapter)(nil)
var _ CharacterServiceInterface = (*CharacterServiceAdapter)(nil)
