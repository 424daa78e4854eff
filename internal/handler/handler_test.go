package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/roster/internal/middleware"
	"github.com/hitoshi/roster/internal/model"
)

// --- モック定義 ---

// mockAccountService はAccountServiceInterfaceのモック実装。
type mockAccountService struct {
	registerFn func(ctx context.Context, username, password string) (*tokenResponse, error)
	loginFn    func(ctx context.Context, username, password string) (*tokenResponse, error)
}

func (m *mockAccountService) Register(ctx context.Context, username, password string) (*tokenResponse, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, username, password)
	}
	return nil, nil
}

func (m *mockAccountService) Login(ctx context.Context, username, password string) (*tokenResponse, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, username, password)
	}
	return nil, nil
}

// mockCharacterService はCharacterServiceInterfaceのモック実装。
type mockCharacterService struct {
	listFn            func(ctx context.Context, identity model.Identity) ([]*model.Character, error)
	getFn             func(ctx context.Context, identity model.Identity, characterID string) (*model.Character, error)
	createFn          func(ctx context.Context, identity model.Identity, name, vocation, class string) (*model.Character, error)
	annotateCommentFn func(ctx context.Context, identity model.Identity, characterID, comment string) (*model.Character, error)
	markFn            func(ctx context.Context, identity model.Identity, characterID string) (*model.Character, error)
}

func (m *mockCharacterService) List(ctx context.Context, identity model.Identity) ([]*model.Character, error) {
	if m.listFn != nil {
		return m.listFn(ctx, identity)
	}
	return []*model.Character{}, nil
}

func (m *mockCharacterService) Get(ctx context.Context, identity model.Identity, characterID string) (*model.Character, error) {
	if m.getFn != nil {
		return m.getFn(ctx, identity, characterID)
	}
	return nil, model.NewCharacterNotFoundError(characterID)
}

func (m *mockCharacterService) Create(ctx context.Context, identity model.Identity, name, vocation, class string) (*model.Character, error) {
	if m.createFn != nil {
		return m.createFn(ctx, identity, name, vocation, class)
	}
	return nil, nil
}

func (m *mockCharacterService) AnnotateComment(ctx context.Context, identity model.Identity, characterID, comment string) (*model.Character, error) {
	if m.annotateCommentFn != nil {
		return m.annotateCommentFn(ctx, identity, characterID, comment)
	}
	return nil, nil
}

func (m *mockCharacterService) MarkForDeletion(ctx context.Context, identity model.Identity, characterID string) (*model.Character, error) {
	if m.markFn != nil {
		return m.markFn(ctx, identity, characterID)
	}
	return nil, nil
}

// --- テストヘルパー ---

const (
	testAccountID   = "11111111-1111-1111-1111-111111111111"
	testCharacterID = "22222222-2222-2222-2222-222222222222"
)

// withIdentity はテスト用にリクエストコンテキストにIdentityを注入するヘルパー。
func withIdentity(r *http.Request, accountID string) *http.Request {
	ctx := middleware.ContextWithIdentity(r.Context(), model.Identity{AccountID: accountID, Username: "tester"})
	return r.WithContext(ctx)
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) apiErrorResponse {
	t.Helper()
	var result apiErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}
