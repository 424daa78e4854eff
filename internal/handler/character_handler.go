package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/roster/internal/model"
)

// deletionDateLayout は削除予定日のレスポンス形式。
const deletionDateLayout = time.DateOnly

// CharacterServiceInterface はキャラクターハンドラーが必要とするサービスインターフェース。
type CharacterServiceInterface interface {
	List(ctx context.Context, identity model.Identity) ([]*model.Character, error)
	Get(ctx context.Context, identity model.Identity, characterID string) (*model.Character, error)
	Create(ctx context.Context, identity model.Identity, name, vocation, class string) (*model.Character, error)
	AnnotateComment(ctx context.Context, identity model.Identity, characterID, comment string) (*model.Character, error)
	MarkForDeletion(ctx context.Context, identity model.Identity, characterID string) (*model.Character, error)
}

// CharacterHandler はキャラクター管理のHTTPハンドラー。
type CharacterHandler struct {
	service CharacterServiceInterface
}

// NewCharacterHandler はCharacterHandlerを生成する。
func NewCharacterHandler(service CharacterServiceInterface) *CharacterHandler {
	return &CharacterHandler{service: service}
}

// createCharacterRequest はキャラクター作成リクエストのボディ。
type createCharacterRequest struct {
	Name     string `json:"name"`
	Vocation string `json:"vocation"`
	Class    string `json:"class"`
}

// annotateCommentRequest はコメント更新リクエストのボディ。
// nullまたは省略時は空文字（コメントの消去）として扱う。
type annotateCommentRequest struct {
	Comment *string `json:"comment"`
}

// characterResponse はキャラクター情報のAPIレスポンス。
type characterResponse struct {
	ID           string    `json:"id"`
	AccountID    string    `json:"account_id"`
	Name         string    `json:"name"`
	Level        int       `json:"level"`
	Vocation     string    `json:"vocation"`
	Class        string    `json:"class"`
	Comment      string    `json:"comment"`
	Status       string    `json:"status"`
	DeletionDate *string   `json:"deletion_date"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// characterListResponse はキャラクター一覧のAPIレスポンス。
type characterListResponse struct {
	Characters  []characterResponse `json:"characters"`
	ActiveCount int                 `json:"active_count"`
	Limit       int                 `json:"limit"`
}

// ListCharacters は呼び出し元のキャラクター一覧を返す。
// GET /api/characters
func (h *CharacterHandler) ListCharacters(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	characters, err := h.service.List(r.Context(), identity)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := characterListResponse{
		Characters: make([]characterResponse, 0, len(characters)),
		Limit:      model.MaxCharactersPerAccount,
	}
	for _, c := range characters {
		resp.Characters = append(resp.Characters, toCharacterResponse(c))
		if c.Status() == model.CharacterStatusActive {
			resp.ActiveCount++
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// CreateCharacter はキャラクターを作成する。
// POST /api/characters
func (h *CharacterHandler) CreateCharacter(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req createCharacterRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	c, err := h.service.Create(r.Context(), identity, req.Name, req.Vocation, req.Class)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/characters/"+c.ID)
	writeJSON(w, http.StatusCreated, toCharacterResponse(c))
}

// GetCharacter はキャラクター詳細を返す。
// GET /api/characters/{id}
func (h *CharacterHandler) GetCharacter(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	c, err := h.service.Get(r.Context(), identity, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toCharacterResponse(c))
}

// AnnotateComment はキャラクターのコメントを置き換える。
// PUT /api/characters/{id}/comment
func (h *CharacterHandler) AnnotateComment(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req annotateCommentRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	comment := ""
	if req.Comment != nil {
		comment = *req.Comment
	}

	c, err := h.service.AnnotateComment(r.Context(), identity, chi.URLParam(r, "id"), comment)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toCharacterResponse(c))
}

// MarkForDeletion はキャラクターを削除予約する。
// 実際の削除は猶予期間経過後に完全削除ジョブが行う。
// DELETE /api/characters/{id}
func (h *CharacterHandler) MarkForDeletion(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	if _, err := h.service.MarkForDeletion(r.Context(), identity, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// toCharacterResponse はmodel.CharacterからAPIレスポンスに変換する。
func toCharacterResponse(c *model.Character) characterResponse {
	resp := characterResponse{
		ID:        c.ID,
		AccountID: c.AccountID,
		Name:      c.Name,
		Level:     c.Level,
		Vocation:  c.Vocation,
		Class:     c.Class,
		Comment:   c.Comment,
		Status:    string(c.Status()),
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	if c.DeletionDate != nil {
		d := c.DeletionDate.Format(deletionDateLayout)
		resp.DeletionDate = &d
	}
	return resp
}
