// Package character はキャラクターのライフサイクル管理（作成・コメント更新・削除予約）を提供する。
//
// すべての操作は呼び出し元の model.Identity を明示的に受け取り、
// 所有者以外による変更を FORBIDDEN として拒否する。
package character

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/hitoshi/roster/internal/metrics"
	"github.com/hitoshi/roster/internal/model"
	"github.com/hitoshi/roster/internal/repository"
	"github.com/hitoshi/roster/internal/security"
)

// メトリクスと警告ログで使用する操作名
const (
	opGet             = "get"
	opAnnotateComment = "annotate_comment"
	opMarkForDeletion = "mark_for_deletion"
)

// CreateInput はキャラクター作成時の入力値。
// Level は常に0から開始するため入力に含めない。
type CreateInput struct {
	Name     string
	Vocation string
	Class    string
}

// Service はキャラクターライフサイクルのサービス層。
type Service struct {
	accountRepo   repository.AccountRepository
	characterRepo repository.CharacterRepository
	locker        repository.AccountLocker
	recorder      metrics.LifecycleRecorder
	sanitizer     security.TextSanitizer
	logger        *slog.Logger

	// Now は現在時刻を返す。テストで差し替える。
	Now func() time.Time
}

// Option はServiceの任意設定。
type Option func(*Service)

// WithRecorder はメトリクス記録先を設定する。
func WithRecorder(r metrics.LifecycleRecorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithSanitizer は名前・コメントの無害化処理を設定する。
func WithSanitizer(san security.TextSanitizer) Option {
	return func(s *Service) { s.sanitizer = san }
}

// WithLogger はロガーを設定する。
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService はServiceを生成する。
func NewService(
	accountRepo repository.AccountRepository,
	characterRepo repository.CharacterRepository,
	locker repository.AccountLocker,
	opts ...Option,
) *Service {
	s := &Service{
		accountRepo:   accountRepo,
		characterRepo: characterRepo,
		locker:        locker,
		logger:        slog.Default(),
		Now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create は呼び出し元アカウントに新しいキャラクターを作成する。
// 有効なキャラクターが上限に達している場合は CHARACTER_LIMIT を返し、何も永続化しない。
// 上限チェックと作成はアカウント行のロック内で行うため、並行作成でも上限を超えない。
func (s *Service) Create(ctx context.Context, identity model.Identity, input CreateInput) (*model.Character, error) {
	name := s.clean(input.Name)
	if name == "" {
		return nil, model.NewValidationError("キャラクター名は必須です")
	}
	if utf8.RuneCountInString(name) > model.MaxNameLength {
		return nil, model.NewValidationError(
			fmt.Sprintf("キャラクター名は%d文字以内で指定してください", model.MaxNameLength))
	}

	acc, err := s.accountRepo.FindByID(ctx, identity.AccountID)
	if err != nil {
		return nil, fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}
	if acc == nil {
		return nil, model.NewAccountNotFoundError()
	}

	now := s.Now().UTC()
	c := &model.Character{
		ID:        uuid.New().String(),
		AccountID: acc.ID,
		Name:      name,
		Level:     0,
		Vocation:  s.clean(input.Vocation),
		Class:     s.clean(input.Class),
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.locker.WithAccountLock(ctx, acc.ID, func(ctx context.Context, characters repository.CharacterRepository) error {
		count, err := characters.CountActiveByAccountID(ctx, acc.ID)
		if err != nil {
			return fmt.Errorf("キャラクター数の取得に失敗しました: %w", err)
		}
		if count >= model.MaxCharactersPerAccount {
			return model.NewCharacterLimitError()
		}
		return characters.Create(ctx, c)
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, model.NewAccountNotFoundError()
	}
	if model.IsCode(err, model.ErrCodeCharacterLimit) {
		s.logger.Info("キャラクター数の上限により作成を拒否しました",
			slog.String("account_id", acc.ID),
			slog.Int("limit", model.MaxCharactersPerAccount),
		)
		if s.recorder != nil {
			s.recorder.RecordCharacterLimitRejected()
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	if s.recorder != nil {
		s.recorder.RecordCharacterCreated()
	}
	s.logger.Info("キャラクターを作成しました",
		slog.String("account_id", acc.ID),
		slog.String("character_id", c.ID),
	)
	return c, nil
}

// AnnotateComment はキャラクターのコメントを置き換える。
// 削除予約中のキャラクターにも適用できる。
func (s *Service) AnnotateComment(ctx context.Context, identity model.Identity, characterID, comment string) (*model.Character, error) {
	comment = s.clean(comment)
	if utf8.RuneCountInString(comment) > model.MaxCommentLength {
		return nil, model.NewValidationError(
			fmt.Sprintf("コメントは%d文字以内で指定してください", model.MaxCommentLength))
	}

	if _, err := s.findOwned(ctx, identity, characterID, opAnnotateComment); err != nil {
		return nil, err
	}

	updated, err := s.characterRepo.UpdateComment(ctx, characterID, comment, s.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("コメントの更新に失敗しました: %w", err)
	}
	// 所有者確認の後に完全削除された場合
	if updated == nil {
		return nil, model.NewCharacterNotFoundError(characterID)
	}

	if s.recorder != nil {
		s.recorder.RecordCommentAnnotated()
	}
	return updated, nil
}

// MarkForDeletion はキャラクターを削除予約する。
// 削除予定日は現在日付から猶予日数後で、予約済みの場合も現在日付を起点に再設定する。
func (s *Service) MarkForDeletion(ctx context.Context, identity model.Identity, characterID string) (*model.Character, error) {
	c, err := s.findOwned(ctx, identity, characterID, opMarkForDeletion)
	if err != nil {
		return nil, err
	}

	now := s.Now().UTC()
	c.MarkForDeletion(now)

	updated, err := s.characterRepo.UpdateDeletionDate(ctx, characterID, *c.DeletionDate, now)
	if err != nil {
		return nil, fmt.Errorf("削除予約に失敗しました: %w", err)
	}
	if updated == nil {
		return nil, model.NewCharacterNotFoundError(characterID)
	}

	if s.recorder != nil {
		s.recorder.RecordCharacterMarked()
	}
	s.logger.Info("キャラクターを削除予約しました",
		slog.String("account_id", identity.AccountID),
		slog.String("character_id", characterID),
		slog.String("deletion_date", updated.DeletionDate.Format(time.DateOnly)),
	)
	return updated, nil
}

// List は呼び出し元アカウントのキャラクター一覧（削除予約中を含む）を作成順に返す。
func (s *Service) List(ctx context.Context, identity model.Identity) ([]*model.Character, error) {
	characters, err := s.characterRepo.ListByAccountID(ctx, identity.AccountID)
	if err != nil {
		return nil, fmt.Errorf("キャラクター一覧の取得に失敗しました: %w", err)
	}
	if characters == nil {
		characters = []*model.Character{}
	}
	return characters, nil
}

// Get は呼び出し元が所有するキャラクターを返す。
func (s *Service) Get(ctx context.Context, identity model.Identity, characterID string) (*model.Character, error) {
	return s.findOwned(ctx, identity, characterID, opGet)
}

// findOwned はキャラクターを取得し、呼び出し元が所有者であることを確認する。
func (s *Service) findOwned(ctx context.Context, identity model.Identity, characterID, operation string) (*model.Character, error) {
	if _, err := uuid.Parse(characterID); err != nil {
		return nil, model.NewCharacterNotFoundError(characterID)
	}

	c, err := s.characterRepo.FindByID(ctx, characterID)
	if err != nil {
		return nil, fmt.Errorf("キャラクターの取得に失敗しました: %w", err)
	}
	if c == nil {
		return nil, model.NewCharacterNotFoundError(characterID)
	}

	if !c.IsOwnedBy(identity.AccountID) {
		s.logger.Warn("所有者以外によるキャラクター操作を拒否しました",
			slog.String("operation", operation),
			slog.String("account_id", identity.AccountID),
			slog.String("character_id", characterID),
			slog.String("owner_account_id", c.AccountID),
		)
		if s.recorder != nil {
			s.recorder.RecordForbidden(operation)
		}
		return nil, model.NewForbiddenError()
	}

	return c, nil
}

func (s *Service) clean(v string) string {
	if s.sanitizer != nil {
		return s.sanitizer.Clean(v)
	}
	return strings.TrimSpace(v)
}
