// Package account はアカウント登録とログインのドメインロジックを提供する。
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/roster/internal/model"
	"github.com/hitoshi/roster/internal/repository"
)

const (
	minUsernameLength = 3
	maxUsernameLength = 32
	minPasswordLength = 8
	// bcryptは72バイトを超える入力を扱えない
	maxPasswordLength = 72
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// dummyPassword は存在しないユーザーのログイン時に照合するダミーハッシュの元。
const dummyPassword = "roster-dummy-password"

// PasswordHasher はパスワードハッシュの生成と照合を行う。
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) (bool, error)
}

// TokenIssuer はアカウントに対するベアラートークンを発行する。
type TokenIssuer interface {
	Issue(accountID, username string) (string, time.Time, error)
}

// TokenResponse は登録・ログイン成功時の応答。
type TokenResponse struct {
	AccountID string
	Username  string
	Token     string
	ExpiresAt time.Time
}

// Service はアカウント管理のサービス層。
type Service struct {
	accountRepo repository.AccountRepository
	hasher      PasswordHasher
	tokens      TokenIssuer
	logger      *slog.Logger

	dummyOnce sync.Once
	dummyHash string

	// Now は現在時刻を返す。テストで差し替える。
	Now func() time.Time
}

// NewService はServiceを生成する。loggerがnilの場合はslog.Default()を使用する。
func NewService(
	accountRepo repository.AccountRepository,
	hasher PasswordHasher,
	tokens TokenIssuer,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		accountRepo: accountRepo,
		hasher:      hasher,
		tokens:      tokens,
		logger:      logger,
		Now:         time.Now,
	}
}

// Register はアカウントを作成し、トークンを発行する。
func (s *Service) Register(ctx context.Context, username, password string) (*TokenResponse, error) {
	username = strings.TrimSpace(username)
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	existing, err := s.accountRepo.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("アカウントの検索に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewUsernameTakenError()
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("パスワードのハッシュ化に失敗しました: %w", err)
	}

	now := s.Now().UTC()
	acc := &model.Account{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	// 検索後に同名アカウントが作成された場合は一意制約で検出する
	if err := s.accountRepo.Create(ctx, acc); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewUsernameTakenError()
		}
		return nil, fmt.Errorf("アカウントの作成に失敗しました: %w", err)
	}

	s.logger.Info("アカウントを作成しました",
		slog.String("account_id", acc.ID),
		slog.String("username", acc.Username),
	)

	return s.issue(acc)
}

// Login はユーザー名とパスワードを照合し、トークンを発行する。
// ユーザーが存在しない場合とパスワード不一致は同じエラーを返す。
func (s *Service) Login(ctx context.Context, username, password string) (*TokenResponse, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, model.NewInvalidCredentialsError()
	}

	acc, err := s.accountRepo.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("アカウントの検索に失敗しました: %w", err)
	}
	if acc == nil {
		// 応答時間でユーザーの存在が判別できないよう、同じコストの照合を行う
		s.compareDummy(password)
		return nil, model.NewInvalidCredentialsError()
	}

	ok, err := s.hasher.Compare(acc.PasswordHash, password)
	if err != nil {
		return nil, fmt.Errorf("パスワードの照合に失敗しました: %w", err)
	}
	if !ok {
		s.logger.Warn("ログインに失敗しました",
			slog.String("account_id", acc.ID),
		)
		return nil, model.NewInvalidCredentialsError()
	}

	return s.issue(acc)
}

func (s *Service) compareDummy(password string) {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash(dummyPassword)
		if err != nil {
			s.logger.Error("ダミーハッシュの生成に失敗しました", slog.String("error", err.Error()))
			return
		}
		s.dummyHash = hash
	})
	if s.dummyHash == "" {
		return
	}
	_, _ = s.hasher.Compare(s.dummyHash, password)
}

func (s *Service) issue(acc *model.Account) (*TokenResponse, error) {
	token, expiresAt, err := s.tokens.Issue(acc.ID, acc.Username)
	if err != nil {
		return nil, fmt.Errorf("トークンの発行に失敗しました: %w", err)
	}
	return &TokenResponse{
		AccountID: acc.ID,
		Username:  acc.Username,
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

func validateUsername(username string) error {
	if len(username) < minUsernameLength || len(username) > maxUsernameLength {
		return model.NewValidationError(
			fmt.Sprintf("ユーザー名は%d〜%d文字で指定してください", minUsernameLength, maxUsernameLength))
	}
	if !usernamePattern.MatchString(username) {
		return model.NewValidationError("ユーザー名に使用できるのは英数字と _ . - のみです")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return model.NewValidationError(
			fmt.Sprintf("パスワードは%d文字以上で指定してください", minPasswordLength))
	}
	if len(password) > maxPasswordLength {
		return model.NewValidationError(
			fmt.Sprintf("パスワードは%dバイト以内で指定してください", maxPasswordLength))
	}
	return nil
}
