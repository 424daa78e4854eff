package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/hitoshi/roster/internal/model"
	"golang.org/x/time/rate"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralRate          rate.Limit    // API全般のレート（req/sec）
	GeneralBurst         int           // API全般のバーストサイズ
	CharacterCreateRate  rate.Limit    // キャラクター作成のレート（req/sec）
	CharacterCreateBurst int           // キャラクター作成のバーストサイズ
	CleanupInterval      time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// API全般 120 req/min/account、キャラクター作成 10 req/min/account。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfigPerMinute(120, 10)
}

// RateLimiterConfigPerMinute は1分あたりのリクエスト数から設定を生成する。
// バーストサイズは1分あたりの上限と同じ値にする。
func RateLimiterConfigPerMinute(generalPerMin, createPerMin int) RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:          rate.Limit(float64(generalPerMin) / 60.0),
		GeneralBurst:         generalPerMin,
		CharacterCreateRate:  rate.Limit(float64(createPerMin) / 60.0),
		CharacterCreateBurst: createPerMin,
		CleanupInterval:      5 * time.Minute,
	}
}

// accountLimiter はアカウントごとのレートリミッターとアクセス時刻を保持する。
type accountLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// limiterSet は1種類のレート制限についてアカウント別のリミッターを管理する。
type limiterSet struct {
	name  string
	rate  rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*accountLimiter
}

func newLimiterSet(name string, r rate.Limit, burst int) *limiterSet {
	return &limiterSet{
		name:     name,
		rate:     r,
		burst:    burst,
		limiters: make(map[string]*accountLimiter),
	}
}

// get はアカウントのリミッターを取得または作成し、最終アクセス時刻を更新する。
func (s *limiterSet) get(accountID string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if al, ok := s.limiters[accountID]; ok {
		al.lastAccess = now
		return al.limiter
	}

	limiter := rate.NewLimiter(s.rate, s.burst)
	s.limiters[accountID] = &accountLimiter{limiter: limiter, lastAccess: now}
	return limiter
}

func (s *limiterSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

// evict は最終アクセスが ttl より古いエントリを削除する。
func (s *limiterSet) evict(now time.Time, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for accountID, al := range s.limiters {
		if now.Sub(al.lastAccess) > ttl {
			delete(s.limiters, accountID)
		}
	}
}

// middleware はこのリミッターで制限するミドルウェアを返す。
// リクエストコンテキストにIdentityが含まれている必要がある（BearerAuthの後に配置）。
func (s *limiterSet) middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := IdentityFromContext(r.Context())
			if err != nil {
				writeUnauthorized(w)
				return
			}

			if !s.get(identity.AccountID).Allow() {
				writeRateLimitResponse(w, s.rate)
				slog.Warn("rate limit exceeded",
					slog.String("account_id", identity.AccountID),
					slog.String("limit_type", s.name),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimiter はアカウントごとのレート制限を管理する。
// API全般とキャラクター作成の2種類を独立に提供する。
type RateLimiter struct {
	config RateLimiterConfig

	general         *limiterSet
	characterCreate *limiterSet

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config:          config,
		general:         newLimiterSet("general", config.GeneralRate, config.GeneralBurst),
		characterCreate: newLimiterSet("character_create", config.CharacterCreateRate, config.CharacterCreateBurst),
		stopCh:          make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。複数回呼んでもよい。
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// GeneralMiddleware はAPI全般のレート制限ミドルウェアを返す。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return rl.general.middleware()
}

// CharacterCreateMiddleware はキャラクター作成専用のレート制限ミドルウェアを返す。
// API全般のレート制限とは独立に動作する。
func (rl *RateLimiter) CharacterCreateMiddleware() func(next http.Handler) http.Handler {
	return rl.characterCreate.middleware()
}

// GeneralLimiterCount は現在管理されているAPI全般リミッターのエントリ数を返す。
func (rl *RateLimiter) GeneralLimiterCount() int {
	return rl.general.len()
}

// CharacterCreateLimiterCount は現在管理されているキャラクター作成リミッターのエントリ数を返す。
func (rl *RateLimiter) CharacterCreateLimiterCount() int {
	return rl.characterCreate.len()
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup() {
	ttl := rl.config.CleanupInterval * 2
	now := time.Now()
	rl.general.evict(now, ttl)
	rl.characterCreate.evict(now, ttl)
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはトークンが補充されるまでの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	retryAfterSec := 1
	if r > 0 {
		retryAfterSec = int(math.Ceil(1.0 / float64(r)))
	}
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	WriteErrorResponse(w, http.StatusTooManyRequests, model.NewRateLimitedError())
}
