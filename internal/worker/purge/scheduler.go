package purge

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultInterval は完全削除ジョブの既定の実行間隔。
const DefaultInterval = 24 * time.Hour

// ErrAlreadyStarted はStartが2回呼ばれた場合に返される。
var ErrAlreadyStarted = errors.New("purge scheduler already started")

// Runner はスケジューラが定期実行する処理。
type Runner interface {
	Run(ctx context.Context) error
}

// Scheduler は一定間隔でRunnerを実行する。
// 実行は単一のgoroutineで行うため、前回の実行が終わるまで次の実行は始まらない。
type Scheduler struct {
	runner   Runner
	logger   *slog.Logger
	Interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler は新しいSchedulerを生成する。
// intervalが0以下の場合は DefaultInterval を使用する。
func NewScheduler(runner Runner, logger *slog.Logger, interval time.Duration) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		runner:   runner,
		logger:   logger,
		Interval: interval,
	}
}

// Start はバックグラウンドでスケジューラを起動する。
// 起動直後に1回実行し、その後はIntervalごとに実行する。
// ctxのキャンセルまたはStopの呼び出しで停止する。
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done != nil {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(ctx, s.done)
	return nil
}

// Stop はスケジューラを停止し、実行中の処理の終了を待つ。
// 未起動の場合は何もしない。
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Done はスケジューラのgoroutineが終了すると閉じられるチャネルを返す。
// 未起動の場合はnilを返す。
func (s *Scheduler) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.logger.Info("完全削除スケジューラを開始しました",
		slog.Duration("interval", s.Interval),
	)

	s.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("完全削除スケジューラを停止しました")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

// runOnce は1回分の実行を行う。失敗はログに記録し、次回の実行を待つ。
func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := s.runner.Run(ctx); err != nil {
		s.logger.Error("完全削除の実行に失敗しました。次回の実行で再試行します",
			slog.String("error", err.Error()),
			slog.Duration("next_run_in", s.Interval),
		)
	}
}
