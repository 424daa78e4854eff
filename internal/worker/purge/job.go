// Package purge は削除予定日を迎えたキャラクターの完全削除ジョブを提供する。
//
// ジョブは呼び出し元のIdentityを持たず、ストアを直接走査する。
// 対象は毎回現在の削除予定日から導出されるため、失敗した実行は
// プロセス内で再試行せず、次回のスケジュール実行に任せる。
package purge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/roster/internal/metrics"
	"github.com/hitoshi/roster/internal/model"
)

// Store は完全削除ジョブが使用するキャラクターストアの操作。
// repository.CharacterRepository がこれを満たす。
type Store interface {
	ListPurgeDue(ctx context.Context, asOf time.Time) ([]*model.Character, error)
	DeleteBatch(ctx context.Context, ids []string, asOf time.Time) (int64, error)
}

// Job は削除予定日を迎えたキャラクターを一括削除するジョブ。
type Job struct {
	store    Store
	logger   *slog.Logger
	recorder metrics.PurgeRecorder

	// Now は現在時刻を返す。テストで差し替える。
	Now func() time.Time
}

// NewJob は新しいJobを生成する。recorderはnilでもよい。
func NewJob(store Store, logger *slog.Logger, recorder metrics.PurgeRecorder) *Job {
	if logger == nil {
		logger = slog.Default()
	}
	return &Job{
		store:    store,
		logger:   logger,
		recorder: recorder,
		Now:      time.Now,
	}
}

// SweepExpired は当日時点で削除予定日を迎えたキャラクターを1回の文で削除し、削除件数を返す。
// 対象がない場合は0を返す。同じ状態で繰り返し実行しても2回目以降は何も削除しない。
func (j *Job) SweepExpired(ctx context.Context) (int, error) {
	start := time.Now()
	asOf := model.DateOf(j.Now())

	due, err := j.store.ListPurgeDue(ctx, asOf)
	if err != nil {
		return 0, j.fail(fmt.Errorf("完全削除対象の取得に失敗: %w", err), asOf)
	}

	if len(due) == 0 {
		j.logger.Info("完全削除対象のキャラクターはありません",
			slog.String("as_of", asOf.Format(time.DateOnly)),
		)
		j.record(0, time.Since(start))
		return 0, nil
	}

	ids := make([]string, len(due))
	for i, c := range due {
		ids[i] = c.ID
	}

	deleted, err := j.store.DeleteBatch(ctx, ids, asOf)
	if err != nil {
		return 0, j.fail(fmt.Errorf("キャラクターの一括削除に失敗: %w", err), asOf)
	}

	duration := time.Since(start)
	j.logger.Info("キャラクターの完全削除ジョブが完了しました",
		slog.Int64("purged_count", deleted),
		slog.Int("candidate_count", len(ids)),
		slog.String("as_of", asOf.Format(time.DateOnly)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)
	j.record(int(deleted), duration)

	return int(deleted), nil
}

// Run はスケジューラのコールバックとして SweepExpired を実行する。
func (j *Job) Run(ctx context.Context) error {
	_, err := j.SweepExpired(ctx)
	return err
}

func (j *Job) fail(err error, asOf time.Time) error {
	j.logger.Error("キャラクターの完全削除ジョブの実行に失敗しました",
		slog.String("error", err.Error()),
		slog.String("as_of", asOf.Format(time.DateOnly)),
	)
	if j.recorder != nil {
		j.recorder.RecordPurgeFailure()
	}
	return err
}

func (j *Job) record(purged int, duration time.Duration) {
	if j.recorder != nil {
		j.recorder.RecordPurgeRun(purged, duration)
	}
}
