// Package throttle はリモート呼び出しの間に固定の待機時間を挟む。
// サービス側の過剰アクセス検知を避けるためのもので、失敗時の延長や成功時の短縮は行わない。
package throttle

import (
	"context"
	"time"
)

// DefaultInterval はデフォルトの待機時間。
const DefaultInterval = 3 * time.Second

// WaitRecorder は待機時間の記録先。metrics.Collectorが実装する。
type WaitRecorder interface {
	RecordThrottleWait(d time.Duration)
}

// Throttle は固定時間の待機を提供する。
type Throttle struct {
	interval time.Duration
	recorder WaitRecorder
	// sleep はテスト用に差し替え可能
	sleep func(ctx context.Context, d time.Duration) error
}

// New はThrottleを生成する。intervalが負の場合は0として扱う。
// recorderはnilでもよい。
func New(interval time.Duration, recorder WaitRecorder) *Throttle {
	if interval < 0 {
		interval = 0
	}
	return &Throttle{
		interval: interval,
		recorder: recorder,
		sleep:    sleepContext,
	}
}

// Interval は設定された待機時間を返す。
func (t *Throttle) Interval() time.Duration {
	return t.interval
}

// Wait はinterval分だけブロックする。
// コンテキストがキャンセルされた場合のみ早く戻り、ctx.Err()を返す。
func (t *Throttle) Wait(ctx context.Context) error {
	start := time.Now()
	err := t.sleep(ctx, t.interval)
	if t.recorder != nil {
		t.recorder.RecordThrottleWait(time.Since(start))
	}
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
