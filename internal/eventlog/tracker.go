package eventlog

import (
	"sync"
	"time"

	"github.com/hitoshi/pelotonexport/internal/model"
)

// Snapshot は実行中の進捗状況。/status のレスポンスに使う。
type Snapshot struct {
	RunID     string    `json:"run_id"`
	Phase     string    `json:"phase"`
	Progress  float64   `json:"progress"`
	Message   string    `json:"message"`
	Written   int       `json:"written"`
	Skipped   int       `json:"skipped"`
	Failed    int       `json:"failed"`
	Finished  bool      `json:"finished"`
	UpdatedAt time.Time `json:"updated_at"`
}

// itemState はワークアウト単位の集計状態。値が大きいほど優先される。
type itemState int

const (
	itemNone itemState = iota
	itemSkipped
	itemWritten
	itemFailed
)

// Tracker はイベントから最新の進捗を集計する。
// パイプラインとステータスサーバーの両方から並行に参照される。
// 件数はワークアウト単位で数え、詳細CSVなど1件で複数ファイルを出力しても重複しない。
type Tracker struct {
	mu    sync.RWMutex
	snap  Snapshot
	items map[string]itemState
}

// NewTracker はTrackerの新しいインスタンスを生成する。
func NewTracker() *Tracker {
	return &Tracker{
		snap:  Snapshot{Phase: "idle"},
		items: make(map[string]itemState),
	}
}

// Emit はイベントを進捗に反映する。
func (t *Tracker) Emit(ev model.LogEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.snap.RunID = ev.RunID
	t.snap.Phase = string(ev.Kind)
	t.snap.Progress = ev.Progress
	t.snap.Message = ev.Message
	t.snap.UpdatedAt = ev.Time

	switch ev.Kind {
	case model.EventItemWritten:
		t.record(ev.Workout, itemWritten)
	case model.EventItemSkipped:
		t.record(ev.Workout, itemSkipped)
	case model.EventItemFailed:
		t.record(ev.Workout, itemFailed)
	case model.EventRunCompleted, model.EventRunAborted:
		t.snap.Finished = true
	}
}

// record はワークアウトの状態を更新する。
// 同じワークアウトで複数の結果が届いた場合は失敗、出力、スキップの順に優先する。
func (t *Tracker) record(ref *model.WorkoutRef, st itemState) {
	if ref == nil {
		t.count(st, 1)
		return
	}
	prev := t.items[ref.ID]
	if st <= prev {
		return
	}
	t.count(prev, -1)
	t.count(st, 1)
	t.items[ref.ID] = st
}

func (t *Tracker) count(st itemState, delta int) {
	switch st {
	case itemSkipped:
		t.snap.Skipped += delta
	case itemWritten:
		t.snap.Written += delta
	case itemFailed:
		t.snap.Failed += delta
	}
}

// Snapshot は現在の進捗のコピーを返す。
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap
}
