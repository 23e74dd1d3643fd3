package model

import "time"

// ExportOutcome はワークアウト1件の処理結果。
type ExportOutcome string

const (
	OutcomeExported ExportOutcome = "exported"
	OutcomeSkipped  ExportOutcome = "skipped"
	OutcomeFailed   ExportOutcome = "failed"
)

// RunRecord はエクスポート実行1回分の記録。
type RunRecord struct {
	ID         string
	State      RunState
	OutputDir  string
	Listed     int
	Exported   int
	Skipped    int
	Failed     int
	StartedAt  time.Time
	FinishedAt *time.Time
}

// ExportRecord はワークアウト1件の処理記録。同じワークアウトは最新の記録で上書きされる。
type ExportRecord struct {
	WorkoutID   string
	RunID       string
	Title       string
	CreatedAt   time.Time
	Discipline  string
	Outcome     ExportOutcome
	MetricsPath string
	DetailsPath string
	Error       string
	RecordedAt  time.Time
}
