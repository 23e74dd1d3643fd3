package model

import "time"

// Severity はログイベントの重要度。
type Severity int

const (
	SeverityInformation Severity = iota
	SeverityError
)

// String は重要度の名前を返す。
func (s Severity) String() string {
	if s == SeverityError {
		return "Error"
	}
	return "Information"
}

// EventKind はパイプラインの進行段階を表す。
type EventKind string

const (
	EventAuthStarted      EventKind = "auth_started"
	EventAuthSucceeded    EventKind = "auth_succeeded"
	EventListingStarted   EventKind = "listing_started"
	EventListingCompleted EventKind = "listing_completed"
	EventItemSkipped      EventKind = "item_skipped"
	EventItemFetching     EventKind = "item_fetching"
	EventItemWriting      EventKind = "item_writing"
	EventItemWritten      EventKind = "item_written"
	EventItemFailed       EventKind = "item_failed"
	EventRunAborted       EventKind = "run_aborted"
	EventRunCompleted     EventKind = "run_completed"
)

// LogEvent はパイプラインから外部のシンクへ送るイベント。
type LogEvent struct {
	Time     time.Time
	RunID    string
	Severity Severity
	Kind     EventKind
	Message  string
	Err      error
	Workout  *WorkoutRef
	Path     string
	// Progress は0から100の進捗率。
	Progress float64
}

// RunState はエクスポート実行の終了状態。
type RunState string

const (
	StateCompletedFully            RunState = "CompletedFully"
	StateAbortedDuringAuth         RunState = "AbortedDuringAuth"
	StateAbortedDuringListing      RunState = "AbortedDuringListing"
	StateCompletedWithSkippedItems RunState = "CompletedWithSkippedItems"

	// StateInterrupted はシグナル等でコンテキストがキャンセルされたことを示す。
	StateInterrupted RunState = "Interrupted"
)
