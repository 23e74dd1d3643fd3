// Package eventlog はパイプラインのLogEventを各出力先へ届ける。
// 構造化ログ、コンソール表示、/status用の進捗スナップショットを提供する。
package eventlog

import (
	"context"
	"log/slog"

	"github.com/hitoshi/pelotonexport/internal/model"
)

// Sink はLogEventの受け取り先。
type Sink interface {
	Emit(ev model.LogEvent)
}

// Multi は複数のSinkへ同じイベントを順に配送する。
type Multi []Sink

// Emit はすべてのSinkへイベントを配送する。
func (m Multi) Emit(ev model.LogEvent) {
	for _, s := range m {
		s.Emit(ev)
	}
}

// SlogSink はLogEventを構造化ログとして出力する。
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink はSlogSinkの新しいインスタンスを生成する。
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return &SlogSink{logger: logger}
}

// Emit はイベントの重要度に応じたレベルでログを出力する。
func (s *SlogSink) Emit(ev model.LogEvent) {
	level := slog.LevelInfo
	if ev.Severity == model.SeverityError {
		level = slog.LevelError
	}

	attrs := []slog.Attr{
		slog.String("run_id", ev.RunID),
		slog.String("event", string(ev.Kind)),
		slog.Float64("progress", ev.Progress),
	}
	if ev.Workout != nil {
		attrs = append(attrs,
			slog.String("workout_id", ev.Workout.ID),
			slog.String("title", ev.Workout.Title),
			slog.Time("created_at", ev.Workout.CreatedAt),
		)
	}
	if ev.Path != "" {
		attrs = append(attrs, slog.String("path", ev.Path))
	}
	if ev.Err != nil {
		attrs = append(attrs,
			slog.String("error", ev.Err.Error()),
			slog.String("error_category", model.ErrorCategory(ev.Err)),
		)
	}

	s.logger.LogAttrs(context.Background(), level, ev.Message, attrs...)
}
