// Package repository はエクスポートカタログの永続化を提供する。
package repository

import (
	"context"

	"github.com/hitoshi/pelotonexport/internal/model"
)

// ExportRepository はエクスポート実行とワークアウト記録の永続化インターフェース。
type ExportRepository interface {
	// StartRun は実行の開始を記録する。
	StartRun(ctx context.Context, run model.RunRecord) error
	// FinishRun は実行の終了状態と件数で記録を更新する。
	FinishRun(ctx context.Context, run model.RunRecord) error
	// RecordExport はワークアウト1件の処理結果を記録する。同じワークアウトIDは上書きする。
	RecordExport(ctx context.Context, rec model.ExportRecord) error

	// ListExports はワークアウトの作成日時の新しい順に記録を返す。
	ListExports(ctx context.Context, limit int) ([]model.ExportRecord, error)
	// ListRuns は開始日時の新しい順に実行記録を返す。
	ListRuns(ctx context.Context, limit int) ([]model.RunRecord, error)
	// FindExport は指定ワークアウトの記録を取得する。見つからない場合はnilを返す。
	FindExport(ctx context.Context, workoutID string) (*model.ExportRecord, error)
}

// TextSanitizer はカタログに保存する自由記述テキストを無害化する。
type TextSanitizer interface {
	SanitizeText(s string) string
}
