// Package naming はワークアウトから出力ファイル名を導出する。
// 同じワークアウトからは常に同じ名前が得られるため、再実行時の存在チェックに使える。
package naming

import (
	"strings"

	"github.com/hitoshi/pelotonexport/internal/model"
)

const (
	// dateLayout は作成日時の書式（年-日-月_時-分）。
	// 既存のエクスポート結果と名前を一致させるため日と月の順序を変えない。
	dateLayout = "2006-02-01_15-04"

	metricsCSVSuffix  = "_Metrics.csv"
	metricsJSONSuffix = "_Metrics.json"
	detailsCSVSuffix  = "_UserWorkoutDetails.csv"
	detailsJSONSuffix = "_UserWorkoutDetails.json"
)

// BaseName は "<日時>_<サニタイズ済みタイトル>" 形式のベース名を返す。
// 衝突の解決は行わない。
func BaseName(w model.WorkoutSummary) string {
	return w.CreatedTime().Format(dateLayout) + "_" + SanitizeTitle(w.Title)
}

// SanitizeTitle は [A-Za-z0-9] 以外の文字を1文字ごとに "_" へ置き換える。
func SanitizeTitle(title string) string {
	var b strings.Builder
	b.Grow(len(title))
	for _, r := range title {
		if isSafe(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func isSafe(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// MetricsCSVName はメトリクスCSVのファイル名を返す。
func MetricsCSVName(base string) string { return base + metricsCSVSuffix }

// MetricsJSONName は生のパフォーマンスグラフJSONのファイル名を返す。
func MetricsJSONName(base string) string { return base + metricsJSONSuffix }

// DetailsCSVName はワークアウト詳細CSVのファイル名を返す。
func DetailsCSVName(base string) string { return base + detailsCSVSuffix }

// DetailsJSONName は生のワークアウト詳細JSONのファイル名を返す。
func DetailsJSONName(base string) string { return base + detailsJSONSuffix }
