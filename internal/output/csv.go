// Package output はエクスポート結果をファイルへ書き出す。
// 書き込みは一時ファイル経由で行い、中断時に不完全なファイルを残さない。
package output

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hitoshi/pelotonexport/internal/model"
)

const elapsedHeader = "elapsed_seconds"

// Exists はpathにファイルが存在するかを返す。
// 再実行時のスキップ判定にのみ使う。
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// WriteMetricsCSV はメトリクスドキュメントをCSVとしてpathに書き出す。
// 既存ファイルは無条件に上書きする。値のクォートは行わない。
func WriteMetricsCSV(doc *model.MetricsDocument, path string) error {
	return writeFileAtomic(path, []byte(FormatMetricsCSV(doc)))
}

// FormatMetricsCSV はヘッダー行とデータ行を改行区切りで連結した文字列を返す。
// 最終行にも改行を付ける。欠測値のセルは空になる。
func FormatMetricsCSV(doc *model.MetricsDocument) string {
	var b strings.Builder

	header := make([]string, 0, len(doc.Series)+1)
	header = append(header, elapsedHeader)
	for _, s := range doc.Series {
		header = append(header, s.Slug)
	}
	b.WriteString(strings.Join(header, ","))
	b.WriteByte('\n')

	row := make([]string, len(doc.Series)+1)
	for i, elapsed := range doc.ElapsedSeconds {
		row[0] = formatValue(elapsed)
		for j, s := range doc.Series {
			row[j+1] = formatSample(s.Values[i])
		}
		b.WriteString(strings.Join(row, ","))
		b.WriteByte('\n')
	}

	return b.String()
}

// formatValue は整数値を小数点なしで出力する。
func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// formatSample は欠測値を空欄として出力する。
func formatSample(v *float64) string {
	if v == nil {
		return ""
	}
	return formatValue(*v)
}

// WriteRawJSON はレスポンスボディをそのまま保存する。
func WriteRawJSON(raw []byte, path string) error {
	return writeFileAtomic(path, raw)
}

// writeFileAtomic は同じディレクトリの一時ファイルに書き込んでからリネームする。
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fsError("create", path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fsError("write", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fsError("close", path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fsError("chmod", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fsError("rename", path, err)
	}
	return nil
}

func fsError(op, path string, err error) error {
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		err = pathErr.Err
	}
	return &model.FileSystemError{Op: op, Path: path, Err: err}
}

// CheckDirectory は出力ディレクトリが存在し、ディレクトリであることを確認する。
func CheckDirectory(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fsError("stat", dir, err)
	}
	if !info.IsDir() {
		return &model.FileSystemError{Op: "stat", Path: dir, Err: errors.New("ディレクトリではありません")}
	}
	return nil
}
