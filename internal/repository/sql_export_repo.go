package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/pelotonexport/internal/database"
	"github.com/hitoshi/pelotonexport/internal/model"
)

// timeLayout は保存時の日時フォーマット。SQLiteのTEXT比較で順序が保たれるよう固定幅にする。
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

// defaultListLimit は一覧取得時の既定件数。
const defaultListLimit = 50

// SQLExportRepo はSQLite/PostgreSQLを使用したカタログリポジトリ。
type SQLExportRepo struct {
	db        *sql.DB
	dialect   database.Dialect
	sanitizer TextSanitizer
}

// NewSQLExportRepo はSQLExportRepoを生成する。sanitizerがnilの場合はテキストをそのまま保存する。
func NewSQLExportRepo(db *sql.DB, dialect database.Dialect, sanitizer TextSanitizer) *SQLExportRepo {
	return &SQLExportRepo{db: db, dialect: dialect, sanitizer: sanitizer}
}

// StartRun は実行の開始を記録する。同じIDの記録があれば上書きする。
func (r *SQLExportRepo) StartRun(ctx context.Context, run model.RunRecord) error {
	if err := r.upsertRun(ctx, run); err != nil {
		return fmt.Errorf("実行記録の作成に失敗しました: %w", err)
	}
	return nil
}

// FinishRun は実行の終了状態と件数を記録する。
func (r *SQLExportRepo) FinishRun(ctx context.Context, run model.RunRecord) error {
	if err := r.upsertRun(ctx, run); err != nil {
		return fmt.Errorf("実行記録の更新に失敗しました: %w", err)
	}
	return nil
}

func (r *SQLExportRepo) upsertRun(ctx context.Context, run model.RunRecord) error {
	var finishedAt sql.NullString
	if run.FinishedAt != nil {
		finishedAt = nullString(formatTime(*run.FinishedAt))
	}

	_, err := r.db.ExecContext(ctx, r.rebind(
		`INSERT INTO export_runs (id, state, output_dir, listed, exported, skipped, failed, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		     state = excluded.state,
		     listed = excluded.listed,
		     exported = excluded.exported,
		     skipped = excluded.skipped,
		     failed = excluded.failed,
		     finished_at = excluded.finished_at`),
		run.ID, string(run.State), run.OutputDir,
		run.Listed, run.Exported, run.Skipped, run.Failed,
		formatTime(run.StartedAt), finishedAt,
	)
	return err
}

// RecordExport はワークアウト1件の処理結果を記録する。
// タイトルとエラーメッセージはサニタイズしてから保存する。
func (r *SQLExportRepo) RecordExport(ctx context.Context, rec model.ExportRecord) error {
	if rec.WorkoutID == "" {
		return fmt.Errorf("ワークアウトIDが空です")
	}
	recordedAt := rec.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, r.rebind(
		`INSERT INTO exported_workouts
		     (workout_id, run_id, title, workout_created_at, discipline, outcome,
		      metrics_path, details_path, error, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (workout_id) DO UPDATE SET
		     run_id = excluded.run_id,
		     title = excluded.title,
		     workout_created_at = excluded.workout_created_at,
		     discipline = excluded.discipline,
		     outcome = excluded.outcome,
		     metrics_path = excluded.metrics_path,
		     details_path = excluded.details_path,
		     error = excluded.error,
		     recorded_at = excluded.recorded_at`),
		rec.WorkoutID, rec.RunID, r.sanitize(rec.Title), formatTime(rec.CreatedAt),
		rec.Discipline, string(rec.Outcome), rec.MetricsPath, rec.DetailsPath,
		r.sanitize(rec.Error), formatTime(recordedAt),
	)
	if err != nil {
		return fmt.Errorf("ワークアウト記録の保存に失敗しました: %w", err)
	}
	return nil
}

const exportColumns = `workout_id, run_id, title, workout_created_at, discipline, outcome,
        metrics_path, details_path, error, recorded_at`

// ListExports はワークアウトの作成日時の新しい順に記録を返す。limitが0以下の場合は既定件数。
func (r *SQLExportRepo) ListExports(ctx context.Context, limit int) ([]model.ExportRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(
		`SELECT `+exportColumns+`
		 FROM exported_workouts
		 ORDER BY workout_created_at DESC, workout_id
		 LIMIT ?`),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ワークアウト記録一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var records []model.ExportRecord
	for rows.Next() {
		rec, err := scanExport(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ワークアウト記録一覧の読み取りに失敗しました: %w", err)
	}
	return records, nil
}

// FindExport は指定ワークアウトの記録を取得する。見つからない場合はnilを返す。
func (r *SQLExportRepo) FindExport(ctx context.Context, workoutID string) (*model.ExportRecord, error) {
	row := r.db.QueryRowContext(ctx, r.rebind(
		`SELECT `+exportColumns+` FROM exported_workouts WHERE workout_id = ?`),
		workoutID,
	)
	rec, err := scanExport(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListRuns は開始日時の新しい順に実行記録を返す。limitが0以下の場合は既定件数。
func (r *SQLExportRepo) ListRuns(ctx context.Context, limit int) ([]model.RunRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(
		`SELECT id, state, output_dir, listed, exported, skipped, failed, started_at, finished_at
		 FROM export_runs
		 ORDER BY started_at DESC, id
		 LIMIT ?`),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("実行記録一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var runs []model.RunRecord
	for rows.Next() {
		var run model.RunRecord
		var state, startedAt string
		var finishedAt sql.NullString
		if err := rows.Scan(
			&run.ID, &state, &run.OutputDir,
			&run.Listed, &run.Exported, &run.Skipped, &run.Failed,
			&startedAt, &finishedAt,
		); err != nil {
			return nil, fmt.Errorf("実行記録の読み取りに失敗しました: %w", err)
		}
		run.State = model.RunState(state)
		if run.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, err
		}
		if v := nullStringValue(finishedAt); v != "" {
			t, err := parseTime(v)
			if err != nil {
				return nil, err
			}
			run.FinishedAt = &t
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("実行記録一覧の読み取りに失敗しました: %w", err)
	}
	return runs, nil
}

// scanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type scanner interface {
	Scan(dest ...any) error
}

func scanExport(s scanner) (*model.ExportRecord, error) {
	var rec model.ExportRecord
	var outcome, createdAt, recordedAt string
	err := s.Scan(
		&rec.WorkoutID, &rec.RunID, &rec.Title, &createdAt, &rec.Discipline, &outcome,
		&rec.MetricsPath, &rec.DetailsPath, &rec.Error, &recordedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("ワークアウト記録の読み取りに失敗しました: %w", err)
	}

	rec.Outcome = model.ExportOutcome(outcome)
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if rec.RecordedAt, err = parseTime(recordedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *SQLExportRepo) sanitize(s string) string {
	if r.sanitizer == nil || s == "" {
		return s
	}
	return r.sanitizer.SanitizeText(s)
}

// rebind は?プレースホルダーをPostgreSQLの$n形式に置き換える。
func (r *SQLExportRepo) rebind(query string) string {
	if r.dialect != database.DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime は保存された日時を読み取る。
// PostgreSQLのTIMESTAMPTZはdatabase/sqlがRFC3339Nano形式の文字列に変換する。
func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("日時の解析に失敗しました: %q: %w", s, err)
	}
	return t.UTC(), nil
}

// nullString は空文字列をNULLとして扱うsql.NullStringを返す。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はsql.NullStringから文字列を取得する。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}
