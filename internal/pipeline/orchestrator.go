// Package pipeline はエクスポート処理全体の順序制御を行う。
// 認証、一覧取得、ワークアウトごとのスキップ判定・取得・書き込みを順に実行し、
// 1件の失敗が実行全体を止めないよう隔離する。
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/pelotonexport/internal/model"
	"github.com/hitoshi/pelotonexport/internal/naming"
	"github.com/hitoshi/pelotonexport/internal/output"
)

const (
	progressAuthenticated = 5.0
	progressListed        = 10.0
	progressDone          = 100.0
)

// APIClient はPeloton APIへの呼び出し。peloton.Clientが実装する。
type APIClient interface {
	Authenticate(ctx context.Context, creds model.Credentials) (model.Session, error)
	ListWorkouts(ctx context.Context, session model.Session) ([]model.WorkoutSummary, error)
	FetchMetrics(ctx context.Context, session model.Session, workoutID string) (*model.MetricsDocument, error)
	FetchWorkoutDetails(ctx context.Context, session model.Session, workoutID string) (json.RawMessage, error)
}

// Waiter はワークアウト間の待機。throttle.Throttleが実装する。
type Waiter interface {
	Wait(ctx context.Context) error
}

// EventSink はLogEventの受け取り先。
type EventSink interface {
	Emit(ev model.LogEvent)
}

// Catalog は実行とワークアウトの記録先。repository.ExportRepositoryが実装する。
type Catalog interface {
	StartRun(ctx context.Context, run model.RunRecord) error
	FinishRun(ctx context.Context, run model.RunRecord) error
	RecordExport(ctx context.Context, rec model.ExportRecord) error
}

// Recorder は処理結果のメトリクス記録先。metrics.Collectorが実装する。
type Recorder interface {
	RecordWorkoutOutcome(outcome model.ExportOutcome)
	RecordRun(state model.RunState, duration time.Duration)
}

// Options は1回の実行の設定。
type Options struct {
	OutputDir     string
	Overwrite     bool
	ExportDetails bool
	SaveRawJSON   bool
}

// Result は実行結果の集計。
type Result struct {
	RunID      string
	State      model.RunState
	Listed     int
	Exported   int
	Skipped    int
	Failed     int
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration は実行にかかった時間を返す。
func (r *Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r *Result) record(outputDir string) model.RunRecord {
	rec := model.RunRecord{
		ID:        r.RunID,
		State:     r.State,
		OutputDir: outputDir,
		Listed:    r.Listed,
		Exported:  r.Exported,
		Skipped:   r.Skipped,
		Failed:    r.Failed,
		StartedAt: r.StartedAt,
	}
	if !r.FinishedAt.IsZero() {
		finished := r.FinishedAt
		rec.FinishedAt = &finished
	}
	return rec
}

// Orchestrator はエクスポート処理を順に実行する。
// 同時に処理するワークアウトは常に1件のみ。
type Orchestrator struct {
	client    APIClient
	throttle  Waiter
	sink      EventSink
	catalog   Catalog
	recorder  Recorder
	sanitizer output.TextSanitizer
	logger    *slog.Logger
	newID     func() string
	now       func() time.Time
}

// NewOrchestrator はOrchestratorの新しいインスタンスを生成する。
// catalogとrecorderはnilを許容する。
func NewOrchestrator(
	client APIClient,
	throttle Waiter,
	sink EventSink,
	catalog Catalog,
	recorder Recorder,
	sanitizer output.TextSanitizer,
	logger *slog.Logger,
) *Orchestrator {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Orchestrator{
		client:    client,
		throttle:  throttle,
		sink:      sink,
		catalog:   catalog,
		recorder:  recorder,
		sanitizer: sanitizer,
		logger:    logger,
		newID:     uuid.NewString,
		now:       time.Now,
	}
}

// Run は認証から全ワークアウトの出力までを実行する。
// 認証または一覧取得の失敗、コンテキストのキャンセルではエラーを返す。
// ワークアウト単位の失敗はイベントとして通知し、Resultの状態に反映する。
func (o *Orchestrator) Run(ctx context.Context, creds model.Credentials, opts Options) (*Result, error) {
	r := &run{
		o:    o,
		opts: opts,
		res:  &Result{RunID: o.newID(), StartedAt: o.now()},
	}
	o.logger.Info("エクスポートを開始します",
		slog.String("run_id", r.res.RunID),
		slog.String("output_dir", opts.OutputDir),
		slog.Bool("overwrite", opts.Overwrite),
		slog.Bool("export_details", opts.ExportDetails),
	)
	r.startCatalog(ctx)

	r.info(model.EventAuthStarted, "Pelotonにログインしています", nil, "")
	session, err := o.client.Authenticate(ctx, creds)
	if err != nil {
		return r.abort(ctx, model.StateAbortedDuringAuth, "ログインに失敗しました", err)
	}
	r.progress = progressAuthenticated
	r.info(model.EventAuthSucceeded, "ログインしました", nil, "")

	r.info(model.EventListingStarted, "ワークアウト一覧を取得しています", nil, "")
	workouts, err := o.client.ListWorkouts(ctx, session)
	if err != nil {
		return r.abort(ctx, model.StateAbortedDuringListing, "ワークアウト一覧の取得に失敗しました", err)
	}
	r.res.Listed = len(workouts)
	r.progress = progressListed
	r.info(model.EventListingCompleted, fmt.Sprintf("%d件のワークアウトが見つかりました", len(workouts)), nil, "")

	var step float64
	if len(workouts) > 0 {
		step = (progressDone - progressListed) / float64(len(workouts))
	}
	// 1件あたりの出力ファイル数で進捗の刻みを分ける
	r.itemStep = step
	if opts.ExportDetails {
		r.itemStep = step / 2
	}

	for i, w := range workouts {
		if err := ctx.Err(); err != nil {
			return r.abort(ctx, model.StateInterrupted, "エクスポートが中断されました", err)
		}
		r.itemDone = progressListed + step*float64(i+1)

		remote, err := r.exportWorkout(ctx, session, w)
		if err != nil {
			return r.abort(ctx, model.StateInterrupted, "エクスポートが中断されました", err)
		}
		r.progress = r.itemDone
		if remote {
			if err := o.throttle.Wait(ctx); err != nil {
				return r.abort(ctx, model.StateInterrupted, "エクスポートが中断されました", err)
			}
		}
	}

	return r.complete(ctx), nil
}

// run は1回の実行の状態を保持する。
type run struct {
	o        *Orchestrator
	opts     Options
	res      *Result
	progress float64
	// itemDone は処理中のワークアウトを終えた時点の進捗。
	itemDone float64
	// itemStep は出力ファイル1つ分の進捗。
	itemStep float64
}

// emit はイベントに進捗を付けて通知する。
// 進捗はファイル単位の結果イベントでのみ進め、取得中や書き込み中のイベントは処理前の値を持つ。
func (r *run) emit(ev model.LogEvent) {
	switch ev.Kind {
	case model.EventItemWritten, model.EventItemSkipped:
		r.progress = math.Min(r.progress+r.itemStep, r.itemDone)
	case model.EventItemFailed:
		r.progress = r.itemDone
	}
	ev.Time = r.o.now()
	ev.RunID = r.res.RunID
	ev.Progress = r.progress
	r.o.sink.Emit(ev)
}

func (r *run) info(kind model.EventKind, msg string, ref *model.WorkoutRef, path string) {
	r.emit(model.LogEvent{
		Severity: model.SeverityInformation,
		Kind:     kind,
		Message:  msg,
		Workout:  ref,
		Path:     path,
	})
}

// exportWorkout は1件のワークアウトを処理する。
// remoteはAPI呼び出しを行ったかどうか。errはキャンセルによる中断時のみ返す。
func (r *run) exportWorkout(ctx context.Context, session model.Session, w model.WorkoutSummary) (remote bool, err error) {
	base := naming.BaseName(w)
	ref := w.Ref()
	rec := model.ExportRecord{
		WorkoutID:   w.ID,
		RunID:       r.res.RunID,
		Title:       w.Title,
		CreatedAt:   w.CreatedTime(),
		Discipline:  w.FitnessDiscipline,
		MetricsPath: filepath.Join(r.opts.OutputDir, naming.MetricsCSVName(base)),
	}

	wrote := false
	if !r.opts.Overwrite && output.Exists(rec.MetricsPath) {
		r.info(model.EventItemSkipped, "出力済みのためスキップしました", ref, rec.MetricsPath)
	} else {
		remote = true
		if err := r.exportMetrics(ctx, session, w.ID, ref, base, rec.MetricsPath); err != nil {
			return remote, r.fail(ctx, ref, rec, err)
		}
		wrote = true
	}

	if r.opts.ExportDetails {
		rec.DetailsPath = filepath.Join(r.opts.OutputDir, naming.DetailsCSVName(base))
		if !r.opts.Overwrite && output.Exists(rec.DetailsPath) {
			r.info(model.EventItemSkipped, "出力済みのためスキップしました", ref, rec.DetailsPath)
		} else {
			if remote {
				if err := r.o.throttle.Wait(ctx); err != nil {
					return remote, err
				}
			}
			remote = true
			if err := r.exportDetails(ctx, session, w.ID, ref, base, rec.DetailsPath); err != nil {
				return remote, r.fail(ctx, ref, rec, err)
			}
			wrote = true
		}
	}

	if wrote {
		rec.Outcome = model.OutcomeExported
		r.res.Exported++
	} else {
		rec.Outcome = model.OutcomeSkipped
		r.res.Skipped++
	}
	r.recordExport(ctx, rec)
	return remote, nil
}

func (r *run) exportMetrics(ctx context.Context, session model.Session, id string, ref *model.WorkoutRef, base, path string) error {
	r.info(model.EventItemFetching, "パフォーマンスデータを取得しています", ref, "")
	doc, err := r.o.client.FetchMetrics(ctx, session, id)
	if err != nil {
		return err
	}
	if r.opts.SaveRawJSON {
		if err := output.WriteRawJSON(doc.Raw, filepath.Join(r.opts.OutputDir, naming.MetricsJSONName(base))); err != nil {
			return err
		}
	}
	r.info(model.EventItemWriting, "メトリクスCSVを書き込んでいます", ref, path)
	if err := output.WriteMetricsCSV(doc, path); err != nil {
		return err
	}
	r.info(model.EventItemWritten, "メトリクスCSVを書き込みました", ref, path)
	return nil
}

func (r *run) exportDetails(ctx context.Context, session model.Session, id string, ref *model.WorkoutRef, base, path string) error {
	r.info(model.EventItemFetching, "ワークアウト詳細を取得しています", ref, "")
	raw, err := r.o.client.FetchWorkoutDetails(ctx, session, id)
	if err != nil {
		return err
	}
	if r.opts.SaveRawJSON {
		if err := output.WriteRawJSON(raw, filepath.Join(r.opts.OutputDir, naming.DetailsJSONName(base))); err != nil {
			return err
		}
	}
	r.info(model.EventItemWriting, "詳細CSVを書き込んでいます", ref, path)
	if err := output.WriteDetailsCSV(raw, path, r.o.sanitizer); err != nil {
		return err
	}
	r.info(model.EventItemWritten, "詳細CSVを書き込みました", ref, path)
	return nil
}

// fail はワークアウト単位の失敗を記録する。
// キャンセルが原因の場合は中断として呼び出し元へ返す。
func (r *run) fail(ctx context.Context, ref *model.WorkoutRef, rec model.ExportRecord, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	r.res.Failed++
	rec.Outcome = model.OutcomeFailed
	rec.Error = err.Error()

	msg := fmt.Sprintf("ワークアウト「%s」（%s）のエクスポートに失敗しました",
		ref.Title, ref.CreatedAt.Format("2006-01-02 15:04"))
	if hint := model.Remediation(err); hint != "" {
		msg += " " + hint
	}
	r.emit(model.LogEvent{
		Severity: model.SeverityError,
		Kind:     model.EventItemFailed,
		Message:  msg,
		Err:      err,
		Workout:  ref,
	})
	r.recordExport(ctx, rec)
	return nil
}

func (r *run) abort(ctx context.Context, state model.RunState, msg string, err error) (*Result, error) {
	if ctx.Err() != nil {
		state = model.StateInterrupted
	}
	r.res.State = state
	r.res.FinishedAt = r.o.now()

	text := msg
	if hint := model.Remediation(err); hint != "" {
		text += " " + hint
	}
	r.emit(model.LogEvent{
		Severity: model.SeverityError,
		Kind:     model.EventRunAborted,
		Message:  text,
		Err:      err,
	})
	r.finish(ctx)
	return r.res, fmt.Errorf("%s: %w", msg, err)
}

func (r *run) complete(ctx context.Context) *Result {
	r.res.State = model.StateCompletedFully
	if r.res.Failed > 0 {
		r.res.State = model.StateCompletedWithSkippedItems
	}
	r.res.FinishedAt = r.o.now()
	r.progress = progressDone
	r.info(model.EventRunCompleted, fmt.Sprintf("エクスポートが完了しました（出力 %d件、スキップ %d件、失敗 %d件）",
		r.res.Exported, r.res.Skipped, r.res.Failed), nil, "")
	r.finish(ctx)
	return r.res
}

func (r *run) finish(ctx context.Context) {
	r.o.recorder.RecordRun(r.res.State, r.res.Duration())
	r.o.logger.Info("エクスポートが終了しました",
		slog.String("run_id", r.res.RunID),
		slog.String("state", string(r.res.State)),
		slog.Int("listed", r.res.Listed),
		slog.Int("exported", r.res.Exported),
		slog.Int("skipped", r.res.Skipped),
		slog.Int("failed", r.res.Failed),
		slog.Float64("duration_ms", float64(r.res.Duration().Milliseconds())),
	)
	if r.o.catalog == nil {
		return
	}
	if err := r.o.catalog.FinishRun(context.WithoutCancel(ctx), r.res.record(r.opts.OutputDir)); err != nil {
		r.o.logger.Warn("実行結果のカタログ記録に失敗しました",
			slog.String("run_id", r.res.RunID),
			slog.String("error", err.Error()),
		)
	}
}

func (r *run) startCatalog(ctx context.Context) {
	if r.o.catalog == nil {
		return
	}
	if err := r.o.catalog.StartRun(ctx, r.res.record(r.opts.OutputDir)); err != nil {
		r.o.logger.Warn("実行開始のカタログ記録に失敗しました",
			slog.String("run_id", r.res.RunID),
			slog.String("error", err.Error()),
		)
	}
}

func (r *run) recordExport(ctx context.Context, rec model.ExportRecord) {
	r.o.recorder.RecordWorkoutOutcome(rec.Outcome)
	if r.o.catalog == nil {
		return
	}
	rec.RecordedAt = r.o.now()
	if err := r.o.catalog.RecordExport(context.WithoutCancel(ctx), rec); err != nil {
		r.o.logger.Warn("ワークアウトのカタログ記録に失敗しました",
			slog.String("run_id", rec.RunID),
			slog.String("workout_id", rec.WorkoutID),
			slog.String("error", err.Error()),
		)
	}
}

type nopRecorder struct{}

func (nopRecorder) RecordWorkoutOutcome(model.ExportOutcome) {}
func (nopRecorder) RecordRun(model.RunState, time.Duration)   {}
