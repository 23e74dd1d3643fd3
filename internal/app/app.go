// Package app はコマンドラインからの起動と依存関係のワイヤリングを行う。
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/pelotonexport/internal/config"
	"github.com/hitoshi/pelotonexport/internal/database"
	"github.com/hitoshi/pelotonexport/internal/eventlog"
	"github.com/hitoshi/pelotonexport/internal/handler"
	"github.com/hitoshi/pelotonexport/internal/logger"
	"github.com/hitoshi/pelotonexport/internal/metrics"
	"github.com/hitoshi/pelotonexport/internal/middleware"
	"github.com/hitoshi/pelotonexport/internal/model"
	"github.com/hitoshi/pelotonexport/internal/output"
	"github.com/hitoshi/pelotonexport/internal/peloton"
	"github.com/hitoshi/pelotonexport/internal/pipeline"
	"github.com/hitoshi/pelotonexport/internal/repository"
	"github.com/hitoshi/pelotonexport/internal/security"
	"github.com/hitoshi/pelotonexport/internal/throttle"
)

// CredentialCompleter は不足している資格情報を補う。prompt.CredentialPrompterが実装する。
type CredentialCompleter interface {
	Complete(ctx context.Context, preset model.Credentials) (model.Credentials, error)
}

// Env はコマンドの実行環境。
type Env struct {
	Stdin  io.Reader
	Stdout io.Writer
	// Stderr にはJSON構造化ログとエラーを出力する。
	Stderr io.Writer

	// Interactive は標準出力が端末であることを示す。進捗バーの表示に使う。
	Interactive bool

	// Prompter がnilの場合、資格情報は設定と環境変数からのみ取得する。
	Prompter CredentialCompleter

	// HTTPClient がnilの場合はsafeurlで構築したHTTPS専用クライアントを使う。
	HTTPClient *http.Client
}

// Main はコマンドを実行し、プロセスの終了コードを返す。
// 失敗時はエラーと対処方法をStderrに出力する。
func Main(ctx context.Context, env *Env, args []string) int {
	root := newRootCmd(env)
	root.SetArgs(args)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(env.Stderr, "error: %v\n", err)
		if remediation := model.Remediation(err); remediation != "" {
			fmt.Fprintln(env.Stderr, remediation)
		}
		return 1
	}
	return 0
}

// runExport はエクスポートを1回実行する。
func runExport(ctx context.Context, env *Env, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	log, err := newLogger(env, cfg)
	if err != nil {
		return err
	}

	if err := output.CheckDirectory(cfg.OutputDir); err != nil {
		return fmt.Errorf("出力先を確認してください: %w", err)
	}

	creds, err := resolveCredentials(ctx, env, cfg)
	if err != nil {
		return err
	}

	// 1. メトリクスと待機
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)
	thr := throttle.New(cfg.ThrottleInterval, collector)

	// 2. APIクライアント
	httpClient := env.HTTPClient
	if httpClient == nil {
		if err := security.ValidateBaseURL(cfg.APIBaseURL); err != nil {
			return err
		}
		httpClient = security.NewAPIClient(cfg.HTTPTimeout)
	}
	client := peloton.NewClient(httpClient, cfg.APIBaseURL, thr, collector, log)
	sanitizer := security.NewTextSanitizer()

	// 3. カタログ
	var catalog pipeline.Catalog
	if cfg.CatalogURL != "" {
		repo, closeCatalog, err := openCatalog(ctx, cfg.CatalogURL, sanitizer, log)
		if err != nil {
			return err
		}
		defer closeCatalog()
		catalog = repo
	}

	// 4. イベントの出力先
	tracker := eventlog.NewTracker()
	sink := eventlog.Multi{
		eventlog.NewSlogSink(log),
		eventlog.NewConsole(env.Stdout, env.Interactive),
		tracker,
	}

	// 5. ステータスサーバー
	if cfg.MetricsAddr != "" {
		srv, err := startStatusServer(cfg.MetricsAddr, tracker, registry, log)
		if err != nil {
			return err
		}
		defer srv.shutdown()
	}

	orchestrator := pipeline.NewOrchestrator(client, thr, sink, catalog, collector, sanitizer, log)
	result, runErr := orchestrator.Run(ctx, creds, pipeline.Options{
		OutputDir:     cfg.OutputDir,
		Overwrite:     cfg.Overwrite,
		ExportDetails: cfg.ExportDetails,
		SaveRawJSON:   cfg.SaveRawJSON,
	})

	if cfg.MetricsTextfile != "" {
		if err := metrics.WriteTextfile(registry, cfg.MetricsTextfile); err != nil {
			log.Warn("メトリクスファイルの書き込みに失敗しました",
				slog.String("path", cfg.MetricsTextfile),
				slog.String("error", err.Error()),
			)
		}
	}

	if result != nil {
		fmt.Fprintf(env.Stdout, "\n%s: %d listed, %d exported, %d skipped, %d failed (%s)\n",
			result.State, result.Listed, result.Exported, result.Skipped, result.Failed,
			result.Duration().Round(time.Millisecond))
	}
	return runErr
}

func newLogger(env *Env, cfg *config.Config) (*slog.Logger, error) {
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return logger.Setup(env.Stderr, level), nil
}

// resolveCredentials は設定の資格情報を使い、不足分は対話的に入力させる。
func resolveCredentials(ctx context.Context, env *Env, cfg *config.Config) (model.Credentials, error) {
	creds := model.Credentials{UsernameOrEmail: cfg.Username, Password: cfg.Password}
	if creds.UsernameOrEmail != "" && creds.Password != "" {
		return creds, nil
	}
	if env.Prompter == nil {
		return model.Credentials{}, errors.New("資格情報がありません: PELOTON_USERNAME と PELOTON_PASSWORD を設定するか、端末から実行してください")
	}
	return env.Prompter.Complete(ctx, creds)
}

// openCatalog はカタログにマイグレーションを適用して開く。
func openCatalog(ctx context.Context, rawURL string, sanitizer repository.TextSanitizer, log *slog.Logger) (*repository.SQLExportRepo, func(), error) {
	target, err := database.ParseCatalogURL(rawURL)
	if err != nil {
		return nil, nil, err
	}
	if err := database.RunMigrations(target); err != nil {
		return nil, nil, fmt.Errorf("カタログのマイグレーションに失敗しました: %w", err)
	}

	db, err := database.Open(target)
	if err != nil {
		return nil, nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("カタログに接続できません: %w", err)
	}

	log.Info("カタログを開きました", slog.String("catalog", target.Redacted()))
	return repository.NewSQLExportRepo(db, target.Dialect, sanitizer), func() { db.Close() }, nil
}

// runCatalogMigrate はカタログの未適用マイグレーションをすべて適用する。
func runCatalogMigrate(env *Env, cfg *config.Config) error {
	log, err := newLogger(env, cfg)
	if err != nil {
		return err
	}
	target, err := catalogTarget(cfg)
	if err != nil {
		return err
	}

	log.Info("running catalog migrations", slog.String("catalog", target.Redacted()))
	if err := database.RunMigrations(target); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	version, err := database.Version(target)
	if err != nil {
		return err
	}

	log.Info("catalog migrations completed successfully", slog.Uint64("version", uint64(version)))
	fmt.Fprintf(env.Stdout, "catalog %s is at version %d\n", target.Redacted(), version)
	return nil
}

// runCatalogList は記録済みのワークアウトを新しい順に表示する。
func runCatalogList(ctx context.Context, env *Env, cfg *config.Config, limit int) error {
	log, err := newLogger(env, cfg)
	if err != nil {
		return err
	}
	if _, err := catalogTarget(cfg); err != nil {
		return err
	}

	repo, closeCatalog, err := openCatalog(ctx, cfg.CatalogURL, nil, log)
	if err != nil {
		return err
	}
	defer closeCatalog()

	records, err := repo.ListExports(ctx, limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(env.Stdout, "No workouts recorded.")
		return nil
	}

	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []string{
			rec.CreatedAt.Format("2006-01-02 15:04"),
			rec.Title,
			rec.Discipline,
			string(rec.Outcome),
			rec.MetricsPath,
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("Created", "Title", "Discipline", "Outcome", "Metrics CSV").
		Rows(rows...)
	fmt.Fprintln(env.Stdout, t.Render())
	fmt.Fprintln(env.Stdout, strconv.Itoa(len(records))+" workout(s)")
	return nil
}

func catalogTarget(cfg *config.Config) (database.Target, error) {
	if cfg.CatalogURL == "" {
		return database.Target{}, errors.New("catalog URL is required (--catalog or PELOTON_CATALOG_URL)")
	}
	return database.ParseCatalogURL(cfg.CatalogURL)
}

// statusServer は実行中の進捗とメトリクスを公開するHTTPサーバー。
type statusServer struct {
	server  *http.Server
	addr    string
	limiter *middleware.RateLimiter
	log     *slog.Logger
	done    chan struct{}
}

// startStatusServer はステータスサーバーをバックグラウンドで起動する。
// アドレスの待ち受けに失敗した場合はエクスポートを開始せずエラーを返す。
func startStatusServer(addr string, progress handler.ProgressSource, gatherer prometheus.Gatherer, log *slog.Logger) (*statusServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("ステータスサーバーの待ち受けに失敗しました: %w", err)
	}

	limiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig(), log)
	router := handler.NewRouter(&handler.RouterDeps{
		Progress:    progress,
		Gatherer:    gatherer,
		RateLimiter: limiter,
		Logger:      log,
	})

	s := &statusServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		addr:    ln.Addr().String(),
		limiter: limiter,
		log:     log,
		done:    make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		log.Info("status server starting", slog.String("addr", ln.Addr().String()))
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	return s, nil
}

// shutdown はサーバーをグレースフルに停止する。
func (s *statusServer) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		s.log.Error("status server shutdown failed", slog.String("error", err.Error()))
	}
	<-s.done
	s.limiter.Stop()
	s.log.Info("status server stopped gracefully")
}
