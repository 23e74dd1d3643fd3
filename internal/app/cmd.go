package app

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/hitoshi/pelotonexport/internal/config"
)

// exportFlags はexportコマンドのフラグ値。
// 明示的に指定されたフラグだけが設定ファイルと環境変数の値を上書きする。
type exportFlags struct {
	out             string
	overwrite       bool
	details         bool
	saveRaw         bool
	throttle        time.Duration
	metricsAddr     string
	metricsTextfile string
}

// globalFlags は全コマンド共通のフラグ値。
type globalFlags struct {
	configPath string
	catalogURL string
}

// newRootCmd はpelotonexportのルートコマンドを生成する。
// サブコマンドなしで起動した場合はexportとして動作する。
func newRootCmd(env *Env) *cobra.Command {
	g := &globalFlags{}
	ef := &exportFlags{}

	root := &cobra.Command{
		Use:           "pelotonexport",
		Short:         "Export Peloton workout history to CSV files",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExportCmd(cmd, env, g, ef)
		},
	}
	root.SetIn(env.Stdin)
	root.SetOut(env.Stdout)
	root.SetErr(env.Stderr)

	root.PersistentFlags().StringVar(&g.configPath, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&g.catalogURL, "catalog", "", "export catalog URL (sqlite path or postgres:// URL)")
	bindExportFlags(root.Flags(), ef)

	root.AddCommand(
		newExportCmd(env, g),
		newCatalogCmd(env, g),
	)
	return root
}

func newExportCmd(env *Env, g *globalFlags) *cobra.Command {
	ef := &exportFlags{}
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Download performance graphs for every workout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExportCmd(cmd, env, g, ef)
		},
	}
	bindExportFlags(cmd.Flags(), ef)
	return cmd
}

func bindExportFlags(fs *pflag.FlagSet, ef *exportFlags) {
	fs.StringVarP(&ef.out, "out", "o", "", "output directory (must exist)")
	fs.BoolVar(&ef.overwrite, "overwrite", false, "re-download workouts whose CSV already exists")
	fs.BoolVar(&ef.details, "details", false, "also export workout details")
	fs.BoolVar(&ef.saveRaw, "save-raw", false, "archive raw JSON responses next to the CSV files")
	fs.DurationVar(&ef.throttle, "throttle", config.DefaultThrottleInterval, "pause between remote calls")
	fs.StringVar(&ef.metricsAddr, "metrics-addr", "", "serve /health, /status and /metrics on this address during the run")
	fs.StringVar(&ef.metricsTextfile, "metrics-textfile", "", "write Prometheus metrics to this file after the run")
}

// applyExportFlags は明示的に指定されたフラグをcfgに反映する。
func applyExportFlags(cfg *config.Config, fs *pflag.FlagSet, ef *exportFlags) {
	if fs.Changed("out") {
		cfg.OutputDir = ef.out
	}
	if fs.Changed("overwrite") {
		cfg.Overwrite = ef.overwrite
	}
	if fs.Changed("details") {
		cfg.ExportDetails = ef.details
	}
	if fs.Changed("save-raw") {
		cfg.SaveRawJSON = ef.saveRaw
	}
	if fs.Changed("throttle") {
		cfg.ThrottleInterval = ef.throttle
	}
	if fs.Changed("metrics-addr") {
		cfg.MetricsAddr = ef.metricsAddr
	}
	if fs.Changed("metrics-textfile") {
		cfg.MetricsTextfile = ef.metricsTextfile
	}
}

func newCatalogCmd(env *Env, g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the export catalog",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recorded workouts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, g)
			if err != nil {
				return err
			}
			return runCatalogList(cmd.Context(), env, cfg, limit)
		},
	}
	list.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of workouts to show")

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending catalog migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, g)
			if err != nil {
				return err
			}
			return runCatalogMigrate(env, cfg)
		},
	}

	cmd.AddCommand(list, migrate)
	return cmd
}

func runExportCmd(cmd *cobra.Command, env *Env, g *globalFlags, ef *exportFlags) error {
	cfg, err := loadConfig(cmd, g)
	if err != nil {
		return err
	}
	applyExportFlags(cfg, cmd.Flags(), ef)
	return runExport(cmd.Context(), env, cfg)
}

// loadConfig は設定を読み込み、共通フラグを反映する。
func loadConfig(cmd *cobra.Command, g *globalFlags) (*config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("catalog") {
		cfg.CatalogURL = g.catalogURL
	}
	return cfg, nil
}
