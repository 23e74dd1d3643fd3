package app

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/pelotonexport/internal/config"
)

func TestApplyExportFlags_OnlyChangedFlagsOverride(t *testing.T) {
	cfg := config.Default()
	cfg.OutputDir = "/from-env"
	cfg.Overwrite = true
	cfg.ThrottleInterval = 10 * time.Second

	ef := &exportFlags{}
	fs := pflag.NewFlagSet("export", pflag.ContinueOnError)
	bindExportFlags(fs, ef)
	require.NoError(t, fs.Parse([]string{"--details", "--throttle", "1s"}))

	applyExportFlags(cfg, fs, ef)

	assert.Equal(t, "/from-env", cfg.OutputDir, "未指定のフラグは上書きしない")
	assert.True(t, cfg.Overwrite, "未指定のboolフラグは既定値falseで上書きしない")
	assert.True(t, cfg.ExportDetails)
	assert.Equal(t, time.Second, cfg.ThrottleInterval)
}

func TestApplyExportFlags_AllFlags(t *testing.T) {
	cfg := config.Default()
	ef := &exportFlags{}
	fs := pflag.NewFlagSet("export", pflag.ContinueOnError)
	bindExportFlags(fs, ef)
	require.NoError(t, fs.Parse([]string{
		"-o", "/out", "--overwrite", "--save-raw",
		"--metrics-addr", ":9090", "--metrics-textfile", "/tmp/x.prom",
	}))

	applyExportFlags(cfg, fs, ef)

	assert.Equal(t, "/out", cfg.OutputDir)
	assert.True(t, cfg.Overwrite)
	assert.True(t, cfg.SaveRawJSON)
	assert.Equal(t, ":9090", cfg.MetricsAddr)
	assert.Equal(t, "/tmp/x.prom", cfg.MetricsTextfile)
	assert.Equal(t, config.DefaultThrottleInterval, cfg.ThrottleInterval)
}

func TestNewRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd(&Env{})

	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["export"])
	assert.True(t, names["catalog"])

	catalog, _, err := root.Find([]string{"catalog", "list"})
	require.NoError(t, err)
	assert.NotNil(t, catalog.Flags().Lookup("limit"))
	assert.NotNil(t, root.PersistentFlags().Lookup("catalog"))
}
