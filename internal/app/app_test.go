package app

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/pelotonexport/internal/eventlog"
	"github.com/hitoshi/pelotonexport/internal/model"
)

const metricsFile = "2019-07-03_18-05_Ride_A_Metrics.csv"

// fakePeloton はPeloton APIを模したTLSサーバー。
type fakePeloton struct {
	server       *httptest.Server
	unauthorized bool
	graphCalls   atomic.Int32
}

func newFakePeloton(t *testing.T) *fakePeloton {
	t.Helper()
	f := &fakePeloton{}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		if f.unauthorized {
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"message":"Login failed"}`)
			return
		}
		io.WriteString(w, `{"session_id":"sess-1234567","user_id":"uid-1"}`)
	})
	mux.HandleFunc("GET /api/user/uid-1/workouts", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"data":[{"id":"w1","created_at":1551981900,"fitness_discipline":"cycling","ride":{"title":"Ride A"}}],"show_next":false}`)
	})
	mux.HandleFunc("GET /api/workout/w1/performance_graph", func(w http.ResponseWriter, r *http.Request) {
		f.graphCalls.Add(1)
		io.WriteString(w, `{"seconds_since_pedaling_start":[0,5,10],"metrics":[{"slug":"output","display_name":"Output","values":[100,120,130]}]}`)
	})
	mux.HandleFunc("GET /api/workout/w1", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"id":"w1","total_work":1000,"ride":{"title":"<b>Ride A</b>"}}`)
	})

	f.server = httptest.NewTLSServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

// clearEnv は外部の環境変数がテストに混入しないようにする。
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PELOTON_USERNAME", "PELOTON_PASSWORD", "PELOTON_OUTPUT_DIR", "PELOTON_OVERWRITE",
		"PELOTON_EXPORT_DETAILS", "PELOTON_SAVE_RAW", "PELOTON_API_BASE_URL",
		"PELOTON_THROTTLE_INTERVAL", "PELOTON_HTTP_TIMEOUT", "PELOTON_CATALOG_URL",
		"PELOTON_METRICS_ADDR", "PELOTON_METRICS_TEXTFILE", "LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
}

type testEnv struct {
	*Env
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

func newTestEnv(t *testing.T, api *fakePeloton) *testEnv {
	t.Helper()
	clearEnv(t)

	te := &testEnv{stdout: &bytes.Buffer{}, stderr: &bytes.Buffer{}}
	te.Env = &Env{
		Stdin:  strings.NewReader(""),
		Stdout: te.stdout,
		Stderr: te.stderr,
	}
	if api != nil {
		te.HTTPClient = api.server.Client()
		t.Setenv("PELOTON_API_BASE_URL", api.server.URL)
		t.Setenv("PELOTON_USERNAME", "rider@example.com")
		t.Setenv("PELOTON_PASSWORD", "secret")
	}
	return te
}

type fakePrompter struct {
	called bool
	preset model.Credentials
}

func (p *fakePrompter) Complete(ctx context.Context, preset model.Credentials) (model.Credentials, error) {
	p.called = true
	p.preset = preset
	return model.Credentials{UsernameOrEmail: preset.UsernameOrEmail, Password: "typed"}, nil
}

func TestMain_ExportWritesMetricsCSV(t *testing.T) {
	api := newFakePeloton(t)
	env := newTestEnv(t, api)
	dir := t.TempDir()

	code := Main(context.Background(), env.Env, []string{"export", "--out", dir, "--throttle", "0"})
	require.Equal(t, 0, code, "stderr: %s", env.stderr.String())

	data, err := os.ReadFile(filepath.Join(dir, metricsFile))
	require.NoError(t, err)
	assert.Equal(t, "elapsed_seconds,output\n0,100\n5,120\n10,130\n", string(data))

	assert.Contains(t, env.stdout.String(), "CompletedFully: 1 listed, 1 exported, 0 skipped, 0 failed")
	assert.NotContains(t, env.stderr.String(), "secret", "パスワードがログに出力されてはならない")
}

func TestMain_RootCommandRunsExport(t *testing.T) {
	api := newFakePeloton(t)
	env := newTestEnv(t, api)
	dir := t.TempDir()
	t.Setenv("PELOTON_OUTPUT_DIR", dir)
	t.Setenv("PELOTON_THROTTLE_INTERVAL", "0s")

	code := Main(context.Background(), env.Env, nil)
	require.Equal(t, 0, code, "stderr: %s", env.stderr.String())
	assert.FileExists(t, filepath.Join(dir, metricsFile))
}

func TestMain_SecondRunSkipsExisting(t *testing.T) {
	api := newFakePeloton(t)
	env := newTestEnv(t, api)
	dir := t.TempDir()
	args := []string{"export", "--out", dir, "--throttle", "0"}

	require.Equal(t, 0, Main(context.Background(), env.Env, args))
	require.Equal(t, 0, Main(context.Background(), env.Env, args))

	assert.Equal(t, int32(1), api.graphCalls.Load(), "既存のCSVがあるワークアウトは再取得しない")
	assert.Contains(t, env.stdout.String(), "0 exported, 1 skipped")
}

func TestMain_DetailsRawJSONCatalogAndTextfile(t *testing.T) {
	api := newFakePeloton(t)
	env := newTestEnv(t, api)
	dir := t.TempDir()
	catalogPath := filepath.Join(t.TempDir(), "catalog.db")
	textfile := filepath.Join(t.TempDir(), "pelotonexport.prom")

	code := Main(context.Background(), env.Env, []string{
		"export", "--out", dir, "--throttle", "0",
		"--details", "--save-raw",
		"--catalog", catalogPath,
		"--metrics-textfile", textfile,
	})
	require.Equal(t, 0, code, "stderr: %s", env.stderr.String())

	for _, name := range []string{
		metricsFile,
		"2019-07-03_18-05_Ride_A_Metrics.json",
		"2019-07-03_18-05_Ride_A_UserWorkoutDetails.csv",
		"2019-07-03_18-05_Ride_A_UserWorkoutDetails.json",
	} {
		assert.FileExists(t, filepath.Join(dir, name))
	}

	details, err := os.ReadFile(filepath.Join(dir, "2019-07-03_18-05_Ride_A_UserWorkoutDetails.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(details), "ride.title,Ride A", "詳細の文字列値からタグが除去されるべき")

	prom, err := os.ReadFile(textfile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `pelotonexport_workouts_total{outcome="exported"} 1`)
	assert.Contains(t, string(prom), "pelotonexport_listing_pages_total 1")

	env.stdout.Reset()
	code = Main(context.Background(), env.Env, []string{"catalog", "list", "--catalog", catalogPath})
	require.Equal(t, 0, code, "stderr: %s", env.stderr.String())
	assert.Contains(t, env.stdout.String(), "Ride A")
	assert.Contains(t, env.stdout.String(), "exported")
	assert.Contains(t, env.stdout.String(), "1 workout(s)")
}

func TestMain_UnauthorizedPrintsRemediation(t *testing.T) {
	api := newFakePeloton(t)
	api.unauthorized = true
	env := newTestEnv(t, api)

	code := Main(context.Background(), env.Env, []string{"export", "--out", t.TempDir(), "--throttle", "0"})
	assert.Equal(t, 1, code)
	assert.Contains(t, env.stderr.String(), "ユーザー名とパスワードを確認してください。")
	assert.Contains(t, env.stdout.String(), "AbortedDuringAuth")
}

func TestMain_MissingCredentialsWithoutTerminal(t *testing.T) {
	env := newTestEnv(t, nil)

	code := Main(context.Background(), env.Env, []string{"export", "--out", t.TempDir()})
	assert.Equal(t, 1, code)
	assert.Contains(t, env.stderr.String(), "PELOTON_USERNAME")
}

func TestMain_PromptsForMissingPassword(t *testing.T) {
	api := newFakePeloton(t)
	env := newTestEnv(t, api)
	t.Setenv("PELOTON_PASSWORD", "")
	prompter := &fakePrompter{}
	env.Prompter = prompter

	code := Main(context.Background(), env.Env, []string{"export", "--out", t.TempDir(), "--throttle", "0"})
	require.Equal(t, 0, code, "stderr: %s", env.stderr.String())
	assert.True(t, prompter.called)
	assert.Equal(t, "rider@example.com", prompter.preset.UsernameOrEmail)
}

func TestMain_MissingOutputDirectory(t *testing.T) {
	api := newFakePeloton(t)
	env := newTestEnv(t, api)

	code := Main(context.Background(), env.Env, []string{"export", "--out", filepath.Join(t.TempDir(), "missing")})
	assert.Equal(t, 1, code)
	assert.Contains(t, env.stderr.String(), "出力ディレクトリが存在し、書き込み可能か確認してください。")
	assert.Equal(t, int32(0), api.graphCalls.Load())
}

func TestMain_InvalidConfiguration(t *testing.T) {
	env := newTestEnv(t, nil)

	code := Main(context.Background(), env.Env, []string{"export"})
	assert.Equal(t, 1, code)
	assert.Contains(t, env.stderr.String(), "output directory is required")
}

func TestMain_ConfigFileAndFlagPrecedence(t *testing.T) {
	api := newFakePeloton(t)
	env := newTestEnv(t, api)
	fileDir := t.TempDir()
	flagDir := t.TempDir()

	cfgPath := filepath.Join(t.TempDir(), "pelotonexport.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("output_dir: "+fileDir+"\nthrottle_interval: 0s\n"), 0o600))

	code := Main(context.Background(), env.Env, []string{"export", "--config", cfgPath, "--out", flagDir})
	require.Equal(t, 0, code, "stderr: %s", env.stderr.String())

	assert.FileExists(t, filepath.Join(flagDir, metricsFile), "フラグは設定ファイルより優先される")
	assert.NoFileExists(t, filepath.Join(fileDir, metricsFile))
}

func TestMain_CatalogMigrate(t *testing.T) {
	env := newTestEnv(t, nil)
	catalogPath := filepath.Join(t.TempDir(), "catalog.db")

	code := Main(context.Background(), env.Env, []string{"catalog", "migrate", "--catalog", "sqlite://" + catalogPath})
	require.Equal(t, 0, code, "stderr: %s", env.stderr.String())
	assert.Contains(t, env.stdout.String(), "is at version 1")
}

func TestMain_CatalogListEmpty(t *testing.T) {
	env := newTestEnv(t, nil)
	t.Setenv("PELOTON_CATALOG_URL", filepath.Join(t.TempDir(), "catalog.db"))

	code := Main(context.Background(), env.Env, []string{"catalog", "list"})
	require.Equal(t, 0, code, "stderr: %s", env.stderr.String())
	assert.Contains(t, env.stdout.String(), "No workouts recorded.")
}

func TestMain_CatalogRequiresURL(t *testing.T) {
	env := newTestEnv(t, nil)

	code := Main(context.Background(), env.Env, []string{"catalog", "list"})
	assert.Equal(t, 1, code)
	assert.Contains(t, env.stderr.String(), "catalog URL is required")
}

func TestMain_UnknownCommand(t *testing.T) {
	env := newTestEnv(t, nil)
	assert.Equal(t, 1, Main(context.Background(), env.Env, []string{"import"}))
}

func TestStartStatusServer_ServesHealthAndStatus(t *testing.T) {
	tracker := eventlog.NewTracker()
	log := slog.New(slog.NewJSONHandler(io.Discard, nil))

	srv, err := startStatusServer("127.0.0.1:0", tracker, prometheus.NewRegistry(), log)
	require.NoError(t, err)
	defer srv.shutdown()

	resp, err := http.Get("http://" + srv.addr + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	resp, err = http.Get("http://" + srv.addr + "/status")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), `"phase":"idle"`)
}

func TestStartStatusServer_InvalidAddress(t *testing.T) {
	log := slog.New(slog.NewJSONHandler(io.Discard, nil))
	_, err := startStatusServer("256.0.0.1:bad", eventlog.NewTracker(), prometheus.NewRegistry(), log)
	assert.Error(t, err)
}
