// Package peloton はPeloton APIのクライアントを提供する。
// ログイン、ワークアウト一覧のページング取得、パフォーマンスグラフと詳細の取得を含む。
// 同時に発行するリクエストは常に1件のみ。
package peloton

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/pelotonexport/internal/model"
)

const (
	// DefaultBaseURL はPeloton APIのベースURL。
	DefaultBaseURL = "https://api.onepeloton.com"

	// maxBodySize はレスポンスボディの最大読み取りサイズ（32MB）。
	maxBodySize = 32 << 20

	sessionCookieName = "peloton_session_id"
	membersOrigin     = "https://members.onepeloton.com"
	userAgent         = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Waiter はリモート呼び出しの間の待機を提供する。throttle.Throttleが実装する。
type Waiter interface {
	Wait(ctx context.Context) error
}

// RequestRecorder はリクエスト結果の記録先。metrics.Collectorが実装する。
type RequestRecorder interface {
	RecordRequest(endpoint string, statusCode int, duration time.Duration)
	RecordRequestFailure(endpoint string)
	RecordPageFetched()
}

// Client はPeloton APIのクライアント。
type Client struct {
	httpClient *http.Client
	baseURL    string
	throttle   Waiter
	recorder   RequestRecorder
	logger     *slog.Logger
}

// NewClient はClientの新しいインスタンスを生成する。
// recorderがnilの場合は記録しない。
func NewClient(httpClient *http.Client, baseURL string, throttle Waiter, recorder RequestRecorder, logger *slog.Logger) *Client {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		throttle:   throttle,
		recorder:   recorder,
		logger:     logger,
	}
}

// apiRequest は1回のAPI呼び出しの内容。
type apiRequest struct {
	method   string
	path     string
	query    url.Values
	session  *model.Session
	body     any
	endpoint string // ログとメトリクスのラベル
}

// newRequest はapiRequestからHTTPリクエストを組み立てる。
// セッションがある場合はCookieとブラウザ相当のヘッダーを付与する。
func (c *Client) newRequest(ctx context.Context, r apiRequest) (*http.Request, error) {
	u := c.baseURL + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		data, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("リクエストボディのエンコードに失敗しました: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u, body)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Peloton-Platform", "web")
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if r.session != nil {
		req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: r.session.SessionID})
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")
		req.Header.Set("Origin", membersOrigin)
		req.Header.Set("Referer", membersOrigin+"/profile/workouts")
		req.Header.Set("X-Requested-With", "XmlHttpRequest")
	}

	return req, nil
}

// do はリクエストを実行し、2xxの場合のみレスポンスボディを返す。
// 401はAuthUnauthorized、その他の非成功ステータスはAuthProtocolのエラーになる。
func (c *Client) do(ctx context.Context, r apiRequest) ([]byte, error) {
	req, err := c.newRequest(ctx, r)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recorder.RecordRequestFailure(r.endpoint)
		c.logger.Error("Peloton APIの呼び出しに失敗しました",
			slog.String("endpoint", r.endpoint),
			slog.String("error", err.Error()),
		)
		return nil, &model.NetworkError{Op: r.method + " " + r.endpoint, URL: r.path, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	duration := time.Since(start)
	c.recorder.RecordRequest(r.endpoint, resp.StatusCode, duration)
	if err != nil {
		c.logger.Error("レスポンスボディの読み取りに失敗しました",
			slog.String("endpoint", r.endpoint),
			slog.String("error", err.Error()),
		)
		return nil, &model.NetworkError{Op: "read " + r.endpoint, URL: r.path, Err: err}
	}

	c.logger.Debug("Peloton APIの応答を受信しました",
		slog.String("endpoint", r.endpoint),
		slog.Int("http_status", resp.StatusCode),
		slog.Int("length", len(body)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, &model.AuthenticationError{
			Kind:        model.AuthUnauthorized,
			StatusCode:  resp.StatusCode,
			Description: describeStatus(resp, body),
			Endpoint:    r.endpoint,
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("Peloton APIがエラーステータスを返しました",
			slog.String("endpoint", r.endpoint),
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, &model.AuthenticationError{
			Kind:        model.AuthProtocol,
			StatusCode:  resp.StatusCode,
			Description: describeStatus(resp, body),
			Endpoint:    r.endpoint,
		}
	}

	return body, nil
}

// errorBody はPeloton APIのエラーレスポンス。
type errorBody struct {
	Message string `json:"message"`
}

// describeStatus はエラーレスポンスの説明文を返す。
// JSONのmessageがあればそれを、なければHTTPステータステキストを使う。
func describeStatus(resp *http.Response, body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil && eb.Message != "" {
		return eb.Message
	}
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return resp.Status
}

type nopRecorder struct{}

func (nopRecorder) RecordRequest(string, int, time.Duration) {}
func (nopRecorder) RecordRequestFailure(string)              {}
func (nopRecorder) RecordPageFetched()                       {}

var errInvalidJSON = errors.New("JSONとして解釈できません")
