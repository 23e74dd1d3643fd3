package peloton

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/hitoshi/pelotonexport/internal/model"
)

// graphEveryN はパフォーマンスグラフのサンプリング間隔（秒）。
const graphEveryN = 5

// performanceGraph は performance_graph APIのレスポンスのうち必要な部分。
type performanceGraph struct {
	SecondsSincePedalingStart []float64 `json:"seconds_since_pedaling_start"`
	Metrics                   []struct {
		Slug        string    `json:"slug"`
		DisplayName string    `json:"display_name"`
		Values      []*float64 `json:"values"`
	} `json:"metrics"`
}

// FetchMetrics は1ワークアウト分のパフォーマンスグラフを取得する。
// 各系列の長さが経過時間列と一致しない場合はDeserializationErrorを返す。
// 系列中のnullは欠測としてそのまま保持する。
func (c *Client) FetchMetrics(ctx context.Context, session model.Session, workoutID string) (*model.MetricsDocument, error) {
	body, err := c.do(ctx, apiRequest{
		method:   http.MethodGet,
		path:     "/api/workout/" + url.PathEscape(workoutID) + "/performance_graph",
		query:    url.Values{"every_n": {strconv.Itoa(graphEveryN)}},
		session:  &session,
		endpoint: "performance_graph",
	})
	if err != nil {
		return nil, err
	}

	doc, err := parsePerformanceGraph(body)
	if err != nil {
		return nil, &model.DeserializationError{What: "performance_graph " + workoutID, Err: err}
	}
	return doc, nil
}

func parsePerformanceGraph(body []byte) (*model.MetricsDocument, error) {
	var pg performanceGraph
	if err := json.Unmarshal(body, &pg); err != nil {
		return nil, err
	}
	if pg.SecondsSincePedalingStart == nil {
		return nil, errors.New("seconds_since_pedaling_start がありません")
	}

	doc := &model.MetricsDocument{
		ElapsedSeconds: pg.SecondsSincePedalingStart,
		Series:         make([]model.MetricSeries, 0, len(pg.Metrics)),
		Raw:            body,
	}
	for i, m := range pg.Metrics {
		if m.Slug == "" {
			return nil, fmt.Errorf("metrics[%d] に slug がありません", i)
		}
		if len(m.Values) != len(doc.ElapsedSeconds) {
			return nil, fmt.Errorf("系列 %q の長さ %d が経過時間の長さ %d と一致しません",
				m.Slug, len(m.Values), len(doc.ElapsedSeconds))
		}
		doc.Series = append(doc.Series, model.MetricSeries{
			Slug:        m.Slug,
			DisplayName: m.DisplayName,
			Values:      m.Values,
		})
	}
	return doc, nil
}
