package peloton

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/hitoshi/pelotonexport/internal/model"
)

// pageSize は一覧APIの1ページあたりの件数。
const pageSize = 10

// workoutPage は一覧APIの1ページ分のレスポンス。
type workoutPage struct {
	Data     []map[string]json.RawMessage `json:"data"`
	ShowNext *bool                        `json:"show_next"`
}

// rideJoin は joins=ride で付与されるライド情報のうち必要な部分。
type rideJoin struct {
	Title string `json:"title"`
}

// ListWorkouts はユーザーの全ワークアウト概要をページ0から順に取得する。
// show_nextがtrueの間はスロットル後に次ページを要求し、falseまたは欠落で終了する。
// いずれかのページで失敗した場合は途中結果を返さない。
func (c *Client) ListWorkouts(ctx context.Context, session model.Session) ([]model.WorkoutSummary, error) {
	var workouts []model.WorkoutSummary

	for page := 0; ; page++ {
		body, err := c.do(ctx, apiRequest{
			method: http.MethodGet,
			path:   "/api/user/" + url.PathEscape(session.UserID) + "/workouts",
			query: url.Values{
				"joins": {"ride"},
				"limit": {strconv.Itoa(pageSize)},
				"page":  {strconv.Itoa(page)},
			},
			session:  &session,
			endpoint: "workouts",
		})
		if err != nil {
			return nil, fmt.Errorf("ワークアウト一覧（ページ%d）の取得に失敗しました: %w", page, err)
		}
		c.recorder.RecordPageFetched()

		var wp workoutPage
		if err := json.Unmarshal(body, &wp); err != nil {
			return nil, &model.DeserializationError{What: "workout list page " + strconv.Itoa(page), Err: err}
		}

		for i, raw := range wp.Data {
			w, err := parseSummary(raw)
			if err != nil {
				return nil, &model.DeserializationError{
					What: fmt.Sprintf("workout list page %d item %d", page, i),
					Err:  err,
				}
			}
			workouts = append(workouts, w)
		}

		c.logger.Debug("ワークアウト一覧のページを取得しました",
			slog.Int("page", page),
			slog.Int("items", len(wp.Data)),
			slog.Int("total", len(workouts)),
		)

		if wp.ShowNext == nil || !*wp.ShowNext {
			break
		}
		if err := c.throttle.Wait(ctx); err != nil {
			return nil, err
		}
	}

	c.logger.Info("ワークアウト一覧の取得が完了しました", slog.Int("count", len(workouts)))
	return workouts, nil
}

// parseSummary は一覧の1件をWorkoutSummaryに変換する。
// 対応するフィールド以外はExtraに残す。
func parseSummary(raw map[string]json.RawMessage) (model.WorkoutSummary, error) {
	var w model.WorkoutSummary

	if err := decodeField(raw, "id", &w.ID); err != nil {
		return w, err
	}
	if w.ID == "" {
		return w, errors.New("id がありません")
	}
	if err := decodeField(raw, "fitness_discipline", &w.FitnessDiscipline); err != nil {
		return w, err
	}
	if err := decodeField(raw, "status", &w.Status); err != nil {
		return w, err
	}

	var deviceCreated, created float64
	if err := decodeField(raw, "device_time_created_at", &deviceCreated); err != nil {
		return w, err
	}
	if err := decodeField(raw, "created_at", &created); err != nil {
		return w, err
	}
	w.CreatedAt = int64(deviceCreated)
	if w.CreatedAt == 0 {
		w.CreatedAt = int64(created)
	}

	var ride *rideJoin
	if err := decodeField(raw, "ride", &ride); err != nil {
		return w, err
	}
	if ride != nil {
		w.Title = ride.Title
	}
	if w.Title == "" {
		if err := decodeField(raw, "name", &w.Title); err != nil {
			return w, err
		}
	}

	w.Extra = make(map[string]json.RawMessage, len(raw))
	for k, v := range raw {
		switch k {
		case "id", "fitness_discipline", "status", "device_time_created_at":
			continue
		}
		w.Extra[k] = v
	}
	return w, nil
}

// decodeField はキーが存在しnullでない場合のみdstへデコードする。
func decodeField(raw map[string]json.RawMessage, key string, dst any) error {
	v, ok := raw[key]
	if !ok || string(v) == "null" {
		return nil
	}
	if err := json.Unmarshal(v, dst); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}
