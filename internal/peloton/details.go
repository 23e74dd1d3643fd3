package peloton

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/hitoshi/pelotonexport/internal/model"
)

// FetchWorkoutDetails はワークアウト詳細のJSONをそのまま返す。
func (c *Client) FetchWorkoutDetails(ctx context.Context, session model.Session, workoutID string) (json.RawMessage, error) {
	body, err := c.do(ctx, apiRequest{
		method:   http.MethodGet,
		path:     "/api/workout/" + url.PathEscape(workoutID),
		session:  &session,
		endpoint: "workout_details",
	})
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, &model.DeserializationError{What: "workout details " + workoutID, Err: errInvalidJSON}
	}
	return json.RawMessage(body), nil
}
