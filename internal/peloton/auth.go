package peloton

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/pelotonexport/internal/model"
)

// loginRequest は POST /auth/login のリクエストボディ。
type loginRequest struct {
	Password        string `json:"password"`
	UsernameOrEmail string `json:"username_or_email"`
}

// loginResponse は POST /auth/login のレスポンスのうち必要な部分。
type loginResponse struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

// Authenticate は資格情報をセッションと交換する。リトライは行わない。
func (c *Client) Authenticate(ctx context.Context, creds model.Credentials) (model.Session, error) {
	c.logger.Info("Pelotonにログインします", slog.Any("credentials", creds))

	body, err := c.do(ctx, apiRequest{
		method:   http.MethodPost,
		path:     "/auth/login",
		body:     loginRequest{Password: creds.Password, UsernameOrEmail: creds.UsernameOrEmail},
		endpoint: "auth_login",
	})
	if err != nil {
		return model.Session{}, err
	}

	var lr loginResponse
	if err := json.Unmarshal(body, &lr); err != nil {
		return model.Session{}, &model.DeserializationError{What: "login response", Err: err}
	}
	if lr.SessionID == "" || lr.UserID == "" {
		return model.Session{}, &model.DeserializationError{
			What: "login response",
			Err:  errors.New("session_id または user_id がありません"),
		}
	}

	session := model.Session{SessionID: lr.SessionID, UserID: lr.UserID}
	c.logger.Info("Pelotonへのログインに成功しました", slog.Any("session", session))
	return session, nil
}
