package model

import (
	"encoding/json"
	"log/slog"
	"time"
)

// Credentials はログインに使う資格情報。認証呼び出し以外では保持しない。
type Credentials struct {
	UsernameOrEmail string
	Password        string
}

// LogValue はパスワードをマスクしてログに出力する。
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("username_or_email", c.UsernameOrEmail),
		slog.String("password", "***"),
	)
}

// Session は認証で得たセッションIDとユーザーID。
// 値渡しで各呼び出しに渡し、取得後に変更しない。
type Session struct {
	SessionID string
	UserID    string
}

// LogValue はセッションIDをマスクしてログに出力する。
func (s Session) LogValue() slog.Value {
	masked := "***"
	if len(s.SessionID) > 4 {
		masked = s.SessionID[:4] + "***"
	}
	return slog.GroupValue(
		slog.String("user_id", s.UserID),
		slog.String("session_id", masked),
	)
}

// WorkoutSummary はワークアウト一覧APIの1件分。
type WorkoutSummary struct {
	ID                string
	Title             string
	CreatedAt         int64 // エポック秒（UTC）
	FitnessDiscipline string
	Status            string
	// Extra は上記以外のトップレベルフィールドをそのまま保持する。
	Extra map[string]json.RawMessage
}

// CreatedTime は作成日時をUTCのtime.Timeで返す。
func (w WorkoutSummary) CreatedTime() time.Time {
	return time.Unix(w.CreatedAt, 0).UTC()
}

// Ref はログイベント用の参照情報を返す。
func (w WorkoutSummary) Ref() *WorkoutRef {
	return &WorkoutRef{ID: w.ID, Title: w.Title, CreatedAt: w.CreatedTime()}
}

// WorkoutRef はイベントでワークアウトを特定するための情報。
type WorkoutRef struct {
	ID        string
	Title     string
	CreatedAt time.Time
}

// MetricSeries は経過時間列とインデックスで対応する名前付きの数値列。
// 欠測したサンプルはnilで表す。
type MetricSeries struct {
	Slug        string
	DisplayName string
	Values      []*float64
}

// MetricsDocument は1ワークアウト分のパフォーマンスグラフ。
// すべての系列の長さはElapsedSecondsと等しい。
type MetricsDocument struct {
	ElapsedSeconds []float64
	Series         []MetricSeries
	// Raw はレスポンスボディそのもの。生JSONの保存に使う。
	Raw []byte
}
