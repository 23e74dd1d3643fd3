// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// AuthErrorKind は認証・プロトコルエラーの種別を表す。
type AuthErrorKind int

const (
	// AuthUnauthorized はサービスが401を返したことを示す。
	// 資格情報の確認という具体的な対処方法があるため他のエラーと区別する。
	AuthUnauthorized AuthErrorKind = iota
	// AuthProtocol は401以外の非成功ステータスを示す。
	AuthProtocol
)

// String はエラー種別の名前を返す。
func (k AuthErrorKind) String() string {
	switch k {
	case AuthUnauthorized:
		return "unauthorized"
	case AuthProtocol:
		return "protocol_error"
	default:
		return "unknown"
	}
}

// AuthenticationError はPeloton APIが非成功ステータスを返したことを表す。
// ログイン以外のエンドポイントでも同じ型を使う（セッション失効時は401になる）。
type AuthenticationError struct {
	Kind        AuthErrorKind
	StatusCode  int
	Description string
	Endpoint    string
}

// Error はerrorインターフェースを実装する。
func (e *AuthenticationError) Error() string {
	if e.Kind == AuthUnauthorized {
		return fmt.Sprintf("Pelotonサーバーが認証エラー（Unauthorized）を返しました: %s", e.Endpoint)
	}
	return fmt.Sprintf("Pelotonサーバーがプロトコルエラーを返しました: %d %q (%s)", e.StatusCode, e.Description, e.Endpoint)
}

// NetworkError は到達不能やタイムアウトなど通信レベルの失敗を表す。
type NetworkError struct {
	Op  string
	URL string
	Err error
}

// Error はerrorインターフェースを実装する。
func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s に失敗しました (%s): %v", e.Op, e.URL, e.Err)
}

// Unwrap は元のエラーを返す。context.Canceled の判定に使う。
func (e *NetworkError) Unwrap() error { return e.Err }

// DeserializationError はレスポンスボディが期待する形式と一致しないことを表す。
// メトリクス系列の長さ不一致もこのエラーになる。
type DeserializationError struct {
	What string
	Err  error
}

// Error はerrorインターフェースを実装する。
func (e *DeserializationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s のパースに失敗しました", e.What)
	}
	return fmt.Sprintf("%s のパースに失敗しました: %v", e.What, e.Err)
}

// Unwrap は元のエラーを返す。
func (e *DeserializationError) Unwrap() error { return e.Err }

// FileSystemError は出力ディレクトリの欠落や書き込み失敗を表す。
type FileSystemError struct {
	Op   string
	Path string
	Err  error
}

// Error はerrorインターフェースを実装する。
func (e *FileSystemError) Error() string {
	return fmt.Sprintf("ファイル操作 %s に失敗しました (%s): %v", e.Op, e.Path, e.Err)
}

// Unwrap は元のエラーを返す。
func (e *FileSystemError) Unwrap() error { return e.Err }

// IsUnauthorized はエラーチェーンに401由来のAuthenticationErrorが含まれるかを返す。
func IsUnauthorized(err error) bool {
	var authErr *AuthenticationError
	return errors.As(err, &authErr) && authErr.Kind == AuthUnauthorized
}

// ErrorCategory はエラーを分類した文字列を返す。ログとメトリクスのラベルに使う。
func ErrorCategory(err error) string {
	var (
		authErr  *AuthenticationError
		netErr   *NetworkError
		deserErr *DeserializationError
		fsErr    *FileSystemError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &authErr):
		return authErr.Kind.String()
	case errors.As(err, &netErr):
		return "network"
	case errors.As(err, &deserErr):
		return "deserialization"
	case errors.As(err, &fsErr):
		return "filesystem"
	default:
		return "unknown"
	}
}

// Remediation はユーザー向けの対処方法を返す。
func Remediation(err error) string {
	var (
		authErr  *AuthenticationError
		netErr   *NetworkError
		deserErr *DeserializationError
		fsErr    *FileSystemError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &authErr) && authErr.Kind == AuthUnauthorized:
		return "ユーザー名とパスワードを確認してください。"
	case errors.As(err, &authErr):
		return "しばらく待ってから再度お試しください。"
	case errors.As(err, &netErr):
		return "ネットワーク接続を確認してください。"
	case errors.As(err, &deserErr):
		return "Peloton APIの応答形式が変わった可能性があります。"
	case errors.As(err, &fsErr):
		return "出力ディレクトリが存在し、書き込み可能か確認してください。"
	default:
		return ""
	}
}
