// Package prompt は端末から資格情報を対話的に入力させる。
package prompt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/hitoshi/pelotonexport/internal/model"
)

// ErrAborted はユーザーが入力を中断したことを示す。
var ErrAborted = errors.New("資格情報の入力が中断されました")

// CredentialPrompter は不足している資格情報をフォームで補う。
type CredentialPrompter struct {
	in         io.Reader
	out        io.Writer
	accessible bool

	// run はフォームを実行する。テストで差し替える。
	run func(ctx context.Context, form *huh.Form) error
}

// NewCredentialPrompter はCredentialPrompterを生成する。
// accessibleがtrueの場合はTUIを使わず行単位で入力を読む。
func NewCredentialPrompter(in io.Reader, out io.Writer, accessible bool) *CredentialPrompter {
	return &CredentialPrompter{
		in:         in,
		out:        out,
		accessible: accessible,
		run: func(ctx context.Context, form *huh.Form) error {
			return form.RunWithContext(ctx)
		},
	}
}

// Complete はpresetで不足している項目だけを入力させる。
// 両方そろっている場合はフォームを表示しない。
func (p *CredentialPrompter) Complete(ctx context.Context, preset model.Credentials) (model.Credentials, error) {
	creds := preset
	if creds.UsernameOrEmail != "" && creds.Password != "" {
		return creds, nil
	}

	var fields []huh.Field
	if creds.UsernameOrEmail == "" {
		fields = append(fields, usernameInput(&creds.UsernameOrEmail))
	}
	if creds.Password == "" {
		fields = append(fields, passwordInput(&creds.Password))
	}

	form := huh.NewForm(huh.NewGroup(fields...)).
		WithInput(p.in).
		WithOutput(p.out).
		WithShowHelp(false).
		WithAccessible(p.accessible)

	if err := p.run(ctx, form); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return model.Credentials{}, ErrAborted
		}
		return model.Credentials{}, fmt.Errorf("資格情報の入力に失敗しました: %w", err)
	}

	creds.UsernameOrEmail = strings.TrimSpace(creds.UsernameOrEmail)
	if err := validateRequired(creds.UsernameOrEmail); err != nil {
		return model.Credentials{}, err
	}
	if err := validateRequired(creds.Password); err != nil {
		return model.Credentials{}, err
	}
	return creds, nil
}

func usernameInput(value *string) *huh.Input {
	return huh.NewInput().
		Title("Peloton username or email").
		Value(value).
		Validate(validateRequired)
}

func passwordInput(value *string) *huh.Input {
	return huh.NewInput().
		Title("Peloton password").
		EchoMode(huh.EchoModePassword).
		Value(value).
		Validate(validateRequired)
}

func validateRequired(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("入力が必要です")
	}
	return nil
}
