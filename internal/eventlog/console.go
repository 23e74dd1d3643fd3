package eventlog

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"

	"github.com/hitoshi/pelotonexport/internal/model"
)

const (
	colorGreen  = lipgloss.Color("#8ec07c")
	colorYellow = lipgloss.Color("#fabd2f")
	colorRed    = lipgloss.Color("#fb4934")
	colorBlue   = lipgloss.Color("#83a598")
	colorDim    = lipgloss.Color("#928374")
)

// Console はLogEventを人が読む形式で出力する。
// showBarがtrueの場合、ワークアウトの処理ごとに進捗バーを表示する。
type Console struct {
	mu      sync.Mutex
	w       io.Writer
	showBar bool
	bar     progress.Model

	time  lipgloss.Style
	ok    lipgloss.Style
	skip  lipgloss.Style
	fail  lipgloss.Style
	info  lipgloss.Style
	muted lipgloss.Style
}

// NewConsole はConsoleの新しいインスタンスを生成する。
// 色の有無は出力先から判定する。
func NewConsole(w io.Writer, showBar bool) *Console {
	r := lipgloss.NewRenderer(w)
	return &Console{
		w:       w,
		showBar: showBar,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		time:    r.NewStyle().Foreground(colorDim),
		ok:      r.NewStyle().Foreground(colorGreen),
		skip:    r.NewStyle().Foreground(colorYellow),
		fail:    r.NewStyle().Foreground(colorRed).Bold(true),
		info:    r.NewStyle().Foreground(colorBlue),
		muted:   r.NewStyle().Foreground(colorDim),
	}
}

// Emit はイベントを1行で出力する。
func (c *Console) Emit(ev model.LogEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	line := c.time.Render(ev.Time.Local().Format("15:04:05")) + " " + c.marker(ev) + " " + ev.Message
	if ev.Workout != nil {
		line += " " + c.muted.Render(fmt.Sprintf("[%s %s]", ev.Workout.CreatedAt.Format("2006-01-02 15:04"), ev.Workout.Title))
	}
	if ev.Path != "" && ev.Kind != model.EventItemWriting {
		line += " " + c.muted.Render(ev.Path)
	}
	if ev.Err != nil {
		line += "\n    " + c.fail.Render(ev.Err.Error())
	}
	fmt.Fprintln(c.w, line)

	if c.showBar && c.barVisible(ev.Kind) {
		fmt.Fprintf(c.w, "  %s\n", c.bar.ViewAs(ev.Progress/100))
	}
}

func (c *Console) marker(ev model.LogEvent) string {
	switch {
	case ev.Severity == model.SeverityError:
		return c.fail.Render("✗")
	case ev.Kind == model.EventItemSkipped:
		return c.skip.Render("↷")
	case ev.Kind == model.EventItemWritten, ev.Kind == model.EventRunCompleted, ev.Kind == model.EventAuthSucceeded:
		return c.ok.Render("✓")
	default:
		return c.info.Render("•")
	}
}

func (c *Console) barVisible(kind model.EventKind) bool {
	switch kind {
	case model.EventListingCompleted, model.EventItemWritten, model.EventItemSkipped,
		model.EventItemFailed, model.EventRunCompleted:
		return true
	}
	return false
}
