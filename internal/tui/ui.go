// Package tui renders a live view of one streamed run.
package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/Paintersrp/runcap/internal/capture"
	"github.com/Paintersrp/runcap/internal/cliutil"
	"github.com/Paintersrp/runcap/internal/engine"
)

const (
	logsTitle            = "Output"
	filterPageName       = "filter"
	defaultLineRetention = 5000
)

// Run is the streamed execution the viewer follows.
type Run interface {
	RunID() string
	Pid() int
	Lines() iter.Seq[capture.Line]
	Wait() (*engine.Result, error)
}

// Option configures UI behaviour.
type Option func(*UI)

// WithMaxLines sets how many lines the view retains. The run itself keeps
// every line regardless.
func WithMaxLines(n int) Option {
	return func(u *UI) {
		if n > 0 {
			u.maxLines = n
		}
	}
}

// UI is the tview application showing one run.
type UI struct {
	app    *tview.Application
	pages  *tview.Pages
	status *tview.TextView
	logs   *tview.TextView

	title string

	mu         sync.RWMutex
	lines      []capture.Line
	stdout     int
	stderr     int
	maxLines   int
	asJSON     bool
	filter     string
	filterExpr *regexp.Regexp

	runID    string
	pid      int
	started  time.Time
	finished bool
	result   *engine.Result
	err      error

	cancel     context.CancelFunc
	cancelling bool

	stopOnce sync.Once
	done     chan struct{}
}

// New constructs a UI titled with the command line.
func New(title string, opts ...Option) *UI {
	app := tview.NewApplication()

	status := tview.NewTextView().SetDynamicColors(true)
	status.SetBorder(true).SetTitle("runcap")

	logs := tview.NewTextView().SetDynamicColors(true).SetWrap(false)
	logs.SetBorder(true).SetTitle(logsTitle)
	logs.SetChangedFunc(func() {
		app.Draw()
	})

	flex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(status, 4, 0, false).
		AddItem(logs, 0, 1, true)

	pages := tview.NewPages().AddPage("main", flex, true, true)

	ui := &UI{
		app:      app,
		pages:    pages,
		status:   status,
		logs:     logs,
		title:    title,
		maxLines: defaultLineRetention,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(ui)
	}

	app.SetRoot(pages, true)
	app.SetInputCapture(ui.handleKey)
	return ui
}

// Done returns a channel that is closed when the UI stops.
func (u *UI) Done() <-chan struct{} {
	return u.done
}

// Follow runs the application until the user quits. Pressing q or Ctrl-C
// while the process is alive calls cancel, which kills the process tree; the
// view stays open to show the outcome. The run's own error is returned.
func (u *UI) Follow(ctx context.Context, run Run, cancel context.CancelFunc) error {
	u.mu.Lock()
	u.runID = run.RunID()
	u.pid = run.Pid()
	u.started = time.Now()
	u.cancel = cancel
	u.renderStatusLocked()
	u.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for line := range run.Lines() {
			u.record(line)
			u.queueRefresh(true)
		}
		res, err := run.Wait()
		u.finish(res, err)
		u.queueRefresh(true)
	}()
	go func() {
		defer wg.Done()
		u.tick()
	}()

	go func() {
		select {
		case <-ctx.Done():
			u.requestCancel()
		case <-u.done:
		}
	}()

	appErr := u.app.Run()
	u.Stop()
	wg.Wait()

	u.mu.RLock()
	defer u.mu.RUnlock()
	if appErr != nil {
		return appErr
	}
	return u.err
}

// Stop terminates the application loop.
func (u *UI) Stop() {
	u.stopOnce.Do(func() {
		u.app.Stop()
		close(u.done)
	})
}

func (u *UI) tick() {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-u.done:
			return
		case <-ticker.C:
			u.mu.RLock()
			finished := u.finished
			u.mu.RUnlock()
			if finished {
				return
			}
			u.queueRefresh(false)
		}
	}
}

func (u *UI) handleKey(event *tcell.EventKey) *tcell.EventKey {
	if _, overlay := u.app.GetFocus().(*tview.InputField); overlay {
		return event
	}
	switch event.Key() {
	case tcell.KeyCtrlC:
		u.quit()
		return nil
	case tcell.KeyRune:
		switch event.Rune() {
		case 'q', 'Q':
			u.quit()
			return nil
		case '/':
			u.showFilterPrompt()
			return nil
		case 'j', 'J':
			u.toggleJSON()
			return nil
		}
	}
	return event
}

// quit cancels a live run or leaves the viewer once the run is over.
func (u *UI) quit() {
	u.mu.RLock()
	finished := u.finished
	u.mu.RUnlock()
	if finished {
		go u.Stop()
		return
	}
	u.requestCancel()
}

func (u *UI) requestCancel() {
	u.mu.Lock()
	if u.finished || u.cancelling {
		u.mu.Unlock()
		return
	}
	u.cancelling = true
	cancel := u.cancel
	u.renderStatusLocked()
	u.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (u *UI) toggleJSON() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.asJSON = !u.asJSON
	u.renderLogsLocked()
}

func (u *UI) showFilterPrompt() {
	u.mu.RLock()
	current := u.filter
	u.mu.RUnlock()

	input := tview.NewInputField().
		SetLabel("Regex filter: ").
		SetText(current).
		SetFieldWidth(40)

	form := tview.NewForm().
		AddFormItem(input).
		AddButton("Apply", func() {
			u.applyFilter(input.GetText())
			u.pages.RemovePage(filterPageName)
			u.app.SetFocus(u.logs)
		}).
		AddButton("Cancel", func() {
			u.pages.RemovePage(filterPageName)
			u.app.SetFocus(u.logs)
		})

	form.SetBorder(true).SetTitle("Filter Lines")

	grid := tview.NewGrid().
		SetColumns(0, 60, 0).
		SetRows(0, 7, 0).
		AddItem(form, 1, 1, 1, 1, 0, 0, true)

	u.pages.AddPage(filterPageName, grid, true, true)
	u.app.SetFocus(input)
}

func (u *UI) applyFilter(expr string) {
	expr = strings.TrimSpace(expr)
	var re *regexp.Regexp
	if expr != "" {
		var err error
		re, err = regexp.Compile(expr)
		if err != nil {
			u.showErrorModal(fmt.Sprintf("Invalid filter: %v", err))
			return
		}
	}

	u.mu.Lock()
	u.filter = expr
	u.filterExpr = re
	u.renderLogsLocked()
	u.mu.Unlock()
}

func (u *UI) showErrorModal(message string) {
	modal := tview.NewModal().
		SetText(message).
		AddButtons([]string{"OK"}).
		SetDoneFunc(func(buttonIndex int, buttonLabel string) {
			u.pages.RemovePage(filterPageName)
			u.app.SetFocus(u.logs)
		})

	u.pages.RemovePage(filterPageName)
	u.pages.AddPage(filterPageName, modal, true, true)
}

func (u *UI) record(line capture.Line) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if line.Stream == capture.StreamStderr {
		u.stderr++
	} else {
		u.stdout++
	}
	u.lines = append(u.lines, line)
	if len(u.lines) > u.maxLines {
		trim := len(u.lines) - u.maxLines
		u.lines = append([]capture.Line(nil), u.lines[trim:]...)
	}
}

func (u *UI) finish(res *engine.Result, err error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.finished = true
	u.result = res
	u.err = err
}

func (u *UI) queueRefresh(updateLogs bool) {
	select {
	case <-u.done:
		return
	default:
	}
	u.app.QueueUpdateDraw(func() {
		u.mu.Lock()
		defer u.mu.Unlock()
		u.renderStatusLocked()
		if updateLogs {
			u.renderLogsLocked()
		}
	})
}

func (u *UI) renderStatusLocked() {
	u.status.Clear()
	fmt.Fprintf(u.status, "[::b]%s[::-]\n", tview.Escape(u.title))
	fmt.Fprintf(u.status, "run %s  pid %d  %s  stdout %d  stderr %d",
		u.runID, u.pid, u.stateLabelLocked(), u.stdout, u.stderr)
	if u.filter != "" {
		fmt.Fprintf(u.status, "  filter /%s/", tview.Escape(u.filter))
	}
}

func (u *UI) stateLabelLocked() string {
	switch {
	case u.finished && u.result != nil:
		label := fmt.Sprintf("%s exit %d in %s", u.result.State, u.result.ExitCode, u.result.Duration.Truncate(time.Millisecond))
		if u.result.Success() {
			return "[green]" + label + "[-]  (q to quit)"
		}
		return "[red]" + label + "[-]  (q to quit)"
	case u.finished:
		return "[red]failed[-]  (q to quit)"
	case u.cancelling:
		return "[yellow]cancelling[-]"
	default:
		elapsed := time.Duration(0)
		if !u.started.IsZero() {
			elapsed = time.Since(u.started).Truncate(time.Second)
		}
		return fmt.Sprintf("running %s", elapsed)
	}
}

func (u *UI) renderLogsLocked() {
	u.logs.Clear()
	for _, line := range u.lines {
		if u.filterExpr != nil && !u.filterExpr.MatchString(line.Text) {
			continue
		}
		fmt.Fprintln(u.logs, formatLine(u.runID, line, u.asJSON))
	}
	u.logs.ScrollToEnd()
}

func formatLine(runID string, line capture.Line, asJSON bool) string {
	if asJSON {
		data, err := json.Marshal(cliutil.NewLogRecord(runID, line))
		if err != nil {
			return fmt.Sprintf(`{"error":%q}`, err.Error())
		}
		return tview.Escape(string(data))
	}
	if line.Stream == capture.StreamStderr {
		return "[red]" + tview.Escape(line.Display()) + "[-]"
	}
	return tview.Escape(line.Text)
}
