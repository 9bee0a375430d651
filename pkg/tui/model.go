package tui

import (
	"context"
	"time"

	"weebdomains/pkg/config"
	"weebdomains/pkg/watcher"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Version is set by Start()
var Version = "dev"

// --- Messages ---

type clearStatusMsg struct{}
type uiTickMsg time.Time

// actionDoneMsg reports a wallet action started from the UI.
type actionDoneMsg struct {
	action string
	err    error
}

const (
	inputName = iota
	inputRecord
)

// --- Model ---

type model struct {
	ctx           context.Context
	watcher       *watcher.Watcher
	sub           watcher.Subscriber
	config        config.Config
	snap          watcher.Snapshot
	width         int
	height        int
	spinner       spinner.Model
	inputs        []textinput.Model
	focusIdx      int
	formFocused   bool
	listIdx       int
	listFilter    string // "all" or "mine"
	busy          string // wallet action in progress, if any
	statusMessage string
	statusIsError bool
	showHelp      bool
	showPricing   bool
	showDetail    bool
	viewport      viewport.Model
	lastUpdate    time.Time
}

func initialModel(ctx context.Context, w *watcher.Watcher) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	ins := make([]textinput.Model, 2)
	for i := range ins {
		ins[i] = textinput.New()
		ins[i].Width = 40
	}
	ins[inputName].Placeholder = "domain"
	ins[inputName].CharLimit = 64
	ins[inputRecord].Placeholder = "link / link to gif / text"

	snap := w.Snapshot()
	ins[inputName].SetValue(snap.Inputs.Name)
	ins[inputRecord].SetValue(snap.Inputs.Record)

	return model{
		ctx:        ctx,
		watcher:    w,
		sub:        w.Subscribe(),
		config:     w.Config(),
		snap:       snap,
		spinner:    s,
		inputs:     ins,
		listFilter: "all",
		viewport:   viewport.New(0, 0),
		lastUpdate: time.Now(),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		listenForWatcher(m.sub),
		m.spinner.Tick,
		tea.Tick(time.Second, func(t time.Time) tea.Msg { return uiTickMsg(t) }),
	)
}
