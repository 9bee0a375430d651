package tui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"weebdomains/pkg/catalog"
	"weebdomains/pkg/wallet"
	"weebdomains/pkg/watcher"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {

	case watcher.Event:
		cmds = append(cmds, listenForWatcher(m.sub))
		m.snap = m.watcher.Snapshot()

		switch msg.Type {
		case watcher.EventInputsChanged:
			m.syncInputs()
		case watcher.EventOutcome:
			if line, isErr := outcomeLine(m.snap.LastOutcome); line != "" {
				m.statusMessage, m.statusIsError = line, isErr
				cmds = append(cmds, clearStatusAfter(6*time.Second))
			}
		case watcher.EventSessionReset:
			m.listIdx = 0
			m.showDetail = false
			m.syncInputs()
			m.statusMessage, m.statusIsError = "Network changed, session reloaded", false
			cmds = append(cmds, clearStatusAfter(3*time.Second))
		}

		m.listIdx = clamp(m.listIdx, 0, len(m.visibleNames())-1)
		m.lastUpdate = time.Now()
		if m.showDetail {
			m.updateDetailViewport()
		}

	case actionDoneMsg:
		m.busy = ""
		m.snap = m.watcher.Snapshot()
		if msg.err != nil && !errors.Is(msg.err, catalog.ErrStale) {
			switch {
			case errors.Is(msg.err, wallet.ErrProviderMissing):
				m.statusMessage = "No wallet found. Get a browser wallet or start a wallet provider."
			case msg.action == "register" || msg.action == "update":
				// Register reports through its outcome; record updates fail quietly.
				m.statusMessage = ""
			default:
				m.statusMessage = fmt.Sprintf("%s failed: %v", msg.action, msg.err)
			}
			if m.statusMessage != "" {
				m.statusIsError = true
				cmds = append(cmds, clearStatusAfter(5*time.Second))
			}
		}

	case clearStatusMsg:
		m.statusMessage = ""
		m.statusIsError = false

	case uiTickMsg:
		cmds = append(cmds, tea.Tick(time.Second, func(t time.Time) tea.Msg { return uiTickMsg(t) }))

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width - 4
		m.viewport.Height = msg.Height - 8
		if m.showDetail {
			m.updateDetailViewport()
		}

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.formFocused {
			return m.updateForm(msg)
		}

		if m.showHelp {
			switch msg.String() {
			case "q", "esc", "?":
				m.showHelp = false
			}
			return m, nil
		}

		if m.showDetail {
			switch msg.String() {
			case "q", "esc", "backspace":
				m.showDetail = false
				return m, nil
			case "o":
				return m.openMarketplace()
			case "y":
				return m.copySelected()
			}
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

		switch msg.String() {
		case "q":
			return m, tea.Quit
		case "?":
			m.showHelp = true
		case "c":
			if screenFor(m.snap) == screenConnect && m.busy == "" {
				m.busy = "Connecting wallet"
				cmds = append(cmds, connectCmd(m.ctx, m.watcher))
			}
		case "s":
			if screenFor(m.snap) == screenWrongNetwork && m.busy == "" {
				m.busy = "Switching to " + m.snap.RequiredNetwork
				cmds = append(cmds, switchCmd(m.ctx, m.watcher))
			}
		case "r":
			if screenFor(m.snap) == screenForm {
				m.statusMessage, m.statusIsError = "Refreshing names...", false
				cmds = append(cmds, refreshCmd(m.ctx, m.watcher), clearStatusAfter(2*time.Second))
			}
		case "i", "tab":
			if screenFor(m.snap) == screenForm {
				m.focusForm(inputName)
			}
		case "up", "k":
			if m.listIdx > 0 {
				m.listIdx--
			}
		case "down", "j":
			if m.listIdx < len(m.visibleNames())-1 {
				m.listIdx++
			}
		case "g":
			m.listIdx = 0
		case "G":
			m.listIdx = clamp(len(m.visibleNames())-1, 0, len(m.visibleNames())-1)
		case "f":
			if m.listFilter == "mine" {
				m.listFilter = "all"
			} else {
				m.listFilter = "mine"
			}
			m.listIdx = 0
		case "p":
			m.showPricing = !m.showPricing
		case "enter":
			if _, ok := m.selected(); ok {
				m.showDetail = true
				m.updateDetailViewport()
			}
		case "e":
			return m.editSelected()
		case "y":
			return m.copySelected()
		case "o":
			return m.openMarketplace()
		case "x":
			return m.openLastTx()
		}
	}

	return m, tea.Batch(cmds...)
}

func (m model) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.blurForm()
		if m.snap.Inputs.Editing {
			m.watcher.SetInputs(m.inputs[inputName].Value(), m.inputs[inputRecord].Value())
			m.watcher.CancelEdit()
		}
		return m, nil
	case "tab", "down", "shift+tab", "up":
		next := inputRecord
		if m.focusIdx == inputRecord {
			next = inputName
		}
		m.focusForm(next)
		return m, nil
	case "enter":
		return m.submit()
	}

	var cmd tea.Cmd
	m.inputs[m.focusIdx], cmd = m.inputs[m.focusIdx].Update(msg)
	return m, cmd
}

func (m model) submit() (tea.Model, tea.Cmd) {
	if m.snap.Loading {
		m.statusMessage, m.statusIsError = "An operation is already in progress", true
		return m, clearStatusAfter(3 * time.Second)
	}
	name := m.inputs[inputName].Value()
	record := m.inputs[inputRecord].Value()
	m.blurForm()
	if m.snap.Inputs.Editing {
		return m, updateRecordCmd(m.ctx, m.watcher, name, record)
	}
	return m, registerCmd(m.ctx, m.watcher, name, record)
}

func (m model) editSelected() (tea.Model, tea.Cmd) {
	l, ok := m.selected()
	if !ok {
		return m, nil
	}
	m.watcher.SetInputs(m.inputs[inputName].Value(), m.inputs[inputRecord].Value())
	if err := m.watcher.EditRecord(l.Name); err != nil {
		m.statusMessage, m.statusIsError = "Only the owner can edit "+l.FullName(m.config.Registry.TLD), true
		return m, clearStatusAfter(3 * time.Second)
	}
	m.showDetail = false
	m.focusForm(inputRecord)
	return m, nil
}

func (m model) copySelected() (tea.Model, tea.Cmd) {
	l, ok := m.selected()
	if !ok {
		return m, nil
	}
	full := l.FullName(m.config.Registry.TLD)
	if err := clipboard.WriteAll(full); err != nil {
		m.statusMessage, m.statusIsError = "Clipboard unavailable: "+err.Error(), true
	} else {
		m.statusMessage, m.statusIsError = "Copied "+full+" to clipboard!", false
	}
	return m, clearStatusAfter(2 * time.Second)
}

func (m model) openMarketplace() (tea.Model, tea.Cmd) {
	l, ok := m.selected()
	if !ok {
		return m, nil
	}
	reg := m.config.Registry
	if err := openBrowser(l.MarketplaceURL(reg.MarketplaceURL, reg.ContractAddress)); err != nil {
		m.statusMessage, m.statusIsError = "Could not open browser: "+err.Error(), true
		return m, clearStatusAfter(3 * time.Second)
	}
	return m, nil
}

func (m model) openLastTx() (tea.Model, tea.Cmd) {
	hash := ""
	if m.snap.Pending != nil {
		hash = m.snap.Pending.TxHash
	}
	if hash == "" && m.snap.LastOutcome != nil {
		hash = m.snap.LastOutcome.TxHash
	}
	url := m.config.Network.ExplorerTxURL(hash)
	if hash == "" || url == "" {
		m.statusMessage, m.statusIsError = "No transaction to show", true
		return m, clearStatusAfter(2 * time.Second)
	}
	if err := openBrowser(url); err != nil {
		m.statusMessage, m.statusIsError = "Could not open browser: "+err.Error(), true
		return m, clearStatusAfter(3 * time.Second)
	}
	return m, nil
}

func (m *model) focusForm(idx int) {
	m.formFocused = true
	m.focusIdx = idx
	for i := range m.inputs {
		if i == idx {
			m.inputs[i].Focus()
		} else {
			m.inputs[i].Blur()
		}
	}
}

func (m *model) blurForm() {
	m.formFocused = false
	for i := range m.inputs {
		m.inputs[i].Blur()
	}
}

// syncInputs copies the session form into the text inputs.
func (m *model) syncInputs() {
	if m.inputs[inputName].Value() != m.snap.Inputs.Name {
		m.inputs[inputName].SetValue(m.snap.Inputs.Name)
	}
	if m.inputs[inputRecord].Value() != m.snap.Inputs.Record {
		m.inputs[inputRecord].SetValue(m.snap.Inputs.Record)
	}
}

// --- Commands ---

func clearStatusAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg { return clearStatusMsg{} })
}

func connectCmd(ctx context.Context, w *watcher.Watcher) tea.Cmd {
	return func() tea.Msg {
		_, err := w.Connect(ctx)
		return actionDoneMsg{action: "connect", err: err}
	}
}

func switchCmd(ctx context.Context, w *watcher.Watcher) tea.Cmd {
	return func() tea.Msg {
		return actionDoneMsg{action: "switch network", err: w.SwitchNetwork(ctx)}
	}
}

func refreshCmd(ctx context.Context, w *watcher.Watcher) tea.Cmd {
	return func() tea.Msg {
		return actionDoneMsg{action: "refresh", err: w.Refresh(ctx)}
	}
}

func registerCmd(ctx context.Context, w *watcher.Watcher, name, record string) tea.Cmd {
	return func() tea.Msg {
		_, err := w.Register(ctx, name, record)
		return actionDoneMsg{action: "register", err: err}
	}
}

func updateRecordCmd(ctx context.Context, w *watcher.Watcher, name, record string) tea.Cmd {
	return func() tea.Msg {
		return actionDoneMsg{action: "update", err: w.UpdateRecord(ctx, name, record)}
	}
}
