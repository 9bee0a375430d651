package tui

import (
	"context"
	"fmt"

	"weebdomains/pkg/watcher"

	tea "github.com/charmbracelet/bubbletea"
)

// Start runs the terminal UI until the user quits.
func Start(ctx context.Context, w *watcher.Watcher, version string) error {
	Version = version
	m := initialModel(ctx, w)
	defer w.Unsubscribe(m.sub)

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("alas, there's been an error: %w", err)
	}
	return nil
}
