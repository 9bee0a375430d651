package tui

import (
	"fmt"
	"strings"

	"weebdomains/pkg/models"
	"weebdomains/pkg/pricing"
	"weebdomains/pkg/utils"
	"weebdomains/pkg/watcher"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/guptarohit/asciigraph"
)

// screen is the top-level view the session state calls for.
type screen int

const (
	screenNoWallet screen = iota
	screenConnect
	screenWrongNetwork
	screenForm
)

func screenFor(snap watcher.Snapshot) screen {
	switch {
	case !snap.HasWallet:
		return screenNoWallet
	case snap.Account == "":
		return screenConnect
	case !snap.Network.IsRequired:
		return screenWrongNetwork
	default:
		return screenForm
	}
}

// feePreview describes what minting the typed name would cost.
func feePreview(name, symbol string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", true
	}
	n := pricing.NameLength(name)
	if n < pricing.MinNameLength {
		return fmt.Sprintf("Domain must be at least %d characters long", pricing.MinNameLength), false
	}
	return fmt.Sprintf("Fee: %s %s", pricing.FeeEther(n), symbol), true
}

// walletLabel renders the connected account the way the header shows it.
func walletLabel(snap watcher.Snapshot) string {
	if !snap.HasWallet {
		return "No wallet"
	}
	if snap.Account == "" {
		return "Not connected"
	}
	return "Wallet: " + utils.ShortAddress(snap.Account)
}

// recordLabel prefixes the record with its kind.
func recordLabel(l models.ListedName, width int) string {
	if l.Record == "" {
		return "-"
	}
	var prefix string
	switch l.RecordKind() {
	case models.RecordImage:
		prefix = "[gif] "
	case models.RecordLink:
		prefix = "[link] "
	}
	return prefix + utils.TruncateString(l.Record, width)
}

// pendingLabel describes the in-flight operation for the status line.
func pendingLabel(op *models.PendingOperation, tld string) string {
	if op == nil {
		return ""
	}
	full := op.Name + tld
	switch op.State {
	case models.OpSubmitting:
		if op.Kind == models.OpRegister {
			return "Waiting for wallet to sign the mint of " + full
		}
		return "Waiting for wallet to sign the record update of " + full
	case models.OpConfirming:
		return fmt.Sprintf("Confirming %s (%s)", full, utils.TruncateString(op.TxHash, 14))
	default:
		return string(op.State)
	}
}

// outcomeLine renders an outcome and reports whether it should be styled as an error.
func outcomeLine(o *models.Outcome) (string, bool) {
	if o == nil || o.Message == "" {
		return "", false
	}
	line := o.Message
	if o.Warning != "" {
		line += " " + o.Warning
	}
	return line, !o.IsSuccess()
}

// filterNames applies the list filter: "all" or "mine".
func filterNames(entries []models.ListedName, filter, account string) []models.ListedName {
	if filter != "mine" {
		return entries
	}
	var out []models.ListedName
	for _, e := range entries {
		if e.IsOwnedBy(account) {
			out = append(out, e)
		}
	}
	return out
}

func (m model) visibleNames() []models.ListedName {
	return filterNames(m.snap.Catalog, m.listFilter, m.snap.Account)
}

func (m model) selected() (models.ListedName, bool) {
	names := m.visibleNames()
	if m.listIdx < 0 || m.listIdx >= len(names) {
		return models.ListedName{}, false
	}
	return names[m.listIdx], true
}

func (m *model) updateDetailViewport() {
	l, ok := m.selected()
	if !ok {
		m.viewport.SetContent("No name selected.")
		return
	}
	reg := m.config.Registry
	owner := l.Owner
	if l.IsOwnedBy(m.snap.Account) {
		owner += " (you)"
	}
	rows := []string{
		tldStyle.Render(l.FullName(reg.TLD)),
		"",
		fmt.Sprintf("  %-12s %s", "Token", fmt.Sprint(l.Position)),
		fmt.Sprintf("  %-12s %s", "Owner", owner),
		fmt.Sprintf("  %-12s %s", "Kind", l.RecordKind()),
		fmt.Sprintf("  %-12s %s", "Record", l.Record),
		"",
		subtleStyle.Render("Marketplace"),
		"  " + linkStyle.Render(l.MarketplaceURL(reg.MarketplaceURL, reg.ContractAddress)),
	}
	m.viewport.SetContent(strings.Join(rows, "\n"))
}

func listenForWatcher(sub watcher.Subscriber) tea.Cmd {
	return func() tea.Msg {
		return <-sub
	}
}

// pricingGraph plots the fee per name length.
func pricingGraph(maxLength, width int, symbol string) string {
	data := pricing.Table(maxLength)
	if len(data) == 0 {
		return ""
	}
	graphWidth := width - 12
	if graphWidth < 10 {
		graphWidth = 10
	}
	return asciigraph.Plot(data,
		asciigraph.Height(8),
		asciigraph.Width(graphWidth),
		asciigraph.Precision(2),
		asciigraph.Caption(fmt.Sprintf("Fee in %s by name length (%d..%d)", symbol, pricing.MinNameLength, maxLength)),
	)
}
