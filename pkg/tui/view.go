package tui

import (
	"fmt"
	"strings"
	"time"

	"weebdomains/pkg/pricing"
	"weebdomains/pkg/utils"

	"github.com/charmbracelet/lipgloss"
)

const maxGraphLength = 12

func (m model) View() string {
	if m.showHelp {
		return m.viewHelp()
	}
	if m.showDetail {
		return m.viewDetail()
	}

	var body string
	switch screenFor(m.snap) {
	case screenNoWallet:
		body = m.viewNoWallet()
	case screenConnect:
		body = m.viewConnect()
	case screenWrongNetwork:
		body = m.viewWrongNetwork()
	default:
		body = lipgloss.JoinVertical(lipgloss.Left, m.viewForm(), "", m.viewNames())
		if m.showPricing {
			body = lipgloss.JoinVertical(lipgloss.Left, body, "", m.viewPricing())
		}
	}

	return lipgloss.JoinVertical(lipgloss.Left, m.viewHeader(), "", body, "", m.viewFooter())
}

func (m model) viewHeader() string {
	title := titleStyle.Render(fmt.Sprintf("🍥 Weeb Name Service %s", Version))

	netName := m.snap.Network.DisplayName
	if netName == "" {
		netName = "Unknown network"
	}
	netLabel := infoStyle.Render(netName)
	if !m.snap.Network.IsRequired {
		netLabel = warnStyle.Render(netName)
	}

	return lipgloss.JoinHorizontal(lipgloss.Center,
		title, "  ", netLabel, "  ", subtleStyle.Render(walletLabel(m.snap)),
	)
}

func (m model) viewNoWallet() string {
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		errStyle.Render("No wallet provider found."),
		"",
		"Start a wallet that exposes an RPC endpoint at",
		linkStyle.Render(m.config.Wallet.URL),
		"or set "+subtleStyle.Render("WEEB_WALLET_URL")+" and restart.",
	))
}

func (m model) viewConnect() string {
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		"Connect your wallet to mint and browse names.",
		"",
		subtleStyle.Render("(c) Connect Wallet"),
	))
}

func (m model) viewWrongNetwork() string {
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		warnStyle.Render("Please connect to "+m.snap.RequiredNetwork),
		"",
		subtleStyle.Render("(s) Click here to switch"),
	))
}

func (m model) viewForm() string {
	tld := m.config.Registry.TLD
	title := "Mint a name"
	if m.snap.Inputs.Editing {
		title = "Edit record of " + m.snap.Inputs.Name + tld
	}

	nameRow := fmt.Sprintf("%-8s %s%s", "Name", m.inputs[inputName].View(), tldStyle.Render(tld))
	recordRow := fmt.Sprintf("%-8s %s", "Record", m.inputs[inputRecord].View())

	var preview string
	if !m.snap.Inputs.Editing {
		text, ok := feePreview(m.inputs[inputName].Value(), m.config.Network.NativeCurrency.Symbol)
		if ok {
			preview = infoStyle.Render(text)
		} else {
			preview = errStyle.Render(text)
		}
	}

	action := "enter: Mint"
	if m.snap.Inputs.Editing {
		action = "enter: Set record • esc: Cancel"
	}
	hint := subtleStyle.Render("i/tab: Focus form")
	if m.formFocused {
		hint = subtleStyle.Render("tab: Next field • " + action + " • esc: Leave form")
	}

	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(title), "", nameRow, recordRow, preview, hint,
	))
}

func (m model) viewNames() string {
	names := m.visibleNames()
	tld := m.config.Registry.TLD

	header := fmt.Sprintf("Recently minted (%d)", len(m.snap.Catalog))
	if m.listFilter == "mine" {
		header = fmt.Sprintf("Your names (%d)", len(names))
	}

	if len(names) == 0 {
		return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
			titleStyle.Render(header), "", subtleStyle.Render("No names yet."),
		))
	}

	recordWidth := 40
	if m.width > 0 {
		recordWidth = clamp(m.width-40, 12, 80)
	}

	headerRow := tableHeaderStyle.Render(fmt.Sprintf("  %-24s %-*s %s", "Name", recordWidth, "Record", "Owner"))

	// Keep the cursor visible when the list is taller than the window.
	visible := len(names)
	if m.height > 0 {
		visible = clamp(m.height-24, 3, len(names))
	}
	start := 0
	if m.listIdx >= visible {
		start = m.listIdx - visible + 1
	}
	end := clamp(start+visible, 0, len(names))

	var rows []string
	for i := start; i < end; i++ {
		l := names[i]
		marker := "  "
		owner := utils.ShortAddress(l.Owner)
		if l.IsOwnedBy(m.snap.Account) {
			owner = infoStyle.Render("you ✎")
		}
		row := fmt.Sprintf("%-24s %-*s %s", utils.TruncateString(l.FullName(tld), 24), recordWidth, recordLabel(l, recordWidth-7), owner)
		if i == m.listIdx {
			marker = "> "
			row = selectedStyle.Render(row)
		}
		rows = append(rows, marker+row)
	}

	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(header), "", headerRow, strings.Join(rows, "\n"),
	))
}

func (m model) viewPricing() string {
	width := 60
	if m.width > 0 {
		width = clamp(m.width-8, 20, 100)
	}
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("Pricing"),
		"",
		pricingGraph(maxGraphLength, width, m.config.Network.NativeCurrency.Symbol),
		subtleStyle.Render(fmt.Sprintf("Names need at least %d characters.", pricing.MinNameLength)),
	))
}

func (m model) viewFooter() string {
	var status string
	switch {
	case m.busy != "":
		status = m.spinner.View() + " " + m.busy + "..."
	case m.snap.Pending != nil:
		status = m.spinner.View() + " " + pendingLabel(m.snap.Pending, m.config.Registry.TLD)
	case m.snap.Loading:
		status = m.spinner.View() + " Working..."
	case m.statusMessage != "":
		if m.statusIsError {
			status = errStyle.Render(m.statusMessage)
		} else {
			status = infoStyle.Render(m.statusMessage)
		}
	default:
		status = subtleStyle.Render(fmt.Sprintf("Updated %s ago", time.Since(m.lastUpdate).Round(time.Second)))
	}

	keys := "?: Help • q: Quit"
	switch screenFor(m.snap) {
	case screenConnect:
		keys = "c: Connect • " + keys
	case screenWrongNetwork:
		keys = "s: Switch Network • " + keys
	case screenForm:
		keys = "i: Form • enter: Details • e: Edit • y: Copy • o: OpenSea • f: Filter • p: Pricing • " + keys
	}

	return lipgloss.JoinVertical(lipgloss.Left, status, subtleStyle.Render(keys))
}

func (m model) viewDetail() string {
	header := titleStyle.Render("Name Details")
	footer := subtleStyle.Render("o: Open in marketplace • y: Copy name • q/esc: Back")
	return lipgloss.JoinVertical(lipgloss.Left, header, "", m.viewport.View(), "", footer)
}

func (m model) viewHelp() string {
	shortcuts := []string{
		"c: Connect Wallet",
		"s: Switch Network",
		"i/tab: Focus Form",
		"enter: Submit Form / Show Details",
		"esc: Leave Form / Cancel Edit",
		"↑/k: Up",
		"↓/j: Down",
		"g/G: Top / Bottom",
		"e: Edit Record (owned names)",
		"y: Copy Name",
		"o: Open in Marketplace",
		"x: Open Last Transaction",
		"f: Toggle All / Mine",
		"p: Toggle Pricing Graph",
		"r: Refresh Names",
		"q: Quit",
		"?: Toggle Help",
	}

	header := titleStyle.Render("Help")
	content := boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, header, "\n", strings.Join(shortcuts, "\n")))
	footer := subtleStyle.Render("Press '?' or 'esc' to close")

	return lipgloss.Place(
		m.width,
		m.height,
		lipgloss.Center,
		lipgloss.Center,
		lipgloss.JoinVertical(lipgloss.Center, content, "\n", footer),
	)
}
