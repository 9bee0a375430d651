package tui

import (
	"math/big"
	"strings"
	"testing"

	"weebdomains/pkg/config"
	"weebdomains/pkg/models"
	"weebdomains/pkg/watcher"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
)

const alice = "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B"

func testCatalog() []models.ListedName {
	return []models.ListedName{
		{ID: "1", Position: 0, Name: "neko", Record: "https://neko.example/cat.gif", Owner: alice},
		{ID: "2", Position: 1, Name: "senpai", Record: "notice me", Owner: "0x0000000000000000000000000000000000000001"},
		{ID: "3", Position: 2, Name: "waifu", Record: "https://waifu.example", Owner: strings.ToLower(alice)},
	}
}

func TestScreenFor(t *testing.T) {
	mumbai := models.NetworkState{ChainID: big.NewInt(80001), IsRequired: true}

	assert.Equal(t, screenNoWallet, screenFor(watcher.Snapshot{}))
	assert.Equal(t, screenConnect, screenFor(watcher.Snapshot{HasWallet: true, Network: mumbai}))
	assert.Equal(t, screenWrongNetwork, screenFor(watcher.Snapshot{HasWallet: true, Account: alice}))
	assert.Equal(t, screenForm, screenFor(watcher.Snapshot{HasWallet: true, Account: alice, Network: mumbai}))
}

func TestFeePreview(t *testing.T) {
	tests := []struct {
		name     string
		expected string
		ok       bool
	}{
		{"", "", true},
		{"   ", "", true},
		{"ab", "Domain must be at least 3 characters long", false},
		{"uwu", "Fee: 0.5 MATIC", true},
		{"neko", "Fee: 0.3 MATIC", true},
		{"senpai", "Fee: 0.1 MATIC", true},
		{"ねこだ", "Fee: 0.5 MATIC", true},
	}

	for _, tt := range tests {
		text, ok := feePreview(tt.name, "MATIC")
		assert.Equal(t, tt.expected, text, "feePreview(%q)", tt.name)
		assert.Equal(t, tt.ok, ok, "feePreview(%q)", tt.name)
	}
}

func TestWalletLabel(t *testing.T) {
	assert.Equal(t, "No wallet", walletLabel(watcher.Snapshot{}))
	assert.Equal(t, "Not connected", walletLabel(watcher.Snapshot{HasWallet: true}))
	assert.Equal(t, "Wallet: 0xAb58...eC9B", walletLabel(watcher.Snapshot{HasWallet: true, Account: alice}))
}

func TestRecordLabel(t *testing.T) {
	names := testCatalog()
	assert.Equal(t, "[gif] https://neko.example/cat.gif", recordLabel(names[0], 60))
	assert.Equal(t, "notice me", recordLabel(names[1], 60))
	assert.Equal(t, "[link] https://waifu.example", recordLabel(names[2], 60))
	assert.Equal(t, "-", recordLabel(models.ListedName{Name: "empty"}, 60))
	assert.Equal(t, "noti...", recordLabel(names[1], 7))
}

func TestPendingLabel(t *testing.T) {
	assert.Empty(t, pendingLabel(nil, ".weeb"))

	op := &models.PendingOperation{Kind: models.OpRegister, Name: "neko", State: models.OpSubmitting}
	assert.Equal(t, "Waiting for wallet to sign the mint of neko.weeb", pendingLabel(op, ".weeb"))

	op = &models.PendingOperation{Kind: models.OpUpdateRecord, Name: "neko", State: models.OpSubmitting}
	assert.Equal(t, "Waiting for wallet to sign the record update of neko.weeb", pendingLabel(op, ".weeb"))

	op = &models.PendingOperation{Kind: models.OpRegister, Name: "neko", State: models.OpConfirming, TxHash: "0x1234567890abcdef"}
	assert.Equal(t, "Confirming neko.weeb (0x123456789...)", pendingLabel(op, ".weeb"))
}

func TestOutcomeLine(t *testing.T) {
	line, isErr := outcomeLine(nil)
	assert.Empty(t, line)
	assert.False(t, isErr)

	line, isErr = outcomeLine(&models.Outcome{Kind: models.OutcomeSuccess, Message: "Domain minted!"})
	assert.Equal(t, "Domain minted!", line)
	assert.False(t, isErr)

	line, isErr = outcomeLine(&models.Outcome{Kind: models.OutcomeSuccess, Message: "Domain minted!", Warning: "Record missing."})
	assert.Equal(t, "Domain minted! Record missing.", line)
	assert.False(t, isErr)

	line, isErr = outcomeLine(&models.Outcome{Kind: models.OutcomeInsufficientFunds, Message: "Error : Insufficient funds !"})
	assert.Equal(t, "Error : Insufficient funds !", line)
	assert.True(t, isErr)
}

func TestFilterNames(t *testing.T) {
	names := testCatalog()

	assert.Len(t, filterNames(names, "all", alice), 3)

	mine := filterNames(names, "mine", alice)
	assert.Len(t, mine, 2)
	assert.Equal(t, "neko", mine[0].Name)
	assert.Equal(t, "waifu", mine[1].Name)

	assert.Empty(t, filterNames(names, "mine", ""))
}

func TestPricingGraph(t *testing.T) {
	graph := pricingGraph(8, 60, "MATIC")
	assert.Contains(t, graph, "Fee in MATIC by name length (3..8)")
	assert.Contains(t, graph, "0.50")

	assert.Empty(t, pricingGraph(2, 60, "MATIC"))
}

func key(s string) tea.KeyMsg {
	switch s {
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func testModel() model {
	return model{
		config:     config.Default(),
		listFilter: "all",
		viewport:   viewport.New(80, 20),
		snap: watcher.Snapshot{
			HasWallet: true,
			Account:   alice,
			Network:   models.NetworkState{ChainID: big.NewInt(80001), IsRequired: true},
			Catalog:   testCatalog(),
		},
	}
}

func TestUpdate_Navigation(t *testing.T) {
	var m tea.Model = testModel()

	m, _ = m.Update(key("down"))
	m, _ = m.Update(key("down"))
	m, _ = m.Update(key("down"))
	assert.Equal(t, 2, m.(model).listIdx)

	m, _ = m.Update(key("up"))
	assert.Equal(t, 1, m.(model).listIdx)

	l, ok := m.(model).selected()
	assert.True(t, ok)
	assert.Equal(t, "senpai", l.Name)
}

func TestUpdate_FilterToggle(t *testing.T) {
	var m tea.Model = testModel()

	m, _ = m.Update(key("G"))
	assert.Equal(t, 2, m.(model).listIdx)

	m, _ = m.Update(key("f"))
	assert.Equal(t, "mine", m.(model).listFilter)
	assert.Equal(t, 0, m.(model).listIdx)
	assert.Len(t, m.(model).visibleNames(), 2)

	m, _ = m.Update(key("f"))
	assert.Equal(t, "all", m.(model).listFilter)
}

func TestUpdate_DetailView(t *testing.T) {
	var m tea.Model = testModel()

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.True(t, m.(model).showDetail)
	assert.Contains(t, m.(model).viewport.View(), "neko.weeb")

	m, _ = m.Update(key("q"))
	assert.False(t, m.(model).showDetail)
}

func TestUpdate_HelpToggle(t *testing.T) {
	var m tea.Model = testModel()

	m, _ = m.Update(key("?"))
	assert.True(t, m.(model).showHelp)

	m, _ = m.Update(key("?"))
	assert.False(t, m.(model).showHelp)
}
