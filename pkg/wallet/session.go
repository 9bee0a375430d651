package wallet

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Session tracks the connected account. A nil provider means no wallet is
// installed.
type Session struct {
	provider Provider
	logger   *slog.Logger

	mu      sync.RWMutex
	account string
}

func NewSession(p Provider) *Session {
	return &Session{
		provider: p,
		logger:   slog.Default().With("component", "wallet_session"),
	}
}

func (s *Session) HasProvider() bool {
	return s.provider != nil
}

// Account returns the current account, empty when disconnected.
func (s *Session) Account() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.account
}

func (s *Session) setAccount(a string) {
	if common.IsHexAddress(a) {
		a = common.HexToAddress(a).Hex()
	}
	s.mu.Lock()
	s.account = a
	s.mu.Unlock()
}

// DetectExisting picks up an already authorised account without prompting.
// Failures are logged and leave the session disconnected.
func (s *Session) DetectExisting(ctx context.Context) string {
	if s.provider == nil {
		s.logger.Info("make sure you have a wallet installed")
		return ""
	}
	accounts, err := s.provider.AuthorizedAccounts(ctx)
	if err != nil {
		s.logger.Warn("could not read authorized accounts", "error", err)
		return ""
	}
	if len(accounts) == 0 {
		s.logger.Info("no authorized account found")
		return ""
	}
	s.setAccount(accounts[0])
	s.logger.Info("found an authorized account", "account", s.Account())
	return s.Account()
}

// Connect prompts the wallet for account access.
func (s *Session) Connect(ctx context.Context) (string, error) {
	if s.provider == nil {
		return "", ErrProviderMissing
	}
	accounts, err := s.provider.RequestAccounts(ctx)
	if err != nil {
		s.logger.Warn("account request failed", "error", err, "rejected", IsUserRejected(err))
		return "", err
	}
	if len(accounts) == 0 {
		return "", nil
	}
	s.setAccount(accounts[0])
	s.logger.Info("connected", "account", s.Account())
	return s.Account(), nil
}

// Reset forgets the account. The next DetectExisting starts from scratch.
func (s *Session) Reset() {
	s.mu.Lock()
	s.account = ""
	s.mu.Unlock()
}
