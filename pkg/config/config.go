package config

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"gopkg.in/yaml.v3"
)

const ConfigFileName = ".weebdomains.json"

// Environment overrides, applied after the file is read.
const (
	EnvWalletURL = "WEEB_WALLET_URL"
	EnvLogLevel  = "WEEB_LOG_LEVEL"
)

// NativeCurrency describes the gas token of a chain.
type NativeCurrency struct {
	Name     string `json:"name" yaml:"name"`
	Symbol   string `json:"symbol" yaml:"symbol"`
	Decimals int    `json:"decimals" yaml:"decimals"`
}

// NetworkConfig is the descriptor of the chain every write must happen on.
// It is also the payload handed to the wallet when the chain has to be added.
type NetworkConfig struct {
	ChainID        string         `json:"chain_id" yaml:"chain_id"`
	Name           string         `json:"name" yaml:"name"`
	RPCURLs        []string       `json:"rpc_urls" yaml:"rpc_urls"`
	NativeCurrency NativeCurrency `json:"native_currency" yaml:"native_currency"`
	ExplorerURLs   []string       `json:"explorer_urls" yaml:"explorer_urls"`
}

// RegistryConfig locates the name registry contract.
type RegistryConfig struct {
	ContractAddress string `json:"contract_address" yaml:"contract_address"`
	TLD             string `json:"tld" yaml:"tld"`
	MarketplaceURL  string `json:"marketplace_url" yaml:"marketplace_url"`
}

// WalletConfig holds the wallet provider endpoint.
type WalletConfig struct {
	URL              string `json:"url" yaml:"url"`
	ChainPollSeconds int    `json:"chain_poll_seconds" yaml:"chain_poll_seconds"`
}

// GlobalConfig holds application-wide settings.
type GlobalConfig struct {
	ConfirmationTimeoutSeconds int     `json:"confirmation_timeout_seconds" yaml:"confirmation_timeout_seconds"`
	ReceiptPollMillis          int     `json:"receipt_poll_millis" yaml:"receipt_poll_millis"`
	CatalogConcurrency         int     `json:"catalog_concurrency" yaml:"catalog_concurrency"`
	CatalogRefreshSeconds      int     `json:"catalog_refresh_seconds" yaml:"catalog_refresh_seconds"`
	RPCRequestsPerSecond       float64 `json:"rpc_requests_per_second" yaml:"rpc_requests_per_second"`
	LogLevel                   string  `json:"log_level" yaml:"log_level"`
	ServerPort                 int     `json:"server_port" yaml:"server_port"`
}

type Config struct {
	Network  NetworkConfig  `json:"network" yaml:"network"`
	Registry RegistryConfig `json:"registry" yaml:"registry"`
	Wallet   WalletConfig   `json:"wallet" yaml:"wallet"`
	Global   GlobalConfig   `json:"global" yaml:"global"`
}

// MumbaiNetwork is the default required network.
func MumbaiNetwork() NetworkConfig {
	return NetworkConfig{
		ChainID: "0x13881",
		Name:    "Polygon Mumbai Testnet",
		RPCURLs: []string{"https://rpc-mumbai.maticvigil.com/"},
		NativeCurrency: NativeCurrency{
			Name:     "Mumbai Matic",
			Symbol:   "MATIC",
			Decimals: 18,
		},
		ExplorerURLs: []string{"https://mumbai.polygonscan.com/"},
	}
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Network: MumbaiNetwork(),
		Registry: RegistryConfig{
			ContractAddress: "0xb630B66FaafcEfC9697a34db63abbf6B37094097",
			TLD:             ".weeb",
			MarketplaceURL:  "https://testnets.opensea.io/assets/mumbai",
		},
		Wallet: WalletConfig{
			URL:              "ws://127.0.0.1:1248",
			ChainPollSeconds: 5,
		},
		Global: GlobalConfig{
			ConfirmationTimeoutSeconds: 300,
			ReceiptPollMillis:          2000,
			CatalogConcurrency:         8,
			CatalogRefreshSeconds:      0,
			RPCRequestsPerSecond:       20,
			LogLevel:                   "info",
			ServerPort:                 8080,
		},
	}
}

// ChainIDBig parses the hex chain id.
func (n NetworkConfig) ChainIDBig() (*big.Int, error) {
	id, err := hexutil.DecodeBig(n.ChainID)
	if err != nil {
		return nil, fmt.Errorf("invalid chain id %q: %w", n.ChainID, err)
	}
	return id, nil
}

// ExplorerTxURL links a transaction on the first configured explorer.
func (n NetworkConfig) ExplorerTxURL(hash string) string {
	if len(n.ExplorerURLs) == 0 {
		return ""
	}
	return strings.TrimRight(n.ExplorerURLs[0], "/") + "/tx/" + hash
}

func (g GlobalConfig) ConfirmationTimeout() time.Duration {
	return time.Duration(g.ConfirmationTimeoutSeconds) * time.Second
}

func (g GlobalConfig) ReceiptPollInterval() time.Duration {
	return time.Duration(g.ReceiptPollMillis) * time.Millisecond
}

func (w WalletConfig) ChainPollInterval() time.Duration {
	return time.Duration(w.ChainPollSeconds) * time.Second
}

// Validate checks the fields every component depends on.
func (c Config) Validate() error {
	if _, err := c.Network.ChainIDBig(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if strings.TrimSpace(c.Network.Name) == "" {
		return fmt.Errorf("validation failed: network has no name")
	}
	if len(c.Network.RPCURLs) == 0 {
		return fmt.Errorf("validation failed: network %s has no RPC URLs", c.Network.Name)
	}
	if !common.IsHexAddress(c.Registry.ContractAddress) {
		return fmt.Errorf("validation failed: invalid contract address %q", c.Registry.ContractAddress)
	}
	return nil
}

func GetConfigPath(customPath string) (string, error) {
	if customPath != "" {
		return customPath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigFileName), nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// LoadConfigFromFile reads the config at path. A missing file yields the
// defaults. Environment overrides are applied in both cases.
func LoadConfigFromFile(path string) (Config, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		cfg := Default()
		applyEnv(&cfg)
		return cfg, nil
	}
	if err != nil {
		return Config{}, err
	}
	defer func() { _ = f.Close() }()

	var cfg Config
	if isYAML(path) {
		cfg, err = LoadConfigYAML(f)
	} else {
		cfg, err = LoadConfig(f)
	}
	if err != nil {
		return Config{}, err
	}
	applyEnv(&cfg)
	return cfg, nil
}

// LoadConfig decodes a JSON config on top of the defaults.
func LoadConfig(r io.Reader) (Config, error) {
	cfg := Default()
	if err := json.NewDecoder(r).Decode(&cfg); err != nil {
		return Config{}, err
	}
	normalize(&cfg)
	return cfg, nil
}

// LoadConfigYAML decodes a YAML config on top of the defaults.
func LoadConfigYAML(r io.Reader) (Config, error) {
	cfg := Default()
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil {
		return Config{}, err
	}
	normalize(&cfg)
	return cfg, nil
}

func normalize(cfg *Config) {
	def := Default()
	if cfg.Global.ConfirmationTimeoutSeconds <= 0 {
		cfg.Global.ConfirmationTimeoutSeconds = def.Global.ConfirmationTimeoutSeconds
	}
	if cfg.Global.ReceiptPollMillis <= 0 {
		cfg.Global.ReceiptPollMillis = def.Global.ReceiptPollMillis
	}
	if cfg.Global.CatalogConcurrency <= 0 {
		cfg.Global.CatalogConcurrency = def.Global.CatalogConcurrency
	}
	if cfg.Global.CatalogRefreshSeconds < 0 {
		cfg.Global.CatalogRefreshSeconds = 0
	}
	if cfg.Global.RPCRequestsPerSecond < 0 {
		cfg.Global.RPCRequestsPerSecond = 0
	}
	if cfg.Global.LogLevel == "" {
		cfg.Global.LogLevel = def.Global.LogLevel
	}
	if cfg.Global.ServerPort <= 0 {
		cfg.Global.ServerPort = def.Global.ServerPort
	}
	if cfg.Wallet.ChainPollSeconds <= 0 {
		cfg.Wallet.ChainPollSeconds = def.Wallet.ChainPollSeconds
	}
	if cfg.Registry.TLD != "" && !strings.HasPrefix(cfg.Registry.TLD, ".") {
		cfg.Registry.TLD = "." + cfg.Registry.TLD
	}
}

func applyEnv(cfg *Config) {
	if v := getEnv(EnvWalletURL, ""); v != "" {
		cfg.Wallet.URL = v
	}
	if v := getEnv(EnvLogLevel, ""); v != "" {
		cfg.Global.LogLevel = v
	}
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func SaveConfig(cfg Config, path string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	var data []byte
	var err error
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return err
	}

	if len(data) == 0 {
		return fmt.Errorf("validation failed: encoded configuration is empty")
	}

	// Create a backup of the existing file
	if _, err := os.Stat(path); err == nil {
		backupPath := fmt.Sprintf("%s.%s.bak", path, time.Now().Format("20060102-150405"))
		input, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read existing config for backup: %w", err)
		}
		if err := os.WriteFile(backupPath, input, 0644); err != nil {
			return fmt.Errorf("failed to write backup config: %w", err)
		}
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

func RestoreLastBackup(configPath string) error {
	matches, err := filepath.Glob(configPath + ".*.bak")
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return fmt.Errorf("no backup files found")
	}
	sort.Strings(matches)
	lastBackup := matches[len(matches)-1]

	data, err := os.ReadFile(lastBackup)
	if err != nil {
		return err
	}
	return os.WriteFile(configPath, data, 0644)
}
