package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strconv"

	"weebdomains/pkg/catalog"
	"weebdomains/pkg/config"
	"weebdomains/pkg/ledger"
	"weebdomains/pkg/models"
	"weebdomains/pkg/pricing"
	"weebdomains/pkg/rpc"
	"weebdomains/pkg/server"
	"weebdomains/pkg/tui"
	"weebdomains/pkg/utils"
	"weebdomains/pkg/wallet"
	"weebdomains/pkg/watcher"

	"github.com/guptarohit/asciigraph"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func tuiCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Open the interactive terminal UI (default)",
		RunE:  runTUI,
	}
	cmd.Flags().IntVar(&apiPort, "api-port", 0, "also serve the API on this port")
	return cmd
}

var apiPort int

func runTUI(cmd *cobra.Command, args []string) error {
	if err := useLogger(logFile); err != nil {
		return err
	}
	ctx := cmd.Context()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	a.watcher.Start(ctx)

	if apiPort > 0 {
		srv := server.NewServer(a.watcher)
		go func() {
			if err := srv.Start(ctx, apiPort); err != nil {
				pterm.Error.Printfln("Server error: %v", err)
			}
		}()
	}

	return tui.Start(ctx, a.watcher, Version)
}

func serveCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run headless and expose the session over HTTP and websocket",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := useLogger(logJSON); err != nil {
				return err
			}
			if port <= 0 {
				port = cfg.Global.ServerPort
			}
			ctx := cmd.Context()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()

			a.watcher.Start(ctx)
			return server.NewServer(a.watcher).Start(ctx, port)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "port for the API server (default from config)")
	return cmd
}

// sessionFor builds the app and picks up the wallet account, prompting the
// wallet when connect is set.
func sessionFor(ctx context.Context, connect bool) (*app, error) {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if !a.session.HasProvider() {
		a.close()
		return nil, wallet.ErrProviderMissing
	}
	if a.session.DetectExisting(ctx) == "" {
		if !connect {
			a.close()
			return nil, errors.New("no connected account: rerun with --connect to ask the wallet")
		}
		if _, err := a.session.Connect(ctx); err != nil {
			a.close()
			return nil, err
		}
	}
	return a, nil
}

func namesCmd() *cobra.Command {
	var mine, connect, asJSON bool
	cmd := &cobra.Command{
		Use:   "names",
		Short: "List every registered name with its record and owner",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := sessionFor(ctx, connect)
			if err != nil {
				return err
			}
			defer a.close()

			var entries []models.ListedName
			spinner, _ := pterm.DefaultSpinner.WithRemoveWhenDone(true).Start("Fetching names...")
			entries, err = a.reader.Refresh(ctx)
			_ = spinner.Stop()
			if err != nil {
				var refreshErr *catalog.RefreshError
				if errors.As(err, &refreshErr) {
					return fmt.Errorf("could not read the registry: %w", err)
				}
				return err
			}

			account := a.session.Account()
			if mine {
				var owned []models.ListedName
				for _, e := range entries {
					if e.IsOwnedBy(account) {
						owned = append(owned, e)
					}
				}
				entries = owned
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}
			return printNames(entries, account)
		},
	}
	cmd.Flags().BoolVar(&mine, "mine", false, "only names owned by the connected account")
	cmd.Flags().BoolVar(&connect, "connect", false, "ask the wallet for an account if none is authorised")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func printNames(entries []models.ListedName, account string) error {
	if len(entries) == 0 {
		pterm.Info.Println("No names yet.")
		return nil
	}
	reg := cfg.Registry
	rows := pterm.TableData{{"#", "Name", "Record", "Owner", "Marketplace"}}
	for _, e := range entries {
		owner := utils.ShortAddress(e.Owner)
		if e.IsOwnedBy(account) {
			owner = pterm.Green("you")
		}
		rows = append(rows, []string{
			strconv.Itoa(e.Position),
			pterm.Magenta(e.FullName(reg.TLD)),
			utils.TruncateString(e.Record, 40),
			owner,
			e.MarketplaceURL(reg.MarketplaceURL, reg.ContractAddress),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}

func priceCmd() *cobra.Command {
	var maxLength int
	cmd := &cobra.Command{
		Use:   "price [name]",
		Short: "Show the registration fee schedule, or the fee for one name",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			symbol := cfg.Network.NativeCurrency.Symbol
			if len(args) == 1 {
				n := pricing.NameLength(args[0])
				if n < pricing.MinNameLength {
					pterm.Error.Printfln("Domain must be at least %d characters long", pricing.MinNameLength)
					return errReported
				}
				pterm.Info.Printfln("%s%s costs %s %s", args[0], cfg.Registry.TLD, pricing.FeeEther(n), symbol)
				return nil
			}

			if maxLength < pricing.MinNameLength {
				maxLength = pricing.MinNameLength
			}
			rows := pterm.TableData{{"Length", "Fee (" + symbol + ")"}}
			for l := pricing.MinNameLength; l <= maxLength; l++ {
				rows = append(rows, []string{strconv.Itoa(l), pricing.FeeEther(l)})
			}
			if err := pterm.DefaultTable.WithHasHeader().WithData(rows).Render(); err != nil {
				return err
			}
			pterm.Println()
			pterm.Println(asciigraph.Plot(pricing.Table(maxLength),
				asciigraph.Height(8),
				asciigraph.Precision(2),
				asciigraph.Caption("Fee in "+symbol+" by name length"),
			))
			pterm.Println()

			gas, failed, err := rpc.FetchGasPrice(cmd.Context(), cfg.Network.RPCURLs)
			if len(failed) > 0 {
				pterm.Warning.Printfln("Unreachable RPC endpoints: %v", failed)
			}
			if err != nil {
				pterm.Warning.Printfln("Could not read the gas price: %v", err)
				return nil
			}
			gwei := new(big.Float).Quo(new(big.Float).SetInt(gas), big.NewFloat(1e9))
			pterm.Info.Printfln("Current gas price on %s: %s gwei", cfg.Network.Name, utils.FormatBigFloat(gwei, 2))
			cost := new(big.Int).Mul(gas, big.NewInt(registerGasEstimate))
			pterm.Info.Printfln("A registration adds roughly %s %s in gas", utils.FormatWei(cost, 6), symbol)
			return nil
		},
	}
	cmd.Flags().IntVar(&maxLength, "max", 10, "longest name length to show")
	return cmd
}

// registerGasEstimate is a typical gas usage of a register call.
const registerGasEstimate = 250_000

// errReported marks failures already printed to the user.
var errReported = errors.New("reported")

func followPending(w *watcher.Watcher, spinner *pterm.SpinnerPrinter) func() {
	sub := w.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range sub {
			if op, ok := ev.Data.(*models.PendingOperation); ok && op != nil {
				switch op.State {
				case models.OpSubmitting:
					spinner.UpdateText("Waiting for the wallet to sign...")
				case models.OpConfirming:
					spinner.UpdateText("Waiting for confirmation of " + op.TxHash)
				}
			}
		}
	}()
	return func() {
		w.Unsubscribe(sub)
		<-done
	}
}

func registerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register <name> [record]",
		Short: "Mint a name, paying the length-tiered fee, and attach a record",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			name, record := args[0], ""
			if len(args) == 2 {
				record = args[1]
			}

			a, err := sessionFor(ctx, true)
			if err != nil {
				return err
			}
			defer a.close()

			full := name + cfg.Registry.TLD
			spinner, _ := pterm.DefaultSpinner.Start(fmt.Sprintf("Minting %s for %s %s", full, pricing.FeeEther(pricing.NameLength(name)), cfg.Network.NativeCurrency.Symbol))
			stop := followPending(a.watcher, spinner)
			outcome, err := a.watcher.Register(ctx, name, record)
			stop()

			if outcome.Kind == "" {
				_ = spinner.Stop()
				if errors.Is(err, ledger.ErrNoSender) {
					return errors.New("no connected account")
				}
				if err == nil {
					err = errors.New("nothing to mint")
				}
				return err
			}
			if !outcome.IsSuccess() {
				spinner.Fail(outcome.Message)
				return errReported
			}
			spinner.Success(fmt.Sprintf("%s %s", outcome.Message, full))
			if outcome.Warning != "" {
				pterm.Warning.Println(outcome.Warning)
			}
			if url := cfg.Network.ExplorerTxURL(outcome.TxHash); url != "" && outcome.TxHash != "" {
				pterm.Info.Printfln("Transaction: %s", url)
			}
			return nil
		},
	}
	return cmd
}

func recordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record <name> <record>",
		Short: "Set the record of a name you own",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			name, record := args[0], args[1]

			a, err := sessionFor(ctx, true)
			if err != nil {
				return err
			}
			defer a.close()

			full := name + cfg.Registry.TLD
			spinner, _ := pterm.DefaultSpinner.Start("Setting record of " + full)
			stop := followPending(a.watcher, spinner)
			err = a.watcher.UpdateRecord(ctx, name, record)
			stop()
			if err != nil {
				spinner.Fail(fmt.Sprintf("Record of %s not updated: %v", full, err))
				return errReported
			}
			spinner.Success("Record set for " + full)
			return nil
		},
	}
	return cmd
}

func checkCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Test the configuration: RPC endpoints, wallet and registry contract",
		RunE: func(cmd *cobra.Command, args []string) error {
			report := runCheck(cmd.Context(), cfg, cfgPath, !asJSON)
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return err
				}
			}
			if !report.ValidStructure || !report.ContractCode {
				return errReported
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func runCheck(ctx context.Context, cfg config.Config, path string, verbose bool) models.CheckReport {
	report := models.CheckReport{
		ConfigPath:      path,
		ValidStructure:  true,
		RequiredChainID: cfg.Network.ChainID,
	}
	say := func(p pterm.PrefixPrinter, format string, a ...interface{}) {
		if verbose {
			p.Printfln(format, a...)
		}
	}
	say(pterm.Info, "Testing configuration at: %s", path)

	if err := cfg.Validate(); err != nil {
		report.ValidStructure = false
		report.StructureErrors = append(report.StructureErrors, err.Error())
		say(pterm.Error, "%v", err)
		return report
	}
	required, _ := cfg.Network.ChainIDBig()

	for _, url := range cfg.Network.RPCURLs {
		res := rpc.ProbeEndpoint(ctx, url, required)
		report.RPCs = append(report.RPCs, res)
		if res.Status == "ok" {
			say(pterm.Success, "RPC %s: chain %s, %dms", url, res.ChainID, res.LatencyMS)
		} else {
			say(pterm.Error, "RPC %s: %s", url, res.Error)
		}
	}

	wres := rpc.ProbeEndpoint(ctx, cfg.Wallet.URL, nil)
	report.Wallet = &wres
	if wres.Status == "ok" {
		say(pterm.Success, "Wallet %s: on chain %s", cfg.Wallet.URL, wres.ChainID)
	} else {
		say(pterm.Warning, "Wallet %s: %s", cfg.Wallet.URL, wres.Error)
	}

	client, _, err := rpc.DialFirst(ctx, cfg.Network.RPCURLs, required)
	if err != nil {
		say(pterm.Error, "No RPC endpoint of %s is usable: %v", cfg.Network.Name, err)
		return report
	}
	defer client.Close()

	report.ContractCode, err = rpc.HasCode(ctx, client, cfg.Registry.ContractAddress)
	switch {
	case err != nil:
		say(pterm.Error, "Registry %s: %v", cfg.Registry.ContractAddress, err)
		return report
	case !report.ContractCode:
		say(pterm.Error, "Registry %s: no contract deployed", cfg.Registry.ContractAddress)
		return report
	}

	reg, err := ledger.NewClient(cfg.Registry.ContractAddress, client, nil, nil, ledger.OptionsFrom(cfg.Global))
	if err != nil {
		say(pterm.Error, "%v", err)
		return report
	}
	names, err := reg.ListAllNames(ctx)
	if err != nil {
		say(pterm.Error, "Registry %s: %v", cfg.Registry.ContractAddress, err)
		return report
	}
	report.NameCount = len(names)
	say(pterm.Success, "Registry %s: %d names registered", cfg.Registry.ContractAddress, len(names))
	return report
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with the default settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(cfgPath); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite it (a backup is kept)", cfgPath)
			}
			if err := config.SaveConfig(config.Default(), cfgPath); err != nil {
				return err
			}
			pterm.Success.Printfln("Configuration written to %s", cfgPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or restore the configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			pterm.Println(string(out))
			return nil
		},
	}, &cobra.Command{
		Use:   "restore",
		Short: "Restore the most recent configuration backup",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.RestoreLastBackup(cfgPath); err != nil {
				return err
			}
			pterm.Success.Printfln("Restored the last backup of %s", cfgPath)
			return nil
		},
	})
	return cmd
}
