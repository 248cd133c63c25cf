package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math/big"
	"os"
	"os/signal"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/dzeckelev/gift-ledger/config"
	"github.com/dzeckelev/gift-ledger/eth"
	"github.com/dzeckelev/gift-ledger/ipfs"
	"github.com/dzeckelev/gift-ledger/proc"
	"github.com/dzeckelev/gift-ledger/view"
)

const programName = "giftctl"

var globalFlags = struct {
	config string
	env    string
	yes    bool
}{}

// app holds the components a command works with.
type app struct {
	cfg          *config.Config
	node         *ethclient.Client
	ledger       *eth.Client
	resolver     *ipfs.Resolver
	aggregator   *view.Aggregator
	orchestrator *proc.Orchestrator
}

func newApp(ctx context.Context, signer bool) (*app, error) {
	var dotenv []string
	if globalFlags.env != "" {
		dotenv = append(dotenv, globalFlags.env)
	}

	cfg, err := config.Load(globalFlags.config, dotenv...)
	if err != nil {
		return nil, err
	}

	if err := config.SetupLog(cfg.Log); err != nil {
		return nil, err
	}

	node, err := eth.Dial(ctx, cfg.Eth.NodeURL)
	if err != nil {
		return nil, err
	}

	var opts *bind.TransactOpts
	if signer {
		if cfg.Eth.PrivateKey == "" {
			node.Close()
			return nil, errors.Errorf("%s_PRIVATE_KEY is not set",
				config.EnvPrefix)
		}

		chainID := big.NewInt(cfg.Eth.ChainID)
		if cfg.Eth.ChainID == 0 {
			if chainID, err = node.ChainID(ctx); err != nil {
				node.Close()
				return nil, err
			}
		}

		if opts, err = eth.NewTransactor(cfg.Eth.PrivateKey,
			chainID); err != nil {
			node.Close()
			return nil, err
		}
	}

	ledger, err := eth.NewClient(node, cfg.Eth, opts)
	if err != nil {
		node.Close()
		return nil, err
	}

	if !globalFlags.yes {
		ledger.SetConfirm(prompt(os.Stdin, os.Stderr))
	}

	resolver := ipfs.NewResolver(cfg.IPFS, nil)
	scanner := proc.NewScanner(ledger, cfg.Proc, nil)

	return &app{
		cfg:          cfg,
		node:         node,
		ledger:       ledger,
		resolver:     resolver,
		aggregator:   view.NewAggregator(ledger, scanner, resolver),
		orchestrator: proc.NewOrchestrator(ledger, resolver, nil),
	}, nil
}

func (a *app) Close() {
	a.node.Close()
}

// prompt asks on out and reads the answer from in. Declining maps to a
// user cancelled submission.
func prompt(in io.Reader, out io.Writer) eth.ConfirmFunc {
	reader := bufio.NewReader(in)

	return func(method string, tx *types.Transaction) bool {
		to := "contract creation"
		if tx.To() != nil {
			to = tx.To().Hex()
		}

		fmt.Fprintf(out, "Sign %s to %s (gas %d, nonce %d)? [y/N] ",
			method, to, tx.Gas(), tx.Nonce())

		answer, _ := reader.ReadString('\n')
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "yes":
			return true
		default:
			return false
		}
	}
}

func withApp(signer bool,
	run func(ctx context.Context, a *app, args []string) error) func(
	*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), signer)
		if err != nil {
			return err
		}
		defer a.Close()

		return run(cmd.Context(), a, args)
	}
}

func parseAddress(value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, errors.Errorf("invalid address %q", value)
	}
	return common.HexToAddress(value), nil
}

func main() {
	if _, err := maxprocs.Set(); err != nil {
		log.Warn("Failed to set GOMAXPROCS", "err", err)
	}

	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Inspect and act on the gift ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&globalFlags.config, "config", "c",
		"config.json", "configuration file path")
	rootCmd.PersistentFlags().StringVar(&globalFlags.env, "env", "",
		"environment file path")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.yes, "yes", "y", false,
		"sign transactions without asking")

	rootCmd.AddCommand(
		historyCommand(),
		giftCommand(),
		charitiesCommand(),
		favoritesCommand(),
		topCommand(),
		balanceCommand(),
		sendCommand(),
		redeemCommand(),
		favoriteCommand(),
		charityCommand(),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		cancel()
		fmt.Fprintf(os.Stderr, "%s: %v\n", programName, err)
		os.Exit(1)
	}
}
