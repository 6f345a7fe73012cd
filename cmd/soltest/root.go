package main

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/halbornteam/solana-test-framework/chains/svm"
	"github.com/halbornteam/solana-test-framework/config"
	"github.com/halbornteam/solana-test-framework/constant"
	"github.com/halbornteam/solana-test-framework/logger"
	"github.com/halbornteam/solana-test-framework/metrics"
)

// app carries the loaded configuration between the root and its subcommands.
type app struct {
	home    string
	keypair string
	urls    []string
	output  string

	metricsAddr   string
	metricsServer *metrics.Server

	cfg    config.Config
	logger zerolog.Logger
}

func NewRootCmd() *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:           "soltest",
		Short:         "Deploy programs to and inspect a local Solana validator",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.home, "home", constant.DefaultNodeHome, "Directory holding config/ and snapshots/")
	flags.StringVar(&a.keypair, "keypair", "", "Fee payer keypair file (overrides keypair_path)")
	flags.StringSliceVar(&a.urls, "url", nil, "Validator RPC URL, repeatable (overrides rpc_urls)")
	flags.StringVar(&a.metricsAddr, "metrics-addr", "", "Serve deployment metrics at this address while a command runs")
	flags.StringVarP(&a.output, "output", "o", OutputFormatYAML, "Output format (yaml|json)")

	InitRootCmd(rootCmd, a)
	return rootCmd
}

func (a *app) load() error {
	cfg, err := config.Load(a.home)
	if err != nil {
		return err
	}
	if a.keypair != "" {
		cfg.KeypairPath = a.keypair
	}
	if len(a.urls) > 0 {
		cfg.RPCURLs = a.urls
	}
	a.cfg = cfg
	a.logger = logger.Init(cfg)
	return nil
}

func (a *app) connect(ctx context.Context) (*svm.RPCClient, error) {
	return svm.NewRPCClient(ctx, a.cfg.RPCURLs, a.cfg.GenesisHash, svm.OptionsFromConfig(&a.cfg), a.logger)
}

func (a *app) payer() (solana.PrivateKey, error) {
	return readKeypair(a.cfg.KeypairPath)
}

// readKeypair loads a solana-keygen JSON keypair file.
func readKeypair(path string) (solana.PrivateKey, error) {
	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keypair %s: %w", path, err)
	}
	return key, nil
}

// keypairOrRandom reads path, or generates a fresh key when path is empty.
func keypairOrRandom(path string) (solana.PrivateKey, error) {
	if path == "" {
		return solana.NewRandomPrivateKey()
	}
	return readKeypair(path)
}
