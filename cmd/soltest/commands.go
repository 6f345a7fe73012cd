package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/halbornteam/solana-test-framework/client"
	"github.com/halbornteam/solana-test-framework/deploy"
	"github.com/halbornteam/solana-test-framework/loader"
	"github.com/halbornteam/solana-test-framework/metrics"
)

func InitRootCmd(rootCmd *cobra.Command, a *app) {
	rootCmd.AddCommand(
		deployCmd(a),
		deployUpgradeableCmd(a),
		chunkSizeCmd(a),
		airdropCmd(a),
		accountCmd(a),
		configCmd(a),
	)
}

// newClient connects to the validator and wires the deployer options.
func (a *app) newClient(ctx context.Context) (*client.Client, *metrics.Recorder, error) {
	rpcClient, err := a.connect(ctx)
	if err != nil {
		return nil, nil, err
	}
	var recorder *metrics.Recorder
	if a.cfg.MetricsEnabled || a.metricsAddr != "" {
		recorder = metrics.NewRecorder()
	}
	if a.metricsAddr != "" {
		a.metricsServer = metrics.NewServer(a.logger, a.metricsAddr, recorder)
		if err := a.metricsServer.Start(); err != nil {
			rpcClient.Close()
			return nil, nil, err
		}
	}
	c := client.New(rpcClient, a.logger,
		deploy.WithMetrics(recorder),
		deploy.WithBlockhashRetries(a.cfg.BlockhashRetries),
	)
	return c, recorder, nil
}

func (a *app) stopMetrics() {
	if a.metricsServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.metricsServer.Stop(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("failed to stop metrics server")
	}
	a.metricsServer = nil
}

func (a *app) logMetrics(r *metrics.Recorder) {
	samples, err := r.Snapshot()
	if err != nil {
		a.logger.Warn().Err(err).Msg("failed to gather metrics")
		return
	}
	keys := make([]string, 0, len(samples))
	for k := range samples {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		a.logger.Info().Str("metric", k).Float64("value", samples[k]).Msg("deployment metric")
	}
}

func deployCmd(a *app) *cobra.Command {
	var programKeypair string

	cmd := &cobra.Command{
		Use:   "deploy <program.so>",
		Short: "Deploy a program through the BPF loader v2",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			payer, err := a.payer()
			if err != nil {
				return err
			}
			program, err := keypairOrRandom(programKeypair)
			if err != nil {
				return err
			}
			c, recorder, err := a.newClient(ctx)
			if err != nil {
				return err
			}
			defer a.stopMetrics()

			if err := c.DeployProgram(ctx, args[0], program, payer); err != nil {
				return err
			}
			if recorder != nil {
				a.logMetrics(recorder)
			}
			return printOutput(cmd, map[string]string{
				"program_id": program.PublicKey().String(),
				"loader":     loader.BPFLoaderProgramID.String(),
			}, a.output)
		},
	}

	cmd.Flags().StringVar(&programKeypair, "program-keypair", "", "Program keypair file (random when empty)")
	return cmd
}

func deployUpgradeableCmd(a *app) *cobra.Command {
	var programKeypair, bufferKeypair, authorityKeypair string

	cmd := &cobra.Command{
		Use:   "deploy-upgradeable <program.so>",
		Short: "Deploy or upgrade a program through the upgradeable loader",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			payer, err := a.payer()
			if err != nil {
				return err
			}
			program, err := keypairOrRandom(programKeypair)
			if err != nil {
				return err
			}
			buffer, err := keypairOrRandom(bufferKeypair)
			if err != nil {
				return err
			}
			authority := payer
			if authorityKeypair != "" {
				if authority, err = readKeypair(authorityKeypair); err != nil {
					return err
				}
			}
			c, recorder, err := a.newClient(ctx)
			if err != nil {
				return err
			}
			defer a.stopMetrics()

			if err := c.DeployUpgradeableProgram(ctx, args[0], buffer, authority, program, payer); err != nil {
				return err
			}
			if recorder != nil {
				a.logMetrics(recorder)
			}
			programData, err := loader.ProgramDataAddress(program.PublicKey())
			if err != nil {
				return err
			}
			return printOutput(cmd, map[string]string{
				"program_id":   program.PublicKey().String(),
				"program_data": programData.String(),
				"authority":    authority.PublicKey().String(),
			}, a.output)
		},
	}

	cmd.Flags().StringVar(&programKeypair, "program-keypair", "", "Program keypair file (random when empty)")
	cmd.Flags().StringVar(&bufferKeypair, "buffer-keypair", "", "Buffer keypair file (random when empty)")
	cmd.Flags().StringVar(&authorityKeypair, "authority-keypair", "", "Upgrade authority keypair file (payer when empty)")
	return cmd
}

// ChunkPlan is the write plan of one loader for an image.
type ChunkPlan struct {
	Loader       string `yaml:"loader" json:"loader"`
	ChunkSize    int    `yaml:"chunk_size" json:"chunk_size"`
	Transactions int    `yaml:"write_transactions,omitempty" json:"write_transactions,omitempty"`
	ImageSize    string `yaml:"image_size,omitempty" json:"image_size,omitempty"`
}

func chunkSizeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chunk-size [program.so]",
		Short: "Show how many bytes each write transaction carries",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plans, err := chunkPlans(args)
			if err != nil {
				return err
			}
			return printOutput(cmd, plans, a.output)
		},
	}
}

func chunkPlans(args []string) ([]ChunkPlan, error) {
	payer, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, err
	}
	target, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, err
	}

	fixed, err := deploy.CalculateChunkSize(func(offset uint32, b []byte) solana.Instruction {
		return loader.Write(target.PublicKey(), offset, b)
	}, []solana.PrivateKey{payer, target})
	if err != nil {
		return nil, err
	}
	upgradeable, err := deploy.CalculateChunkSize(func(offset uint32, b []byte) solana.Instruction {
		return loader.WriteBuffer(target.PublicKey(), payer.PublicKey(), offset, b)
	}, []solana.PrivateKey{payer})
	if err != nil {
		return nil, err
	}
	plans := []ChunkPlan{
		{Loader: "bpf_loader_v2", ChunkSize: fixed},
		{Loader: "bpf_loader_upgradeable", ChunkSize: upgradeable},
	}
	if len(args) == 0 {
		return plans, nil
	}

	info, err := os.Stat(args[0])
	if err != nil {
		return nil, fmt.Errorf("failed to stat program: %w", err)
	}
	for i := range plans {
		size := int(info.Size())
		plans[i].Transactions = (size + plans[i].ChunkSize - 1) / plans[i].ChunkSize
		plans[i].ImageSize = humanize.Bytes(uint64(size))
	}
	return plans, nil
}
