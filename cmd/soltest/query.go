package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/halbornteam/solana-test-framework/config"
	"github.com/halbornteam/solana-test-framework/errors"
	"github.com/halbornteam/solana-test-framework/ledger"
)

// Output formats
const (
	OutputFormatYAML = "yaml"
	OutputFormatJSON = "json"
)

// Data encodings of the account command
const (
	EncodingBase64 = "base64"
	EncodingBase58 = "base58"
)

// AccountOutput is the printed form of an account.
type AccountOutput struct {
	Address    string `yaml:"address" json:"address"`
	Lamports   uint64 `yaml:"lamports" json:"lamports"`
	Owner      string `yaml:"owner" json:"owner"`
	Executable bool   `yaml:"executable" json:"executable"`
	RentEpoch  uint64 `yaml:"rent_epoch" json:"rent_epoch"`
	DataLen    int    `yaml:"data_len" json:"data_len"`
	Data       string `yaml:"data,omitempty" json:"data,omitempty"`
	Encoding   string `yaml:"encoding,omitempty" json:"encoding,omitempty"`
}

func newAccountOutput(address solana.PublicKey, acc *ledger.Account, encoding string) (AccountOutput, error) {
	out := AccountOutput{
		Address:    address.String(),
		Lamports:   acc.Lamports,
		Owner:      acc.Owner.String(),
		Executable: acc.Executable,
		RentEpoch:  acc.RentEpoch,
		DataLen:    len(acc.Data),
	}
	if len(acc.Data) == 0 {
		return out, nil
	}
	switch encoding {
	case EncodingBase64:
		out.Data = base64.StdEncoding.EncodeToString(acc.Data)
	case EncodingBase58:
		out.Data = base58.Encode(acc.Data)
	default:
		return AccountOutput{}, fmt.Errorf("unsupported data encoding: %s", encoding)
	}
	out.Encoding = encoding
	return out, nil
}

func accountCmd(a *app) *cobra.Command {
	var encoding string

	cmd := &cobra.Command{
		Use:   "account <address>",
		Short: "Print an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			address, err := solana.PublicKeyFromBase58(args[0])
			if err != nil {
				return fmt.Errorf("invalid address: %w", err)
			}
			c, _, err := a.newClient(cmd.Context())
			if err != nil {
				return err
			}
			defer a.stopMetrics()
			acc, err := c.GetAccount(cmd.Context(), address)
			if err != nil {
				return err
			}
			out, err := newAccountOutput(address, acc, encoding)
			if err != nil {
				return err
			}
			return printOutput(cmd, out, a.output)
		},
	}

	cmd.Flags().StringVar(&encoding, "encoding", EncodingBase64, "Data encoding (base64|base58)")
	return cmd
}

// parseSOL converts a SOL amount to lamports.
func parseSOL(amount string) (uint64, error) {
	sol, err := cast.ToFloat64E(amount)
	if err != nil || sol <= 0 {
		return 0, errors.NewValidationError("parse_amount", fmt.Sprintf("invalid SOL amount %q", amount))
	}
	return uint64(sol * float64(solana.LAMPORTS_PER_SOL)), nil
}

func airdropCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "airdrop <sol> [address]",
		Short: "Request an airdrop to the payer or a given address",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lamports, err := parseSOL(args[0])
			if err != nil {
				return err
			}

			var to solana.PublicKey
			if len(args) == 2 {
				if to, err = solana.PublicKeyFromBase58(args[1]); err != nil {
					return fmt.Errorf("invalid address: %w", err)
				}
			} else {
				payer, err := a.payer()
				if err != nil {
					return err
				}
				to = payer.PublicKey()
			}

			rpcClient, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			sig, err := rpcClient.RequestAirdrop(cmd.Context(), to, lamports)
			if err != nil {
				return err
			}
			return printOutput(cmd, map[string]any{
				"address":   to.String(),
				"lamports":  lamports,
				"signature": sig.String(),
			}, a.output)
		},
	}
	return cmd
}

func configCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the soltest configuration",
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration under --home",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadDefaultConfig()
			if err != nil {
				return err
			}
			if err := config.Save(cfg, a.home); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote configuration to %s\n", a.home)
			return nil
		},
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printOutput(cmd, a.cfg, a.output)
		},
	}

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}

func printOutput(cmd *cobra.Command, data interface{}, format string) error {
	switch format {
	case OutputFormatJSON:
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(data)
	case OutputFormatYAML:
		encoder := yaml.NewEncoder(cmd.OutOrStdout())
		return encoder.Encode(data)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}
