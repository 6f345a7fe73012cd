// Package loader builds instructions for the BPF loader v2 and the
// upgradeable loader and encodes the upgradeable loader account states.
package loader

import "github.com/gagliardetto/solana-go"

var (
	// BPFLoaderProgramID owns finalized, non-upgradeable programs.
	BPFLoaderProgramID = solana.MustPublicKeyFromBase58("BPFLoader2111111111111111111111111111111111")

	// BPFLoaderUpgradeableProgramID owns buffers, programs and program data accounts.
	BPFLoaderUpgradeableProgramID = solana.MustPublicKeyFromBase58("BPFLoaderUpgradeab1e11111111111111111111111")
)
