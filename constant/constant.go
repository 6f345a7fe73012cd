package constant

import "os"

// <NodeDir>/                    (e.g., /home/dev/.soltest)
// └── config/
//	└── soltest_config.json
// └── snapshots/
//	└── bank.db

const (
	NodeDir = ".soltest"

	ConfigSubdir   = "config"
	ConfigFileName = "soltest_config.json"

	SnapshotsSubdir = "snapshots"

	// EnvPrefix prefixes every environment override, e.g. SOLTEST_RPC_URLS.
	EnvPrefix = "SOLTEST"
)

var DefaultNodeHome = os.ExpandEnv("$HOME/") + NodeDir

// DefaultKeypairPath is where the solana CLI keeps its default signer.
var DefaultKeypairPath = os.ExpandEnv("$HOME/.config/solana/id.json")

// Program search locations, in priority order after the working directory's
// tests/fixtures folder.
var ProgramDirEnvVars = []string{"SBF_OUT_DIR", "BPF_OUT_DIR"}

const ProgramFixturesDir = "tests/fixtures"
