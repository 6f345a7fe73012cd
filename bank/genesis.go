package bank

import (
	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/halbornteam/solana-test-framework/db"
	"github.com/halbornteam/solana-test-framework/errors"
	"github.com/halbornteam/solana-test-framework/fixtures"
	"github.com/halbornteam/solana-test-framework/ledger"
	"github.com/halbornteam/solana-test-framework/loader"
	"github.com/halbornteam/solana-test-framework/sysvar"
)

// GeneratedAccountLamports funds every account made by GenerateAccounts.
const GeneratedAccountLamports = 1_000 * solana.LAMPORTS_PER_SOL

// Genesis collects the accounts and programs a bank starts with.
type Genesis struct {
	config   GenesisConfig
	clock    clockwork.Clock
	logger   zerolog.Logger
	accounts map[solana.PublicKey]*ledger.Account
	programs map[solana.PublicKey]ProcessFunc
	snapshot *sysvar.Clock
	feeless  bool
}

type GenesisOption func(*Genesis)

func WithLogger(logger zerolog.Logger) GenesisOption {
	return func(g *Genesis) { g.logger = logger }
}

// WithClock sets the wall clock the genesis creation time is taken from.
func WithClock(clock clockwork.Clock) GenesisOption {
	return func(g *Genesis) { g.clock = clock }
}

// WithGenesisConfig overrides the defaults. Zero fields keep their default.
func WithGenesisConfig(cfg GenesisConfig) GenesisOption {
	return func(g *Genesis) { g.config = cfg }
}

// WithoutFees starts a bank that charges no signature fee.
func WithoutFees() GenesisOption {
	return func(g *Genesis) { g.feeless = true }
}

func NewGenesis(opts ...GenesisOption) *Genesis {
	g := &Genesis{
		clock:    clockwork.NewRealClock(),
		logger:   zerolog.Nop(),
		accounts: make(map[solana.PublicKey]*ledger.Account),
		programs: builtinPrograms(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.config.CreationTime.IsZero() {
		g.config.CreationTime = g.clock.Now()
	}
	g.config = g.config.withDefaults()
	if g.feeless {
		g.config.FeeLamportsPerSignature = 0
	}
	return g
}

func (g *Genesis) Config() GenesisConfig {
	return g.config
}

// GenerateAccounts creates n system accounts holding 1000 SOL each.
func (g *Genesis) GenerateAccounts(n int) ([]solana.PrivateKey, error) {
	keys := make([]solana.PrivateKey, 0, n)
	for range n {
		key, err := solana.NewRandomPrivateKey()
		if err != nil {
			return nil, errors.NewInternalError("generate_accounts", "failed to generate keypair", err)
		}
		g.AddAccountWithLamports(key.PublicKey(), solana.SystemProgramID, GeneratedAccountLamports)
		keys = append(keys, key)
	}
	return keys, nil
}

// AddAccount places a copy of acc at key, replacing any earlier account.
func (g *Genesis) AddAccount(key solana.PublicKey, acc *ledger.Account) {
	g.accounts[key] = acc.Clone()
}

// AddAccountWithData adds a rent-exempt account holding data.
func (g *Genesis) AddAccountWithData(key, owner solana.PublicKey, data []byte, executable bool) {
	g.AddAccount(key, &ledger.Account{
		Lamports:   g.config.Rent.MinimumBalance(uint64(len(data))),
		Data:       data,
		Owner:      owner,
		Executable: executable,
	})
}

func (g *Genesis) AddAccountWithLamports(key, owner solana.PublicKey, lamports uint64) {
	g.AddAccount(key, &ledger.Account{Lamports: lamports, Owner: owner})
}

func (g *Genesis) AddAccountWithPackable(key, owner solana.PublicKey, p fixtures.Packable) error {
	data, err := p.Pack()
	if err != nil {
		return errors.NewValidationError("add_account_with_packable", err.Error()).WithContext("account", key.String())
	}
	g.AddAccountWithData(key, owner, data, false)
	return nil
}

func (g *Genesis) AddAccountWithBorsh(key, owner solana.PublicKey, value any) error {
	data, err := fixtures.BorshData(value)
	if err != nil {
		return errors.NewValidationError("add_account_with_borsh", err.Error()).WithContext("account", key.String())
	}
	g.AddAccountWithData(key, owner, data, false)
	return nil
}

// AddAccountWithAnchor adds value as the Anchor account type name.
func (g *Genesis) AddAccountWithAnchor(key, owner solana.PublicKey, name string, value any, executable bool) error {
	data, err := fixtures.AnchorAccountData(name, value)
	if err != nil {
		return errors.NewValidationError("add_account_with_anchor", err.Error()).WithContext("account", key.String())
	}
	g.AddAccountWithData(key, owner, data, executable)
	return nil
}

// AddEmptyAccountWithAnchor adds a discriminator followed by size zero bytes.
func (g *Genesis) AddEmptyAccountWithAnchor(key, owner solana.PublicKey, name string, size int) {
	g.AddAccountWithData(key, owner, fixtures.EmptyAnchorAccountData(name, size), false)
}

func (g *Genesis) AddTokenMint(key solana.PublicKey, mintAuthority *solana.PublicKey, supply uint64, decimals uint8, freezeAuthority *solana.PublicKey) error {
	return g.AddAccountWithPackable(key, fixtures.TokenProgramID, fixtures.Mint{
		MintAuthority:   mintAuthority,
		Supply:          supply,
		Decimals:        decimals,
		IsInitialized:   true,
		FreezeAuthority: freezeAuthority,
	})
}

// AddTokenAccount adds an initialized legacy token account at key.
func (g *Genesis) AddTokenAccount(key solana.PublicKey, account fixtures.TokenAccount) error {
	if account.State == fixtures.TokenAccountUninitialized {
		account.State = fixtures.TokenAccountInitialized
	}
	return g.AddAccountWithPackable(key, fixtures.TokenProgramID, account)
}

// AddAssociatedTokenAccount adds account at the associated token address of
// its owner and mint and returns that address.
func (g *Genesis) AddAssociatedTokenAccount(account fixtures.TokenAccount) (solana.PublicKey, error) {
	key, err := fixtures.AssociatedTokenAddress(account.Owner, account.Mint, fixtures.TokenProgramID)
	if err != nil {
		return solana.PublicKey{}, errors.NewInternalError("add_associated_token_account", "failed to derive address", err)
	}
	return key, g.AddTokenAccount(key, account)
}

// AddProgram registers a builtin program. A nil process loads <name>.so into
// a finalized loader v2 account instead; its instructions cannot be run.
func (g *Genesis) AddProgram(name string, programID solana.PublicKey, process ProcessFunc) error {
	if process != nil {
		g.programs[programID] = process
		g.AddAccountWithData(programID, NativeLoaderID, []byte(name), true)
		g.logger.Info().Str("program", name).Str("id", programID.String()).Msg("registered builtin program")
		return nil
	}
	data, err := readProgramFile(g.logger, name)
	if err != nil {
		return err
	}
	g.AddAccountWithData(programID, loader.BPFLoaderProgramID, data, true)
	return nil
}

// AddBPFProgram adds <name>.so as an upgradeable program whose program data
// sits at the derived program data address. Without an authority the
// program is registered as a builtin instead.
func (g *Genesis) AddBPFProgram(name string, programID solana.PublicKey, authority *solana.PublicKey, process ProcessFunc) error {
	if authority == nil {
		return g.AddProgram(name, programID, process)
	}
	programData, err := loader.ProgramDataAddress(programID)
	if err != nil {
		return errors.NewInternalError("add_bpf_program", "failed to derive program data address", err)
	}
	return g.AddBPFProgramWithProgramData(name, programID, authority, programData, 0, process)
}

// AddBPFProgramWithProgramData is AddBPFProgram with an explicit program
// data address and last upgrade slot.
func (g *Genesis) AddBPFProgramWithProgramData(
	name string,
	programID solana.PublicKey,
	authority *solana.PublicKey,
	programData solana.PublicKey,
	upgradeSlot uint64,
	process ProcessFunc,
) error {
	if authority == nil {
		return g.AddProgram(name, programID, process)
	}
	image, err := readProgramFile(g.logger, name)
	if err != nil {
		return err
	}

	program, err := loader.State{Type: loader.StateProgram, ProgramData: programData}.Bytes()
	if err != nil {
		return errors.NewInternalError("add_bpf_program", "failed to encode program account", err)
	}
	header, err := loader.State{Type: loader.StateProgramData, Slot: upgradeSlot, Authority: authority}.Bytes()
	if err != nil {
		return errors.NewInternalError("add_bpf_program", "failed to encode program data account", err)
	}

	g.AddAccountWithData(programID, loader.BPFLoaderUpgradeableProgramID, program, true)
	g.AddAccountWithData(programData, loader.BPFLoaderUpgradeableProgramID, append(header, image...), false)
	return nil
}

// AddPythOracle adds price as a Pyth price account owned by owner.
func (g *Genesis) AddPythOracle(oracle, owner solana.PublicKey, price fixtures.PriceAccount) error {
	return g.AddAccountWithPackable(oracle, owner, price)
}

// LoadSnapshot adds every account stored in database and, if one was saved,
// starts the bank at the stored clock.
func (g *Genesis) LoadSnapshot(database *db.DB) error {
	records, err := database.LoadAccounts()
	if err != nil {
		return errors.NewDatabaseError("load_snapshot", "failed to load accounts", err)
	}
	for _, r := range records {
		key, err := solana.PublicKeyFromBase58(r.Address)
		if err != nil {
			return errors.NewDatabaseError("load_snapshot", "invalid account address", err).WithContext("address", r.Address)
		}
		owner, err := solana.PublicKeyFromBase58(r.Owner)
		if err != nil {
			return errors.NewDatabaseError("load_snapshot", "invalid account owner", err).WithContext("address", r.Address)
		}
		g.AddAccount(key, &ledger.Account{
			Lamports:   r.Lamports,
			Data:       r.Data,
			Owner:      owner,
			Executable: r.Executable,
			RentEpoch:  r.RentEpoch,
		})
	}

	clock, err := database.LoadClock()
	if err != nil {
		return errors.NewDatabaseError("load_snapshot", "failed to load clock", err)
	}
	if clock != nil {
		g.snapshot = &sysvar.Clock{
			Slot:                clock.Slot,
			EpochStartTimestamp: clock.EpochStartTimestamp,
			Epoch:               clock.Epoch,
			LeaderScheduleEpoch: clock.LeaderScheduleEpoch,
			UnixTimestamp:       clock.UnixTimestamp,
		}
	}
	g.logger.Info().Int("accounts", len(records)).Bool("clock", clock != nil).Msg("loaded snapshot")
	return nil
}

// Start creates a funded payer and boots a bank from the collected state.
// The genesis may be started again; each bank gets its own copy.
func (g *Genesis) Start() (*Context, error) {
	payer, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, errors.NewInternalError("start", "failed to generate payer", err)
	}

	accounts := make(map[solana.PublicKey]*ledger.Account, len(g.accounts)+3)
	for key, acc := range g.accounts {
		accounts[key] = acc.Clone()
	}
	accounts[payer.PublicKey()] = &ledger.Account{Lamports: DefaultPayerLamports, Owner: solana.SystemProgramID}

	programs := make(map[solana.PublicKey]ProcessFunc, len(g.programs))
	for id, p := range g.programs {
		programs[id] = p
	}

	clock := sysvar.Clock{
		EpochStartTimestamp: g.config.CreationTime.Unix(),
		LeaderScheduleEpoch: 1,
		UnixTimestamp:       g.config.CreationTime.Unix(),
	}
	if g.snapshot != nil {
		clock = *g.snapshot
	}

	b := newBank(g.config, accounts, programs, clock, g.logger)
	g.logger.Info().
		Int("accounts", len(accounts)).
		Int("programs", len(programs)).
		Uint64("slot", clock.Slot).
		Msg("bank started")
	return &Context{bank: b, payer: payer}, nil
}
