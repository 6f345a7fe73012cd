// Package deploy uploads program images through the BPF loader v2 or the
// upgradeable loader, splitting them into packet-sized write transactions.
package deploy

import (
	"context"
	"os"
	"path/filepath"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/halbornteam/solana-test-framework/errors"
	"github.com/halbornteam/solana-test-framework/ledger"
	"github.com/halbornteam/solana-test-framework/loader"
	"github.com/halbornteam/solana-test-framework/metrics"
	"github.com/halbornteam/solana-test-framework/sysvar"
	"github.com/halbornteam/solana-test-framework/txbuilder"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Backend is the environment a deployment submits to.
type Backend interface {
	txbuilder.BlockhashProvider
	SendTransaction(ctx context.Context, tx *solana.Transaction) error
	// GetAccount returns nil, nil when the account does not exist.
	GetAccount(ctx context.Context, key solana.PublicKey) (*ledger.Account, error)
}

// ConcurrentSubmitter is implemented by backends that accept several
// in-flight transactions at once.
type ConcurrentSubmitter interface {
	MaxConcurrentSubmissions() int
}

// RentProvider is implemented by backends that know their own rent parameters.
// Backends without it are assumed to run the default rent.
type RentProvider interface {
	MinimumBalanceForRentExemption(ctx context.Context, dataLen uint64) (uint64, error)
}

// Submission phases, used for logging and metrics labels.
const (
	PhaseCreateAccount = "create_account"
	PhaseCreateBuffer  = "create_buffer"
	PhaseWrite         = "write"
	PhaseFinalize      = "finalize"
	PhaseDeploy        = "deploy"
	PhaseUpgrade       = "upgrade"
)

// Deployer drives deployment pipelines against a Backend.
type Deployer struct {
	backend     Backend
	logger      zerolog.Logger
	metrics     *metrics.Recorder
	concurrency int
	retries     int
	observer    Observer
}

type Option func(*Deployer)

func WithLogger(logger zerolog.Logger) Option {
	return func(d *Deployer) { d.logger = logger.With().Str("component", "deployer").Logger() }
}

func WithMetrics(r *metrics.Recorder) Option {
	return func(d *Deployer) { d.metrics = r }
}

// WithConcurrency caps in-flight buffer writes. It has no effect unless the
// backend implements ConcurrentSubmitter.
func WithConcurrency(n int) Option {
	return func(d *Deployer) { d.concurrency = n }
}

// WithBlockhashRetries resubmits a transaction with a fresh blockhash up to n
// times when the backend reports its blockhash as expired. Zero disables it.
func WithBlockhashRetries(n int) Option {
	return func(d *Deployer) { d.retries = n }
}

func WithObserver(o Observer) Option {
	return func(d *Deployer) { d.observer = o }
}

func NewDeployer(backend Backend, opts ...Option) *Deployer {
	d := &Deployer{
		backend: backend,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DeployProgram deploys the program image at programPath through the BPF
// loader v2 into the account of program.
func (d *Deployer) DeployProgram(ctx context.Context, programPath string, program, payer solana.PrivateKey) error {
	data, err := readProgram(programPath)
	if err != nil {
		return err
	}
	return d.DeployProgramBytes(ctx, data, program, payer)
}

// DeployProgramBytes is DeployProgram for an in-memory image.
func (d *Deployer) DeployProgramBytes(ctx context.Context, data []byte, program, payer solana.PrivateKey) error {
	target := program.PublicKey()
	s := &Session{
		Variant:    VariantFixed,
		Target:     target,
		Program:    target,
		ProgramLen: len(data),
		observer:   d.observe,
	}
	err := d.runFixed(ctx, s, data, program, payer)
	d.metrics.ObserveDeployment(string(VariantFixed), err)
	return err
}

func (d *Deployer) runFixed(ctx context.Context, s *Session, data []byte, program, payer solana.PrivateKey) error {
	if len(data) == 0 {
		return s.fail(errors.NewValidationError("deploy_program", "program image is empty"))
	}
	signers := []solana.PrivateKey{payer, program}

	size, err := CalculateChunkSize(func(offset uint32, b []byte) solana.Instruction {
		return loader.Write(s.Target, offset, b)
	}, signers)
	if err != nil {
		return s.fail(err)
	}
	if s.Chunks, err = SplitChunks(data, size); err != nil {
		return s.fail(err)
	}
	s.ChunkSize = size
	d.metrics.SetChunkSize(string(s.Variant), size)

	lamports, err := d.minimumBalance(ctx, uint64(len(data)))
	if err != nil {
		return s.fail(err)
	}
	create := system.NewCreateAccountInstruction(
		lamports,
		uint64(len(data)),
		loader.BPFLoaderProgramID,
		payer.PublicKey(),
		s.Target,
	).Build()
	if err := d.submit(ctx, PhaseCreateAccount, []solana.Instruction{create}, payer.PublicKey(), signers); err != nil {
		return s.fail(err)
	}
	s.transition(StateAccountAllocated)

	s.transition(StateWriting)
	for offset, b := range Chunks(data, size) {
		if err := d.writeChunk(ctx, s, loader.Write(s.Target, offset, b), offset, len(b), payer.PublicKey(), signers); err != nil {
			return s.fail(err)
		}
	}

	s.transition(StateFinalizing)
	if err := d.submit(ctx, PhaseFinalize, []solana.Instruction{loader.Finalize(s.Target)}, payer.PublicKey(), signers); err != nil {
		return s.fail(err)
	}
	s.transition(StateDeployed)
	return nil
}

// DeployUpgradeableProgram stages the image at programPath in buffer and
// then deploys it as program, or upgrades program when it already exists.
func (d *Deployer) DeployUpgradeableProgram(
	ctx context.Context,
	programPath string,
	buffer, bufferAuthority, program, payer solana.PrivateKey,
) error {
	data, err := readProgram(programPath)
	if err != nil {
		return err
	}
	return d.DeployUpgradeableProgramBytes(ctx, data, buffer, bufferAuthority, program, payer)
}

// DeployUpgradeableProgramBytes is DeployUpgradeableProgram for an in-memory image.
func (d *Deployer) DeployUpgradeableProgramBytes(
	ctx context.Context,
	data []byte,
	buffer, bufferAuthority, program, payer solana.PrivateKey,
) error {
	s := &Session{
		Variant:    VariantUpgradeable,
		Target:     buffer.PublicKey(),
		Program:    program.PublicKey(),
		Authority:  bufferAuthority.PublicKey(),
		ProgramLen: len(data),
		observer:   d.observe,
	}
	err := d.runUpgradeable(ctx, s, data, buffer, bufferAuthority, program, payer)
	d.metrics.ObserveDeployment(string(VariantUpgradeable), err)
	return err
}

func (d *Deployer) runUpgradeable(
	ctx context.Context,
	s *Session,
	data []byte,
	buffer, bufferAuthority, program, payer solana.PrivateKey,
) error {
	if len(data) == 0 {
		return s.fail(errors.NewValidationError("deploy_upgradeable_program", "program image is empty"))
	}
	// twice the image length leaves room for a larger upgrade
	maxLen := 2 * len(data)
	writeSigners := []solana.PrivateKey{payer, bufferAuthority}

	size, err := CalculateChunkSize(func(offset uint32, b []byte) solana.Instruction {
		return loader.WriteBuffer(s.Target, s.Authority, offset, b)
	}, writeSigners)
	if err != nil {
		return s.fail(err)
	}
	if s.Chunks, err = SplitChunks(data, size); err != nil {
		return s.fail(err)
	}
	s.ChunkSize = size
	d.metrics.SetChunkSize(string(s.Variant), size)

	lamports, err := d.minimumBalance(ctx, uint64(loader.SizeOfProgramData(maxLen)))
	if err != nil {
		return s.fail(err)
	}
	create := loader.CreateBuffer(payer.PublicKey(), s.Target, s.Authority, lamports, maxLen)
	if err := d.submit(ctx, PhaseCreateBuffer, create, payer.PublicKey(), []solana.PrivateKey{payer, buffer}); err != nil {
		return s.fail(err)
	}
	s.transition(StateBufferAllocated)

	s.transition(StateWriting)
	if err := d.writeBuffer(ctx, s, payer.PublicKey(), writeSigners); err != nil {
		return s.fail(err)
	}

	existing, err := d.backend.GetAccount(ctx, s.Program)
	if err != nil {
		return s.fail(errors.NewOrderingError("check_program_exists", "failed to look up program account", err).
			WithContext("program", s.Program.String()))
	}
	s.Upgrade = existing != nil

	s.transition(StateFinalizing)
	if s.Upgrade {
		ix, err := loader.UpgradeProgram(s.Program, s.Target, s.Authority, payer.PublicKey())
		if err != nil {
			return s.fail(errors.NewInternalError("upgrade", "failed to build upgrade instruction", err))
		}
		if err := d.submit(ctx, PhaseUpgrade, []solana.Instruction{ix}, payer.PublicKey(), writeSigners); err != nil {
			return s.fail(err)
		}
	} else {
		programLamports, err := d.minimumBalance(ctx, loader.SizeOfProgram)
		if err != nil {
			return s.fail(err)
		}
		ixs, err := loader.DeployWithMaxProgramLen(payer.PublicKey(), s.Program, s.Target, s.Authority, programLamports, maxLen)
		if err != nil {
			return s.fail(errors.NewInternalError("deploy", "failed to build deploy instructions", err))
		}
		signers := []solana.PrivateKey{payer, program, bufferAuthority}
		if err := d.submit(ctx, PhaseDeploy, ixs, payer.PublicKey(), signers); err != nil {
			return s.fail(err)
		}
	}
	s.transition(StateDeployed)
	return nil
}

// writeBuffer uploads every chunk of s into its buffer, concurrently when
// the backend allows it. All writes complete before it returns nil.
func (d *Deployer) writeBuffer(ctx context.Context, s *Session, payer solana.PublicKey, signers []solana.PrivateKey) error {
	limit := d.writeConcurrency()
	if limit <= 1 {
		for _, c := range s.Chunks {
			ix := loader.WriteBuffer(s.Target, s.Authority, c.Offset, c.Bytes)
			if err := d.writeChunk(ctx, s, ix, c.Offset, len(c.Bytes), payer, signers); err != nil {
				return err
			}
		}
		return nil
	}

	d.logger.Debug().Int("concurrency", limit).Int("chunks", len(s.Chunks)).Msg("writing buffer concurrently")
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, c := range s.Chunks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ix := loader.WriteBuffer(s.Target, s.Authority, c.Offset, c.Bytes)
			return d.writeChunk(gctx, s, ix, c.Offset, len(c.Bytes), payer, signers)
		})
	}
	return g.Wait()
}

func (d *Deployer) writeConcurrency() int {
	cs, ok := d.backend.(ConcurrentSubmitter)
	if !ok {
		return 1
	}
	limit := cs.MaxConcurrentSubmissions()
	if d.concurrency > 0 && d.concurrency < limit {
		limit = d.concurrency
	}
	return limit
}

func (d *Deployer) writeChunk(
	ctx context.Context,
	s *Session,
	ix solana.Instruction,
	offset uint32,
	n int,
	payer solana.PublicKey,
	signers []solana.PrivateKey,
) error {
	if err := d.submit(ctx, PhaseWrite, []solana.Instruction{ix}, payer, signers); err != nil {
		return errors.WrapError(err, errors.ErrCodeIO, PhaseWrite, "chunk write failed").WithContext("offset", offset)
	}
	d.metrics.AddProgramBytes(n)
	d.logger.Debug().
		Str("target", s.Target.String()).
		Uint32("offset", offset).
		Int("bytes", n).
		Msg("chunk written")
	return nil
}

// submit assembles ixs against a fresh blockhash and sends them. Only an
// expired blockhash is retried, and only when retries are enabled.
func (d *Deployer) submit(
	ctx context.Context,
	phase string,
	ixs []solana.Instruction,
	payer solana.PublicKey,
	signers []solana.PrivateKey,
) error {
	err := errors.RetryWithConfig(ctx, func() error {
		tx, err := txbuilder.FromInstructions(ctx, d.backend, ixs, payer, signers)
		if err != nil {
			return err
		}
		return d.backend.SendTransaction(ctx, tx)
	}, errors.BlockhashRetryConfig(d.retries))
	d.metrics.ObserveSubmission(phase, err)
	if err != nil {
		return errors.WrapError(err, errors.ErrCodeIO, phase, "transaction submission failed")
	}
	return nil
}

func (d *Deployer) minimumBalance(ctx context.Context, dataLen uint64) (uint64, error) {
	return MinimumBalance(ctx, d.backend, dataLen)
}

// MinimumBalance returns the rent-exempt balance for dataLen bytes, asking
// backend when it is a RentProvider.
func MinimumBalance(ctx context.Context, backend Backend, dataLen uint64) (uint64, error) {
	if rp, ok := backend.(RentProvider); ok {
		lamports, err := rp.MinimumBalanceForRentExemption(ctx, dataLen)
		if err != nil {
			return 0, errors.WrapError(err, errors.ErrCodeIO, "minimum_balance", "failed to get rent-exempt minimum")
		}
		return lamports, nil
	}
	return sysvar.DefaultRent().MinimumBalance(dataLen), nil
}

func (d *Deployer) observe(s *Session, from, to State) {
	event := d.logger.Info()
	if to == StateFailed {
		event = d.logger.Error().Err(s.Err)
	}
	event.
		Str("variant", string(s.Variant)).
		Str("program", s.Program.String()).
		Str("from", from.String()).
		Str("to", to.String()).
		Int("chunk_size", s.ChunkSize).
		Int("chunks", len(s.Chunks)).
		Msg("deployment state changed")
	if d.observer != nil {
		d.observer(s, from, to)
	}
}

func readProgram(path string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, errors.NewIOError("read_program", "failed to read program file", err).
			WithContext("path", path)
	}
	return data, nil
}
