package deploy

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/halbornteam/solana-test-framework/errors"
	"github.com/halbornteam/solana-test-framework/ledger"
	"github.com/halbornteam/solana-test-framework/loader"
	"github.com/halbornteam/solana-test-framework/metrics"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend records every submitted transaction.
type fakeBackend struct {
	mu       sync.Mutex
	sent     []*solana.Transaction
	failAt   int // 1-based submission to reject
	failErr  error
	stale    int // leading submissions rejected with an expired blockhash
	accounts map[solana.PublicKey]*ledger.Account
	getErr   error
	hashes   int
}

func (f *fakeBackend) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hashes++
	return solana.Hash{byte(f.hashes)}, nil
}

func (f *fakeBackend) SendTransaction(ctx context.Context, tx *solana.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	if f.stale > 0 {
		f.stale--
		return errors.NewBlockhashError("send_transaction", "blockhash not found", nil)
	}
	if f.failAt > 0 && len(f.sent) == f.failAt {
		return f.failErr
	}
	return tx.VerifySignatures()
}

func (f *fakeBackend) GetAccount(ctx context.Context, key solana.PublicKey) (*ledger.Account, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.accounts[key], nil
}

type concurrentBackend struct {
	*fakeBackend
	limit int
}

func (c concurrentBackend) MaxConcurrentSubmissions() int { return c.limit }

type sentIx struct {
	programID solana.PublicKey
	data      []byte
}

func instructionsOf(tx *solana.Transaction) []sentIx {
	out := make([]sentIx, 0, len(tx.Message.Instructions))
	for _, ci := range tx.Message.Instructions {
		out = append(out, sentIx{
			programID: tx.Message.AccountKeys[ci.ProgramIDIndex],
			data:      ci.Data,
		})
	}
	return out
}

func programImage(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

type stateLog struct {
	mu     sync.Mutex
	states []State
}

func (l *stateLog) observe(_ *Session, _, to State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, to)
}

func TestDeployProgram(t *testing.T) {
	payer := solana.NewWallet().PrivateKey
	program := solana.NewWallet().PrivateKey
	data := programImage(3000)

	backend := &fakeBackend{}
	log := &stateLog{}
	recorder := metrics.NewRecorder()
	d := NewDeployer(backend, WithLogger(zerolog.Nop()), WithObserver(log.observe), WithMetrics(recorder))

	require.NoError(t, d.DeployProgramBytes(context.Background(), data, program, payer))

	// create + ceil(3000/949) writes + finalize
	require.Len(t, backend.sent, 1+4+1)
	assert.Equal(t, []State{StateAccountAllocated, StateWriting, StateFinalizing, StateDeployed}, log.states)

	create := instructionsOf(backend.sent[0])
	require.Len(t, create, 1)
	assert.Equal(t, solana.SystemProgramID, create[0].programID)

	var written []byte
	for i, tx := range backend.sent[1:5] {
		ixs := instructionsOf(tx)
		require.Len(t, ixs, 1)
		assert.Equal(t, loader.BPFLoaderProgramID, ixs[0].programID)
		decoded, err := loader.DecodeLoaderInstruction(ixs[0].data)
		require.NoError(t, err)
		assert.Equal(t, loader.V2Write, decoded.Tag)
		assert.Equal(t, uint32(i*949), decoded.Offset)
		written = append(written, decoded.Bytes...)
		assert.Len(t, tx.Signatures, 2)
	}
	assert.Equal(t, data, written)

	finalize := instructionsOf(backend.sent[5])
	decoded, err := loader.DecodeLoaderInstruction(finalize[0].data)
	require.NoError(t, err)
	assert.Equal(t, loader.V2Finalize, decoded.Tag)

	snap, err := recorder.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 4.0, snap["soltest_transactions_submitted_total{phase=write,result=success}"])
	assert.Equal(t, 3000.0, snap["soltest_program_bytes_written_total"])
	assert.Equal(t, 1.0, snap["soltest_deployments_total{result=success,variant=fixed}"])
	assert.Equal(t, 949.0, snap["soltest_chunk_size_bytes{variant=fixed}"])
}

func TestDeployProgram_FailureHaltsWrites(t *testing.T) {
	payer := solana.NewWallet().PrivateKey
	program := solana.NewWallet().PrivateKey

	rejected := errors.NewProtocolError("send_transaction", "instruction 0 failed", nil)
	backend := &fakeBackend{failAt: 3, failErr: rejected}
	log := &stateLog{}
	d := NewDeployer(backend, WithObserver(log.observe))

	err := d.DeployProgramBytes(context.Background(), programImage(5000), program, payer)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeProtocol))

	// create, first write, failing second write; nothing after
	assert.Len(t, backend.sent, 3)
	assert.Equal(t, StateFailed, log.states[len(log.states)-1])
	assert.NotContains(t, log.states, StateFinalizing)

	var fe *errors.FrameworkError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, uint32(949), fe.Context["offset"])
}

func TestDeployProgram_CreateFailure(t *testing.T) {
	backend := &fakeBackend{failAt: 1, failErr: assert.AnError}
	log := &stateLog{}
	d := NewDeployer(backend, WithObserver(log.observe))

	err := d.DeployProgramBytes(context.Background(), programImage(10), solana.NewWallet().PrivateKey, solana.NewWallet().PrivateKey)
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.True(t, errors.IsCode(err, errors.ErrCodeIO))
	assert.Len(t, backend.sent, 1)
	assert.Equal(t, []State{StateFailed}, log.states)
}

func TestDeployProgram_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "noop.so")
	require.NoError(t, os.WriteFile(path, programImage(100), 0o600))

	backend := &fakeBackend{}
	d := NewDeployer(backend)

	require.NoError(t, d.DeployProgram(context.Background(), path, solana.NewWallet().PrivateKey, solana.NewWallet().PrivateKey))
	assert.Len(t, backend.sent, 3)

	err := d.DeployProgram(context.Background(), filepath.Join(dir, "missing.so"), solana.NewWallet().PrivateKey, solana.NewWallet().PrivateKey)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeIO))
	assert.Len(t, backend.sent, 3)
}

func TestDeployProgram_EmptyImage(t *testing.T) {
	backend := &fakeBackend{}
	d := NewDeployer(backend)

	err := d.DeployProgramBytes(context.Background(), nil, solana.NewWallet().PrivateKey, solana.NewWallet().PrivateKey)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
	assert.Empty(t, backend.sent)
}

func TestDeployUpgradeableProgram(t *testing.T) {
	payer := solana.NewWallet().PrivateKey
	buffer := solana.NewWallet().PrivateKey
	authority := solana.NewWallet().PrivateKey
	program := solana.NewWallet().PrivateKey
	data := programImage(2000)

	t.Run("deploys when program is absent", func(t *testing.T) {
		backend := &fakeBackend{}
		log := &stateLog{}
		d := NewDeployer(backend, WithObserver(log.observe))

		require.NoError(t, d.DeployUpgradeableProgramBytes(context.Background(), data, buffer, authority, program, payer))
		assert.Equal(t, []State{StateBufferAllocated, StateWriting, StateFinalizing, StateDeployed}, log.states)

		// create buffer + ceil(2000/916) writes + deploy
		require.Len(t, backend.sent, 1+3+1)

		create := instructionsOf(backend.sent[0])
		require.Len(t, create, 2)
		init, err := loader.DecodeUpgradeableInstruction(create[1].data)
		require.NoError(t, err)
		assert.Equal(t, loader.InitializeBuffer, init.Tag)

		deploy := backend.sent[4]
		assert.Len(t, deploy.Signatures, 3)
		ixs := instructionsOf(deploy)
		require.Len(t, ixs, 2)
		decoded, err := loader.DecodeUpgradeableInstruction(ixs[1].data)
		require.NoError(t, err)
		assert.Equal(t, loader.DeployWithMaxDataLen, decoded.Tag)
		assert.Equal(t, uint64(4000), decoded.MaxDataLen)
	})

	t.Run("upgrades when program exists", func(t *testing.T) {
		backend := &fakeBackend{accounts: map[solana.PublicKey]*ledger.Account{
			program.PublicKey(): {Lamports: 1, Owner: loader.BPFLoaderUpgradeableProgramID, Executable: true},
		}}
		d := NewDeployer(backend)

		require.NoError(t, d.DeployUpgradeableProgramBytes(context.Background(), data, buffer, authority, program, payer))

		upgrade := backend.sent[len(backend.sent)-1]
		assert.Len(t, upgrade.Signatures, 2)
		for _, key := range upgrade.Message.AccountKeys {
			assert.Falsef(t, key.Equals(program.PublicKey()) && upgrade.Message.IsSigner(key), "program keypair must not sign an upgrade")
		}
		ixs := instructionsOf(upgrade)
		require.Len(t, ixs, 1)
		decoded, err := loader.DecodeUpgradeableInstruction(ixs[0].data)
		require.NoError(t, err)
		assert.Equal(t, loader.Upgrade, decoded.Tag)
	})

	t.Run("existence check failure is not treated as absent", func(t *testing.T) {
		backend := &fakeBackend{getErr: assert.AnError}
		log := &stateLog{}
		d := NewDeployer(backend, WithObserver(log.observe))

		err := d.DeployUpgradeableProgramBytes(context.Background(), data, buffer, authority, program, payer)
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.ErrCodeOrdering))
		assert.ErrorIs(t, err, assert.AnError)
		assert.Len(t, backend.sent, 1+3)
		assert.NotContains(t, log.states, StateFinalizing)
	})

	t.Run("write failure skips finalize", func(t *testing.T) {
		backend := &fakeBackend{failAt: 2, failErr: assert.AnError}
		d := NewDeployer(backend)

		err := d.DeployUpgradeableProgramBytes(context.Background(), data, buffer, authority, program, payer)
		require.Error(t, err)
		assert.Len(t, backend.sent, 2)
	})
}

func TestDeployUpgradeableProgram_ConcurrentWrites(t *testing.T) {
	payer := solana.NewWallet().PrivateKey
	buffer := solana.NewWallet().PrivateKey
	authority := solana.NewWallet().PrivateKey
	program := solana.NewWallet().PrivateKey
	data := programImage(20_000)

	backend := concurrentBackend{fakeBackend: &fakeBackend{}, limit: 4}
	d := NewDeployer(backend)

	require.NoError(t, d.DeployUpgradeableProgramBytes(context.Background(), data, buffer, authority, program, payer))

	chunks, err := SplitChunks(data, 916)
	require.NoError(t, err)
	sent := backend.sent
	require.Len(t, sent, 1+len(chunks)+1)

	var offsets []int
	for _, tx := range sent[1 : len(sent)-1] {
		decoded, err := loader.DecodeUpgradeableInstruction(instructionsOf(tx)[0].data)
		require.NoError(t, err)
		require.Equal(t, loader.UpgradeableWrite, decoded.Tag)
		offsets = append(offsets, int(decoded.Offset))
	}
	sort.Ints(offsets)
	for i, c := range chunks {
		assert.Equal(t, int(c.Offset), offsets[i])
	}

	last, err := loader.DecodeUpgradeableInstruction(instructionsOf(sent[len(sent)-1])[1].data)
	require.NoError(t, err)
	assert.Equal(t, loader.DeployWithMaxDataLen, last.Tag)
}

func TestDeployer_WriteConcurrency(t *testing.T) {
	assert.Equal(t, 1, NewDeployer(&fakeBackend{}, WithConcurrency(8)).writeConcurrency())
	assert.Equal(t, 4, NewDeployer(concurrentBackend{fakeBackend: &fakeBackend{}, limit: 4}).writeConcurrency())
	assert.Equal(t, 2, NewDeployer(concurrentBackend{fakeBackend: &fakeBackend{}, limit: 4}, WithConcurrency(2)).writeConcurrency())
}

func TestDeployer_BlockhashRetry(t *testing.T) {
	payer := solana.NewWallet().PrivateKey
	program := solana.NewWallet().PrivateKey

	t.Run("disabled by default", func(t *testing.T) {
		backend := &fakeBackend{stale: 1}
		err := NewDeployer(backend).DeployProgramBytes(context.Background(), programImage(10), program, payer)
		require.Error(t, err)
		assert.True(t, errors.IsBlockhashExpired(err))
		assert.Len(t, backend.sent, 1)
	})

	t.Run("resubmits with a fresh blockhash", func(t *testing.T) {
		backend := &fakeBackend{stale: 1}
		err := NewDeployer(backend, WithBlockhashRetries(1)).DeployProgramBytes(context.Background(), programImage(10), program, payer)
		require.NoError(t, err)
		require.Len(t, backend.sent, 4)
		assert.NotEqual(t, backend.sent[0].Message.RecentBlockhash, backend.sent[1].Message.RecentBlockhash)
		assert.NotEqual(t, backend.sent[0].Signatures[0], backend.sent[1].Signatures[0])
	})
}
