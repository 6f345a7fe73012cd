package bank

import (
	"fmt"

	"github.com/halbornteam/solana-test-framework/loader"
)

// processLoaderV2 stores and finalizes program images. Finalized programs
// are marked executable; their bytes are never run.
func processLoaderV2(ic *InvokeContext) error {
	ix, err := loader.DecodeLoaderInstruction(ic.Data)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInstructionData, err)
	}
	if err := ic.RequireSigner(0); err != nil {
		return err
	}
	acc, err := ic.Mutable(0)
	if err != nil {
		return err
	}
	if acc.Owner != ic.ProgramID {
		return ErrInvalidAccountOwner
	}
	if acc.Executable {
		return ErrAccountAlreadyInitialized
	}

	switch ix.Tag {
	case loader.V2Write:
		return writeAt(acc.Data, 0, ix.Offset, ix.Bytes)
	default:
		acc.Executable = true
		return nil
	}
}

// writeAt copies b into data at base+offset.
func writeAt(data []byte, base int, offset uint32, b []byte) error {
	start := uint64(base) + uint64(offset)
	if start+uint64(len(b)) > uint64(len(data)) {
		return ErrAccountDataTooSmall
	}
	copy(data[start:], b)
	return nil
}

func processUpgradeableLoader(ic *InvokeContext) error {
	ix, err := loader.DecodeUpgradeableInstruction(ic.Data)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInstructionData, err)
	}
	switch ix.Tag {
	case loader.InitializeBuffer:
		return initializeBuffer(ic)
	case loader.UpgradeableWrite:
		return writeBuffer(ic, ix.Offset, ix.Bytes)
	case loader.DeployWithMaxDataLen:
		return deployWithMaxDataLen(ic, ix.MaxDataLen)
	default:
		return upgrade(ic)
	}
}

// accounts: [buffer (w), authority]
func initializeBuffer(ic *InvokeContext) error {
	if err := ic.RequireAccounts(2); err != nil {
		return err
	}
	buffer, err := ic.Mutable(0)
	if err != nil {
		return err
	}
	if buffer.Owner != ic.ProgramID {
		return ErrInvalidAccountOwner
	}
	if len(buffer.Data) < loader.BufferMetadataSize {
		return ErrAccountDataTooSmall
	}
	state, err := loader.DecodeState(buffer.Data)
	if err != nil || state.Type != loader.StateUninitialized {
		return ErrAccountAlreadyInitialized
	}
	authority := ic.Accounts[1].Key
	return putState(buffer.Data, loader.State{Type: loader.StateBuffer, Authority: &authority})
}

// accounts: [buffer (w), authority (s)]
func writeBuffer(ic *InvokeContext, offset uint32, b []byte) error {
	if err := ic.RequireAccounts(2); err != nil {
		return err
	}
	buffer, err := ic.Mutable(0)
	if err != nil {
		return err
	}
	if err := checkBufferAuthority(ic, buffer.Data, 1); err != nil {
		return err
	}
	return writeAt(buffer.Data, loader.BufferMetadataSize, offset, b)
}

// accounts: [payer (s, w), program data (w), program (w), buffer (w),
// rent, clock, system program, authority (s)]
func deployWithMaxDataLen(ic *InvokeContext, maxDataLen uint64) error {
	if err := ic.RequireAccounts(8); err != nil {
		return err
	}
	if err := ic.RequireSigner(0); err != nil {
		return err
	}

	program, err := ic.Mutable(2)
	if err != nil {
		return err
	}
	if program.Owner != ic.ProgramID {
		return ErrInvalidAccountOwner
	}
	if program.Executable || len(program.Data) < loader.SizeOfProgram {
		return ErrAccountAlreadyInitialized
	}
	if state, err := loader.DecodeState(program.Data); err != nil || state.Type != loader.StateUninitialized {
		return ErrAccountAlreadyInitialized
	}

	buffer, err := ic.Mutable(3)
	if err != nil {
		return err
	}
	if err := checkBufferAuthority(ic, buffer.Data, 7); err != nil {
		return err
	}
	image := buffer.Data[loader.BufferMetadataSize:]
	if maxDataLen < uint64(len(image)) || maxDataLen > MaxPermittedDataLength-loader.ProgramDataMetadataSize {
		return ErrInvalidArgument
	}

	programKey := ic.Accounts[2].Key
	expected, err := loader.ProgramDataAddress(programKey)
	if err != nil || expected != ic.Accounts[1].Key {
		return ErrInvalidArgument
	}
	programData, err := ic.Mutable(1)
	if err != nil {
		return err
	}
	if programData.Lamports > 0 || len(programData.Data) > 0 {
		return ErrAccountAlreadyInUse
	}

	// drain the buffer into the payer, then fund program data from it
	if err := ic.Transfer(3, 0, buffer.Lamports); err != nil {
		return err
	}
	size := uint64(loader.SizeOfProgramData(int(maxDataLen)))
	if err := ic.Transfer(0, 1, ic.Rent.MinimumBalance(size)); err != nil {
		return err
	}

	authority := ic.Accounts[7].Key
	data := make([]byte, size)
	if err := putState(data, loader.State{Type: loader.StateProgramData, Slot: ic.Clock.Slot, Authority: &authority}); err != nil {
		return err
	}
	copy(data[loader.ProgramDataMetadataSize:], image)
	programData.Data = data
	programData.Owner = ic.ProgramID

	if err := putState(program.Data, loader.State{Type: loader.StateProgram, ProgramData: expected}); err != nil {
		return err
	}
	program.Executable = true
	buffer.Data = nil
	return nil
}

// accounts: [program data (w), program (w), buffer (w), spill (w), rent,
// clock, authority (s)]
func upgrade(ic *InvokeContext) error {
	if err := ic.RequireAccounts(7); err != nil {
		return err
	}

	program, err := ic.Account(1)
	if err != nil {
		return err
	}
	if program.Owner != ic.ProgramID || !program.Executable {
		return ErrInvalidAccountData
	}
	programState, err := loader.DecodeState(program.Data)
	if err != nil || programState.Type != loader.StateProgram || programState.ProgramData != ic.Accounts[0].Key {
		return ErrInvalidAccountData
	}

	programData, err := ic.Mutable(0)
	if err != nil {
		return err
	}
	dataState, err := loader.DecodeState(programData.Data)
	if err != nil || dataState.Type != loader.StateProgramData {
		return ErrInvalidAccountData
	}
	if dataState.Authority == nil {
		return ErrImmutable
	}
	if *dataState.Authority != ic.Accounts[6].Key {
		return ErrIncorrectAuthority
	}
	if err := ic.RequireSigner(6); err != nil {
		return err
	}

	buffer, err := ic.Mutable(2)
	if err != nil {
		return err
	}
	if err := checkBufferAuthority(ic, buffer.Data, 6); err != nil {
		return err
	}
	image := buffer.Data[loader.BufferMetadataSize:]
	region := programData.Data[loader.ProgramDataMetadataSize:]
	if len(image) > len(region) {
		return ErrAccountDataTooSmall
	}

	dataState.Slot = ic.Clock.Slot
	if err := putState(programData.Data, dataState); err != nil {
		return err
	}
	clear(region[copy(region, image):])

	// everything above the rent-exempt minimum of program data is spilled
	if err := ic.Transfer(2, 3, buffer.Lamports); err != nil {
		return err
	}
	if excess := programData.Lamports - min(programData.Lamports, ic.Rent.MinimumBalance(uint64(len(programData.Data)))); excess > 0 {
		if err := ic.Transfer(0, 3, excess); err != nil {
			return err
		}
	}
	buffer.Data = nil
	return nil
}

// checkBufferAuthority requires data to be an initialized buffer whose
// authority is the signing instruction account at authority.
func checkBufferAuthority(ic *InvokeContext, data []byte, authority int) error {
	if len(data) < loader.BufferMetadataSize {
		return ErrInvalidAccountData
	}
	state, err := loader.DecodeState(data)
	if err != nil || state.Type != loader.StateBuffer {
		return ErrInvalidAccountData
	}
	if state.Authority == nil {
		return ErrImmutable
	}
	key, err := ic.Key(authority)
	if err != nil {
		return err
	}
	if *state.Authority != key {
		return ErrIncorrectAuthority
	}
	return ic.RequireSigner(authority)
}

func putState(data []byte, state loader.State) error {
	b, err := state.Bytes()
	if err != nil {
		return err
	}
	if len(b) > len(data) {
		return ErrAccountDataTooSmall
	}
	copy(data, b)
	return nil
}
