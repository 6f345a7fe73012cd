package bank

import (
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// System program instruction tags.
const (
	systemCreateAccount uint32 = 0
	systemAssign        uint32 = 1
	systemTransfer      uint32 = 2
	systemAllocate      uint32 = 8
)

// MaxPermittedDataLength caps the data of a single account.
const MaxPermittedDataLength = 10 * 1024 * 1024

func processSystem(ic *InvokeContext) error {
	dec := bin.NewBinDecoder(ic.Data)
	tag, err := dec.ReadUint32(bin.LE)
	if err != nil {
		return ErrInvalidInstructionData
	}

	switch tag {
	case systemCreateAccount:
		lamports, space, owner, err := readCreateAccount(dec)
		if err != nil {
			return err
		}
		return createAccount(ic, lamports, space, owner)
	case systemAssign:
		owner, err := readKey(dec)
		if err != nil {
			return err
		}
		return assign(ic, owner)
	case systemTransfer:
		lamports, err := dec.ReadUint64(bin.LE)
		if err != nil {
			return ErrInvalidInstructionData
		}
		return transfer(ic, lamports)
	case systemAllocate:
		space, err := dec.ReadUint64(bin.LE)
		if err != nil {
			return ErrInvalidInstructionData
		}
		return allocate(ic, space)
	default:
		return ErrInvalidInstructionData
	}
}

func readCreateAccount(dec *bin.Decoder) (uint64, uint64, solana.PublicKey, error) {
	lamports, err := dec.ReadUint64(bin.LE)
	if err != nil {
		return 0, 0, solana.PublicKey{}, ErrInvalidInstructionData
	}
	space, err := dec.ReadUint64(bin.LE)
	if err != nil {
		return 0, 0, solana.PublicKey{}, ErrInvalidInstructionData
	}
	owner, err := readKey(dec)
	return lamports, space, owner, err
}

func readKey(dec *bin.Decoder) (solana.PublicKey, error) {
	b, err := dec.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		return solana.PublicKey{}, ErrInvalidInstructionData
	}
	return solana.PublicKeyFromBytes(b), nil
}

// accounts: [funder (s, w), new (s, w)]
func createAccount(ic *InvokeContext, lamports, space uint64, owner solana.PublicKey) error {
	if err := ic.RequireAccounts(2); err != nil {
		return err
	}
	if err := ic.RequireSigner(0); err != nil {
		return err
	}
	if err := ic.RequireSigner(1); err != nil {
		return err
	}
	existing, err := ic.Account(1)
	if err != nil {
		return err
	}
	if existing.Lamports > 0 || len(existing.Data) > 0 || existing.Owner != solana.SystemProgramID {
		return ErrAccountAlreadyInUse
	}
	if space > MaxPermittedDataLength {
		return ErrInvalidArgument
	}
	if err := ic.Transfer(0, 1, lamports); err != nil {
		return err
	}
	acc, err := ic.Mutable(1)
	if err != nil {
		return err
	}
	acc.Data = make([]byte, space)
	acc.Owner = owner
	return nil
}

// accounts: [account (s, w)]
func assign(ic *InvokeContext, owner solana.PublicKey) error {
	if err := ic.RequireSigner(0); err != nil {
		return err
	}
	acc, err := ic.Mutable(0)
	if err != nil {
		return err
	}
	if acc.Owner == owner {
		return nil
	}
	if acc.Owner != solana.SystemProgramID {
		return ErrInvalidAccountOwner
	}
	acc.Owner = owner
	return nil
}

// accounts: [from (s, w), to (w)]
func transfer(ic *InvokeContext, lamports uint64) error {
	if err := ic.RequireAccounts(2); err != nil {
		return err
	}
	if err := ic.RequireSigner(0); err != nil {
		return err
	}
	from, err := ic.Account(0)
	if err != nil {
		return err
	}
	if len(from.Data) > 0 {
		return ErrInvalidArgument
	}
	if from.Owner != solana.SystemProgramID {
		return ErrInvalidAccountOwner
	}
	return ic.Transfer(0, 1, lamports)
}

// accounts: [account (s, w)]
func allocate(ic *InvokeContext, space uint64) error {
	if err := ic.RequireSigner(0); err != nil {
		return err
	}
	acc, err := ic.Mutable(0)
	if err != nil {
		return err
	}
	if len(acc.Data) > 0 || acc.Owner != solana.SystemProgramID {
		return ErrAccountAlreadyInUse
	}
	if space > MaxPermittedDataLength {
		return ErrInvalidArgument
	}
	acc.Data = make([]byte, space)
	return nil
}
