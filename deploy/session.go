package deploy

import (
	"github.com/gagliardetto/solana-go"
)

// State is a phase of a deployment pipeline.
type State int

const (
	StateCreated State = iota
	StateAccountAllocated
	StateBufferAllocated
	StateWriting
	StateFinalizing
	StateDeployed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateAccountAllocated:
		return "account_allocated"
	case StateBufferAllocated:
		return "buffer_allocated"
	case StateWriting:
		return "writing"
	case StateFinalizing:
		return "finalizing"
	case StateDeployed:
		return "deployed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Variant names the loader a session deploys through.
type Variant string

const (
	VariantFixed       Variant = "fixed"
	VariantUpgradeable Variant = "upgradeable"
)

// Observer is notified of every state transition of a session.
type Observer func(s *Session, from, to State)

// Session is the ephemeral state of one deployment call.
type Session struct {
	Variant Variant

	// Target receives the chunk writes: the program account for the fixed
	// loader, the buffer for the upgradeable loader.
	Target    solana.PublicKey
	Program   solana.PublicKey
	Authority solana.PublicKey

	ProgramLen int
	ChunkSize  int
	Chunks     []Chunk

	// Upgrade is set once the upgradeable pipeline found an existing program.
	Upgrade bool

	State State
	Err   error

	observer Observer
}

func (s *Session) transition(to State) {
	from := s.State
	s.State = to
	if s.observer != nil {
		s.observer(s, from, to)
	}
}

func (s *Session) fail(err error) error {
	s.Err = err
	s.transition(StateFailed)
	return err
}
