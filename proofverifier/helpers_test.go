package proofverifier

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	addrA = common.HexToAddress("0x00000000000000000000000000000000000000A1")
	addrB = common.HexToAddress("0x00000000000000000000000000000000000000B2")
	addrC = common.HexToAddress("0x00000000000000000000000000000000000000C3")
	addrX = common.HexToAddress("0x00000000000000000000000000000000000000FF")
)

// stubRecoverer maps signature strings straight to signers.
type stubRecoverer struct {
	mu      sync.Mutex
	signers map[string]common.Address
	calls   []string
}

func newStubRecoverer(signers map[string]common.Address) *stubRecoverer {
	return &stubRecoverer{signers: signers}
}

func (s *stubRecoverer) Recover(ctx context.Context, msg CanonicalMessage, signature string) (common.Address, error) {
	s.mu.Lock()
	s.calls = append(s.calls, signature)
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return common.Address{}, newRecoveryError(RecoveryCanceled, "canceled", err)
	}
	if strings.HasPrefix(signature, "down") {
		return common.Address{}, newRecoveryError(RecoveryUnreachable, "verify call failed", errors.New("connection refused"))
	}
	addr, ok := s.signers[signature]
	if !ok {
		return common.Address{}, newRecoveryError(RecoveryRejected, "unknown signature", nil)
	}
	return addr, nil
}

func (s *stubRecoverer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// stubDuplicates returns a fixed percentage and records the ids it was given.
type stubDuplicates struct {
	mu  sync.Mutex
	pct float64
	ids [][]string
}

func (s *stubDuplicates) CheckDuplicates(ctx context.Context, ids []string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = append(s.ids, append([]string(nil), ids...))
	if len(ids) == 0 {
		return DuplicatePercentageNoIDs
	}
	return s.pct
}

func mustRoster(t interface{ Fatalf(string, ...any) }, addrs ...common.Address) *Roster {
	hexes := make([]string, len(addrs))
	for i, a := range addrs {
		hexes[i] = a.Hex()
	}
	r, err := NewRoster(hexes)
	if err != nil {
		t.Fatalf("failed to build roster: %v", err)
	}
	return r
}
