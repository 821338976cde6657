package proofverifier

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Roster is the immutable, case-insensitive set of authorized pullers.
type Roster struct {
	members map[string]struct{}
}

// NewRoster validates and lower-cases addresses. Duplicates collapse.
func NewRoster(addresses []string) (*Roster, error) {
	members := make(map[string]struct{}, len(addresses))
	for _, a := range addresses {
		a = strings.TrimSpace(a)
		if !common.IsHexAddress(a) {
			return nil, fmt.Errorf("invalid puller address %q", a)
		}
		members[strings.ToLower(common.HexToAddress(a).Hex())] = struct{}{}
	}
	return &Roster{members: members}, nil
}

func (r *Roster) Size() int {
	if r == nil {
		return 0
	}
	return len(r.members)
}

func (r *Roster) Contains(address string) bool {
	if r == nil {
		return false
	}
	_, ok := r.members[strings.ToLower(address)]
	return ok
}

// Addresses returns the members, lower-cased and sorted.
func (r *Roster) Addresses() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.members))
	for a := range r.members {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Quorum is the number of distinct authorized signers an entry needs:
// more than a third of the roster, and never less than one.
func Quorum(rosterSize int) int {
	return max(1, rosterSize/3+1)
}

// ThresholdChecker decides whether enough distinct pullers attest an entry.
type ThresholdChecker struct {
	roster    *Roster
	recoverer SignatureRecoverer
	logger    *zap.Logger
}

func NewThresholdChecker(roster *Roster, recoverer SignatureRecoverer) *ThresholdChecker {
	return &ThresholdChecker{roster: roster, recoverer: recoverer, logger: logger}
}

func (c *ThresholdChecker) Quorum() int {
	return Quorum(c.roster.Size())
}

// Passes reports whether the signatures meet quorum for msg.
func (c *ThresholdChecker) Passes(ctx context.Context, msg CanonicalMessage, signatures []string) bool {
	return c.Check(ctx, msg, signatures).Passed
}

// Check recovers every non-empty signature and counts distinct signers that are
// on the roster. Signature order never changes the verdict.
func (c *ThresholdChecker) Check(ctx context.Context, msg CanonicalMessage, signatures []string) SignatureVerdict {
	authorized := make(map[string]struct{})
	unauthorized := make(map[string]struct{})
	var verdict SignatureVerdict

	for i, sig := range signatures {
		if strings.TrimSpace(sig) == "" {
			continue
		}
		addr, err := c.recoverer.Recover(ctx, msg, sig)
		if err != nil {
			c.logger.Debug("Signature recovery failed",
				zap.String("component", "ThresholdChecker"),
				zap.Int("signature_index", i),
				zap.String("kind", string(RecoveryKindOf(err))),
				zap.Error(err))
			verdict.Failures = append(verdict.Failures, err)
			continue
		}
		signer := strings.ToLower(addr.Hex())
		if c.roster.Contains(signer) {
			authorized[signer] = struct{}{}
		} else {
			unauthorized[signer] = struct{}{}
		}
	}

	verdict.Signers = sortedKeys(authorized)
	verdict.Unauthorized = sortedKeys(unauthorized)
	verdict.Passed = len(authorized) >= c.Quorum()
	return verdict
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
