package proofverifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"

	"dlp-proof/shared"
)

// SignatureRecoverer returns the address that signed msg, or a *RecoveryError.
type SignatureRecoverer interface {
	Recover(ctx context.Context, msg CanonicalMessage, signature string) (common.Address, error)
}

const verifyMethod = "verify"

// VerifierABI is the interface of the pool's verifier contract:
// verify(Message{payload}, signature) returns the EIP-712 signer.
const VerifierABI = `[
	{
		"type": "function",
		"name": "verify",
		"stateMutability": "view",
		"inputs": [
			{
				"name": "message",
				"type": "tuple",
				"internalType": "struct Message",
				"components": [{"name": "payload", "type": "string", "internalType": "string"}]
			},
			{"name": "signature", "type": "bytes", "internalType": "bytes"}
		],
		"outputs": [{"name": "", "type": "address", "internalType": "address"}]
	}
]`

// verifyMessage is the Go side of the contract's Message tuple.
type verifyMessage struct {
	Payload string `abi:"payload"`
}

// ParseVerifierABI reads a contract ABI, either a bare ABI array or a compiled
// artifact with an "abi" field, and checks that it exposes verify.
func ParseVerifierABI(r io.Reader) (abi.ABI, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to read verifier ABI: %w", err)
	}
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '{' {
		var artifact struct {
			ABI json.RawMessage `json:"abi"`
		}
		if err := json.Unmarshal(trimmed, &artifact); err != nil {
			return abi.ABI{}, fmt.Errorf("failed to parse contract artifact: %w", err)
		}
		if len(artifact.ABI) == 0 {
			return abi.ABI{}, errors.New("contract artifact has no abi field")
		}
		raw = artifact.ABI
	}

	parsed, err := abi.JSON(bytes.NewReader(raw))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to parse verifier ABI: %w", err)
	}
	method, ok := parsed.Methods[verifyMethod]
	if !ok {
		return abi.ABI{}, fmt.Errorf("verifier ABI has no %q method", verifyMethod)
	}
	if len(method.Inputs) != 2 || len(method.Outputs) != 1 {
		return abi.ABI{}, fmt.Errorf("verifier ABI %q must take (message, signature) and return an address", verifyMethod)
	}
	return parsed, nil
}

// DefaultVerifierABI parses VerifierABI.
func DefaultVerifierABI() (abi.ABI, error) {
	return ParseVerifierABI(strings.NewReader(VerifierABI))
}

// ContractRecoverer asks the verifier contract to recover the signer with a
// single eth_call per signature.
type ContractRecoverer struct {
	caller   ethereum.ContractCaller
	contract common.Address
	abi      abi.ABI
}

func NewContractRecoverer(caller ethereum.ContractCaller, contract common.Address, contractABI abi.ABI) (*ContractRecoverer, error) {
	if caller == nil {
		return nil, errors.New("contract caller is nil")
	}
	if contract == (common.Address{}) {
		return nil, errors.New("verifier contract address is empty")
	}
	if _, ok := contractABI.Methods[verifyMethod]; !ok {
		return nil, fmt.Errorf("verifier ABI has no %q method", verifyMethod)
	}
	return &ContractRecoverer{caller: caller, contract: contract, abi: contractABI}, nil
}

func (r *ContractRecoverer) Recover(ctx context.Context, msg CanonicalMessage, signature string) (common.Address, error) {
	sig, err := shared.DecodeSignature(signature)
	if err != nil {
		return common.Address{}, newRecoveryError(RecoveryMalformedSignature, "signature is not a 65 byte hex string", err)
	}

	input, err := r.abi.Pack(verifyMethod, verifyMessage{Payload: msg.Payload}, sig)
	if err != nil {
		return common.Address{}, newRecoveryError(RecoveryMalformedSignature, "failed to encode verify call", err)
	}

	contract := r.contract
	out, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: input}, nil)
	if err != nil {
		return common.Address{}, classifyCallError(ctx, err)
	}

	values, err := r.abi.Unpack(verifyMethod, out)
	if err != nil {
		return common.Address{}, newRecoveryError(RecoveryMalformedResponse, "failed to decode verify result", err)
	}
	if len(values) != 1 {
		return common.Address{}, newRecoveryError(RecoveryMalformedResponse, fmt.Sprintf("verify returned %d values", len(values)), nil)
	}
	addr, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, newRecoveryError(RecoveryMalformedResponse, fmt.Sprintf("verify returned %T", values[0]), nil)
	}
	// ecrecover yields the zero address for signatures it cannot use
	if addr == (common.Address{}) {
		return common.Address{}, newRecoveryError(RecoveryRejected, "verifier recovered the zero address", nil)
	}

	return addr, nil
}

// classifyCallError separates "the node answered with an error" (reverts,
// JSON-RPC errors) from "the node could not be reached".
func classifyCallError(ctx context.Context, err error) *RecoveryError {
	if ctx.Err() != nil {
		return newRecoveryError(RecoveryCanceled, "verify call abandoned", err)
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return newRecoveryError(RecoveryRejected, fmt.Sprintf("verifier returned error code %d", rpcErr.ErrorCode()), err)
	}
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		return newRecoveryError(RecoveryRejected, "verifier reverted", err)
	}
	return newRecoveryError(RecoveryUnreachable, "verify call failed", err)
}

// LocalRecoverer recovers the EIP-712 signer without talking to a node. It uses
// the verifier contract's domain, so both backends agree on every signature.
type LocalRecoverer struct {
	domain shared.TypedDataDomain
}

func NewLocalRecoverer(domain shared.TypedDataDomain) *LocalRecoverer {
	return &LocalRecoverer{domain: domain}
}

func (r *LocalRecoverer) Recover(ctx context.Context, msg CanonicalMessage, signature string) (common.Address, error) {
	if err := ctx.Err(); err != nil {
		return common.Address{}, newRecoveryError(RecoveryCanceled, "recovery abandoned", err)
	}
	sig, err := shared.DecodeSignature(signature)
	if err != nil {
		return common.Address{}, newRecoveryError(RecoveryMalformedSignature, "signature is not a 65 byte hex string", err)
	}
	addr, err := shared.RecoverTypedSigner(r.domain, msg.Payload, sig)
	if err != nil {
		return common.Address{}, newRecoveryError(RecoveryRejected, "signature does not recover", err)
	}
	return addr, nil
}
