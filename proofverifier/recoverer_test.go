package proofverifier

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/require"

	"dlp-proof/shared"
)

var testDomain = shared.TypedDataDomain{
	Name:              "DataVerifier",
	Version:           "1",
	ChainID:           14800,
	VerifyingContract: common.HexToAddress("0x1111111111111111111111111111111111111111"),
}

// fakeVerifier answers eth_call the way the deployed verifier does: it decodes
// verify(message, signature) and returns the EIP-712 signer, or the zero
// address when ecrecover fails.
type fakeVerifier struct {
	abi    abi.ABI
	domain shared.TypedDataDomain
	err    error
	output []byte
	calls  int
}

func (f *fakeVerifier) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.output != nil {
		return f.output, nil
	}

	method, err := f.abi.MethodById(call.Data[:4])
	if err != nil {
		return nil, err
	}
	args, err := method.Inputs.Unpack(call.Data[4:])
	if err != nil {
		return nil, err
	}
	msg := *abi.ConvertType(args[0], new(verifyMessage)).(*verifyMessage)
	sig := args[1].([]byte)

	addr, err := shared.RecoverTypedSigner(f.domain, msg.Payload, sig)
	if err != nil {
		addr = common.Address{}
	}
	return method.Outputs.Pack(addr)
}

type fakeRPCError struct{ code int }

func (e fakeRPCError) Error() string  { return "execution reverted" }
func (e fakeRPCError) ErrorCode() int { return e.code }

func newFakeVerifier(t *testing.T) (*fakeVerifier, *ContractRecoverer) {
	t.Helper()
	parsed, err := DefaultVerifierABI()
	require.NoError(t, err)
	fake := &fakeVerifier{abi: parsed, domain: testDomain}
	rec, err := NewContractRecoverer(fake, testDomain.VerifyingContract, parsed)
	require.NoError(t, err)
	return fake, rec
}

func signedPayload(t *testing.T, kp *shared.SigningKeyPair, domain shared.TypedDataDomain, payload string) string {
	t.Helper()
	sig, err := kp.SignTypedPayload(domain, payload)
	require.NoError(t, err)
	return hexutil.Encode(sig)
}

func TestContractRecovererRecoversSigner(t *testing.T) {
	kp, err := shared.GenerateSigningKeyPair()
	require.NoError(t, err)
	fake, rec := newFakeVerifier(t)

	msg := CanonicalMessage{Payload: `{"billId":"B-1","sz":12}`}
	addr, err := rec.Recover(context.Background(), msg, signedPayload(t, kp, testDomain, msg.Payload))
	require.NoError(t, err)
	require.Equal(t, kp.GetEthAddress(), addr)
	require.Equal(t, 1, fake.calls)

	// without 0x prefix
	sig := strings.TrimPrefix(signedPayload(t, kp, testDomain, msg.Payload), "0x")
	addr, err = rec.Recover(context.Background(), msg, sig)
	require.NoError(t, err)
	require.Equal(t, kp.GetEthAddress(), addr)
}

func TestContractRecovererTamperedPayload(t *testing.T) {
	kp, err := shared.GenerateSigningKeyPair()
	require.NoError(t, err)
	_, rec := newFakeVerifier(t)

	sig := signedPayload(t, kp, testDomain, `{"sz":12}`)
	addr, err := rec.Recover(context.Background(), CanonicalMessage{Payload: `{"sz":13}`}, sig)
	if err == nil {
		require.NotEqual(t, kp.GetEthAddress(), addr)
	} else {
		require.Equal(t, RecoveryRejected, RecoveryKindOf(err))
	}
}

func TestContractRecovererFailures(t *testing.T) {
	kp, err := shared.GenerateSigningKeyPair()
	require.NoError(t, err)
	msg := CanonicalMessage{Payload: "{}"}
	goodSig := signedPayload(t, kp, testDomain, msg.Payload)

	parsed, err := DefaultVerifierABI()
	require.NoError(t, err)
	zeroOutput, err := parsed.Methods["verify"].Outputs.Pack(common.Address{})
	require.NoError(t, err)

	tests := []struct {
		name      string
		signature string
		setup     func(f *fakeVerifier)
		want      RecoveryKind
		wantCalls int
	}{
		{"not hex", "zzzz", nil, RecoveryMalformedSignature, 0},
		{"wrong length", "0x" + strings.Repeat("ab", 64), nil, RecoveryMalformedSignature, 0},
		{"transport failure", goodSig, func(f *fakeVerifier) { f.err = errors.New("dial tcp: connection refused") }, RecoveryUnreachable, 1},
		{"json-rpc error", goodSig, func(f *fakeVerifier) { f.err = fakeRPCError{code: 3} }, RecoveryRejected, 1},
		{"garbage response", goodSig, func(f *fakeVerifier) { f.output = []byte{0x01, 0x02} }, RecoveryMalformedResponse, 1},
		{"zero address", goodSig, func(f *fakeVerifier) { f.output = zeroOutput }, RecoveryRejected, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake, rec := newFakeVerifier(t)
			if tt.setup != nil {
				tt.setup(fake)
			}
			_, err := rec.Recover(context.Background(), msg, tt.signature)
			require.Error(t, err)
			require.Equal(t, tt.want, RecoveryKindOf(err))
			require.Equal(t, tt.wantCalls, fake.calls)
		})
	}
}

func TestContractRecovererCanceled(t *testing.T) {
	kp, err := shared.GenerateSigningKeyPair()
	require.NoError(t, err)
	fake, rec := newFakeVerifier(t)
	fake.err = context.Canceled

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = rec.Recover(ctx, CanonicalMessage{Payload: "{}"}, signedPayload(t, kp, testDomain, "{}"))
	require.Equal(t, RecoveryCanceled, RecoveryKindOf(err))
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewContractRecovererValidation(t *testing.T) {
	parsed, err := DefaultVerifierABI()
	require.NoError(t, err)
	fake := &fakeVerifier{abi: parsed}

	_, err = NewContractRecoverer(nil, testDomain.VerifyingContract, parsed)
	require.Error(t, err)
	_, err = NewContractRecoverer(fake, common.Address{}, parsed)
	require.Error(t, err)
	_, err = NewContractRecoverer(fake, testDomain.VerifyingContract, abi.ABI{})
	require.Error(t, err)
}

func TestParseVerifierABI(t *testing.T) {
	t.Run("artifact", func(t *testing.T) {
		parsed, err := ParseVerifierABI(strings.NewReader(`{"contractName":"DataVerifier","abi":` + VerifierABI + `}`))
		require.NoError(t, err)
		require.Contains(t, parsed.Methods, "verify")
	})
	t.Run("artifact without abi", func(t *testing.T) {
		_, err := ParseVerifierABI(strings.NewReader(`{"contractName":"DataVerifier"}`))
		require.Error(t, err)
	})
	t.Run("no verify method", func(t *testing.T) {
		_, err := ParseVerifierABI(strings.NewReader(`[{"type":"function","name":"other","inputs":[],"outputs":[]}]`))
		require.Error(t, err)
	})
	t.Run("not json", func(t *testing.T) {
		_, err := ParseVerifierABI(strings.NewReader(`verify`))
		require.Error(t, err)
	})
}

func TestLocalRecoverer(t *testing.T) {
	kp, err := shared.GenerateSigningKeyPair()
	require.NoError(t, err)
	msg := CanonicalMessage{Payload: `{"sz":12}`}
	sig := signedPayload(t, kp, testDomain, msg.Payload)

	addr, err := NewLocalRecoverer(testDomain).Recover(context.Background(), msg, sig)
	require.NoError(t, err)
	require.Equal(t, kp.GetEthAddress(), addr)

	otherDomain := testDomain
	otherDomain.ChainID = 1
	addr, err = NewLocalRecoverer(otherDomain).Recover(context.Background(), msg, sig)
	if err == nil {
		require.NotEqual(t, kp.GetEthAddress(), addr)
	}

	_, err = NewLocalRecoverer(testDomain).Recover(context.Background(), msg, "0x1234")
	require.Equal(t, RecoveryMalformedSignature, RecoveryKindOf(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewLocalRecoverer(testDomain).Recover(ctx, msg, sig)
	require.Equal(t, RecoveryCanceled, RecoveryKindOf(err))
}

func TestLocalAndContractRecoverersAgree(t *testing.T) {
	kp, err := shared.GenerateSigningKeyPair()
	require.NoError(t, err)
	_, contractRec := newFakeVerifier(t)
	localRec := NewLocalRecoverer(testDomain)

	for _, payload := range []string{"{}", `{"a":"café"}`, `{"sz":10.0}`} {
		msg := CanonicalMessage{Payload: payload}
		sig := signedPayload(t, kp, testDomain, payload)
		fromContract, err := contractRec.Recover(context.Background(), msg, sig)
		require.NoError(t, err)
		fromLocal, err := localRec.Recover(context.Background(), msg, sig)
		require.NoError(t, err)
		require.Equal(t, fromContract, fromLocal)
	}
}
