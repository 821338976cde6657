package shared

import (
	"bytes"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var testDomain = TypedDataDomain{
	Name:              "DataVerifier",
	Version:           "1",
	ChainID:           14800,
	VerifyingContract: common.HexToAddress("0x1111111111111111111111111111111111111111"),
}

func TestSignAndRecoverTypedPayload(t *testing.T) {
	kp, err := GenerateSigningKeyPair()
	if err != nil {
		t.Fatalf("Failed to generate key pair: %v", err)
	}

	payload := `{"billId":"B-1","sz":12}`
	sig, err := kp.SignTypedPayload(testDomain, payload)
	if err != nil {
		t.Fatalf("Failed to sign: %v", err)
	}
	if len(sig) != SignatureLength {
		t.Fatalf("Expected %d byte signature, got %d", SignatureLength, len(sig))
	}
	if v := sig[crypto.RecoveryIDOffset]; v != 27 && v != 28 {
		t.Fatalf("Expected V of 27 or 28, got %d", v)
	}

	recovered, err := RecoverTypedSigner(testDomain, payload, sig)
	if err != nil {
		t.Fatalf("Failed to recover: %v", err)
	}
	if recovered != kp.GetEthAddress() {
		t.Fatalf("Recovered %s, expected %s", recovered.Hex(), kp.GetEthAddress().Hex())
	}

	// raw 0/1 recovery ids are accepted too
	raw := bytes.Clone(sig)
	raw[crypto.RecoveryIDOffset] -= 27
	recovered, err = RecoverTypedSigner(testDomain, payload, raw)
	if err != nil || recovered != kp.GetEthAddress() {
		t.Fatalf("Raw recovery id not accepted: %v", err)
	}
}

func TestRecoverTypedSignerBindsDomainAndPayload(t *testing.T) {
	kp, err := GenerateSigningKeyPair()
	if err != nil {
		t.Fatalf("Failed to generate key pair: %v", err)
	}
	sig, err := kp.SignTypedPayload(testDomain, "{}")
	if err != nil {
		t.Fatalf("Failed to sign: %v", err)
	}

	otherChain := testDomain
	otherChain.ChainID = 1
	otherContract := testDomain
	otherContract.VerifyingContract = common.HexToAddress("0x2222222222222222222222222222222222222222")

	cases := []struct {
		name    string
		domain  TypedDataDomain
		payload string
	}{
		{"different payload", testDomain, `{"a":1}`},
		{"different chain", otherChain, "{}"},
		{"different contract", otherContract, "{}"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			recovered, err := RecoverTypedSigner(tc.domain, tc.payload, sig)
			if err == nil && recovered == kp.GetEthAddress() {
				t.Fatalf("Signature must not verify under %s", tc.name)
			}
		})
	}
}

func TestTypedPayloadHashIsStable(t *testing.T) {
	h1, err := TypedPayloadHash(testDomain, "{}")
	if err != nil {
		t.Fatalf("Failed to hash: %v", err)
	}
	h2, _ := TypedPayloadHash(testDomain, "{}")
	if !bytes.Equal(h1, h2) || len(h1) != 32 {
		t.Fatalf("Expected stable 32 byte digest, got %x and %x", h1, h2)
	}
}

func TestSigningKeyPairFromHex(t *testing.T) {
	key := "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	a, err := SigningKeyPairFromHex(key)
	if err != nil {
		t.Fatalf("Failed to load key: %v", err)
	}
	b, err := SigningKeyPairFromHex("0x" + key)
	if err != nil {
		t.Fatalf("Failed to load 0x key: %v", err)
	}
	if a.GetEthAddress() != b.GetEthAddress() {
		t.Fatalf("Prefix changed the address")
	}
	if _, err := SigningKeyPairFromHex("nothex"); err == nil {
		t.Fatalf("Expected error for invalid key")
	}
}

func TestDecodeSignature(t *testing.T) {
	good := hexutil.Encode(bytes.Repeat([]byte{0xab}, SignatureLength))

	cases := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"prefixed", good, false},
		{"bare", good[2:], false},
		{"padded", "  " + good + "\n", false},
		{"too short", "0xabcd", true},
		{"too long", good + "00", true},
		{"odd length", good[:len(good)-1], true},
		{"not hex", "0x" + string(bytes.Repeat([]byte("zz"), SignatureLength)), true},
		{"empty", "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeSignature(tc.input)
			if (err != nil) != tc.wantErr {
				t.Fatalf("DecodeSignature(%q) error = %v, wantErr %v", tc.input, err, tc.wantErr)
			}
		})
	}
}
