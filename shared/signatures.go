package shared

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// EIP-712 layout of the message the pullers sign and the verifier contract recovers.
const (
	TypedMessageType  = "Message"
	TypedPayloadField = "payload"

	// SignatureLength is r || s || v
	SignatureLength = 65
)

// TypedDataDomain is the EIP-712 domain separator input of the verifier contract.
type TypedDataDomain struct {
	Name              string
	Version           string
	ChainID           int64
	VerifyingContract common.Address
}

// TypedPayloadHash returns the EIP-712 digest of Message{payload}.
func TypedPayloadHash(domain TypedDataDomain, payload string) ([]byte, error) {
	typed := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			TypedMessageType: {
				{Name: TypedPayloadField, Type: "string"},
			},
		},
		PrimaryType: TypedMessageType,
		Domain: apitypes.TypedDataDomain{
			Name:              domain.Name,
			Version:           domain.Version,
			ChainId:           math.NewHexOrDecimal256(domain.ChainID),
			VerifyingContract: domain.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			TypedPayloadField: payload,
		},
	}

	hash, _, err := apitypes.TypedDataAndHash(typed)
	if err != nil {
		return nil, fmt.Errorf("failed to hash typed payload: %v", err)
	}
	return hash, nil
}

// SigningKeyPair represents a cryptographic ECDSA signing key pair for Ethereum-style signatures
type SigningKeyPair struct {
	PrivateKey *ecdsa.PrivateKey `json:"private_key"`
	PublicKey  *ecdsa.PublicKey  `json:"public_key"`
}

// GenerateSigningKeyPair generates a new ECDSA signing key pair using secp256k1 curve (ETH compatible)
func GenerateSigningKeyPair() (*SigningKeyPair, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate ECDSA key pair: %v", err)
	}

	return &SigningKeyPair{
		PrivateKey: privateKey,
		PublicKey:  &privateKey.PublicKey,
	}, nil
}

// SigningKeyPairFromHex loads a secp256k1 private key, with or without 0x prefix.
func SigningKeyPairFromHex(key string) (*SigningKeyPair, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(key), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %v", err)
	}

	return &SigningKeyPair{
		PrivateKey: privateKey,
		PublicKey:  &privateKey.PublicKey,
	}, nil
}

// SignTypedPayload produces the 65 byte signature a puller attaches to an entry.
// V is 27/28 so that on-chain ecrecover accepts it unchanged.
func (kp *SigningKeyPair) SignTypedPayload(domain TypedDataDomain, payload string) ([]byte, error) {
	hash, err := TypedPayloadHash(domain, payload)
	if err != nil {
		return nil, err
	}

	signature, err := crypto.Sign(hash, kp.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign typed payload: %v", err)
	}
	signature[crypto.RecoveryIDOffset] += 27

	return signature, nil
}

// GetEthAddress returns the Ethereum address for this key pair
func (kp *SigningKeyPair) GetEthAddress() common.Address {
	return crypto.PubkeyToAddress(*kp.PublicKey)
}

// RecoverTypedSigner recovers the address that produced signature over Message{payload}.
func RecoverTypedSigner(domain TypedDataDomain, payload string, signature []byte) (common.Address, error) {
	if len(signature) != SignatureLength {
		return common.Address{}, fmt.Errorf("invalid ETH signature length: expected %d bytes, got %d", SignatureLength, len(signature))
	}

	hash, err := TypedPayloadHash(domain, payload)
	if err != nil {
		return common.Address{}, err
	}

	sig := make([]byte, SignatureLength)
	copy(sig, signature)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	recoveredPubKey, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key from signature: %v", err)
	}

	return crypto.PubkeyToAddress(*recoveredPubKey), nil
}

// DecodeSignature parses a hex signature, 0x prefix optional.
func DecodeSignature(signature string) ([]byte, error) {
	signature = strings.TrimSpace(signature)
	if !strings.HasPrefix(signature, "0x") && !strings.HasPrefix(signature, "0X") {
		signature = "0x" + signature
	}
	raw, err := hexutil.Decode(signature)
	if err != nil {
		return nil, fmt.Errorf("invalid signature hex: %v", err)
	}
	if len(raw) != SignatureLength {
		return nil, fmt.Errorf("invalid ETH signature length: expected %d bytes, got %d", SignatureLength, len(raw))
	}
	return raw, nil
}
