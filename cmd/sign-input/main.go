package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dlp-proof/proofverifier"
	"dlp-proof/shared"
)

func main() {
	logger, err := shared.NewLoggerFromEnv("sign-input")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := newRootCmd(logger.Logger).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(logger *zap.Logger) *cobra.Command {
	var (
		inPath, outPath string
		keys            []string
		generate        int
		domain          domainFlags
	)

	cmd := &cobra.Command{
		Use:   "sign-input",
		Short: "Attach puller signatures to every entry of an input file",
		Long: "Signs the canonical payload of each entry's data with every given key " +
			"and writes the keys' signatures as signature_1..signature_N. " +
			"Prints the signer addresses, suitable for AUTHORIZED_PULLERS.",
		RunE: func(cmd *cobra.Command, args []string) error {
			signers, err := loadSigners(keys, generate)
			if err != nil {
				return err
			}
			typedDomain, err := domain.typedDataDomain()
			if err != nil {
				return err
			}
			if err := signFile(inPath, outPath, signers, typedDomain, logger); err != nil {
				return err
			}

			addrs := make([]string, len(signers))
			for i, s := range signers {
				addrs[i] = s.GetEthAddress().Hex()
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(addrs, ","))
			return nil
		},
	}

	cmd.Flags().StringVarP(&inPath, "in", "i", "input.json", "Input file with unsigned entries")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output file (defaults to overwriting --in)")
	cmd.Flags().StringSliceVar(&keys, "key", nil, "Hex secp256k1 private key of a puller (repeatable)")
	cmd.Flags().IntVar(&generate, "generate", 0, "Number of throwaway puller keys to generate")
	cmd.Flags().StringVar(&domain.name, "domain-name", "DataVerifier", "EIP-712 domain name")
	cmd.Flags().StringVar(&domain.version, "domain-version", "1", "EIP-712 domain version")
	cmd.Flags().Int64Var(&domain.chainID, "chain-id", 14800, "EIP-712 domain chain id")
	cmd.Flags().StringVar(&domain.contract, "contract", "", "Verifier contract address (EIP-712 verifyingContract)")
	_ = cmd.MarkFlagRequired("contract")

	return cmd
}

type domainFlags struct {
	name, version, contract string
	chainID                 int64
}

func (d domainFlags) typedDataDomain() (shared.TypedDataDomain, error) {
	if !common.IsHexAddress(d.contract) {
		return shared.TypedDataDomain{}, fmt.Errorf("invalid contract address %q", d.contract)
	}
	return shared.TypedDataDomain{
		Name:              d.name,
		Version:           d.version,
		ChainID:           d.chainID,
		VerifyingContract: common.HexToAddress(d.contract),
	}, nil
}

func loadSigners(keys []string, generate int) ([]*shared.SigningKeyPair, error) {
	var signers []*shared.SigningKeyPair
	for _, k := range keys {
		kp, err := shared.SigningKeyPairFromHex(k)
		if err != nil {
			return nil, err
		}
		signers = append(signers, kp)
	}
	for i := 0; i < generate; i++ {
		kp, err := shared.GenerateSigningKeyPair()
		if err != nil {
			return nil, err
		}
		signers = append(signers, kp)
	}
	if len(signers) == 0 {
		return nil, fmt.Errorf("no signers: pass --key or --generate")
	}
	return signers, nil
}

// signFile rewrites the entries in inPath with one signature per signer.
// Entries without an object "data" field are left untouched.
func signFile(inPath, outPath string, signers []*shared.SigningKeyPair, domain shared.TypedDataDomain, logger *zap.Logger) error {
	if outPath == "" {
		outPath = inPath
	}

	doc, err := os.ReadFile(inPath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", inPath, err)
	}

	var entries []map[string]any
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	if err := dec.Decode(&entries); err != nil {
		return fmt.Errorf("input must be a JSON array of entries: %w", err)
	}

	for i, entry := range entries {
		data, ok := entry["data"].(map[string]any)
		if !ok {
			logger.Warn("Entry has no data object, leaving it unsigned", zap.Int("index", i))
			continue
		}
		msg, err := proofverifier.Canonicalize(data)
		if err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
		for j, kp := range signers {
			sig, err := kp.SignTypedPayload(domain, msg.Payload)
			if err != nil {
				return fmt.Errorf("entry %d: %w", i, err)
			}
			entry[fmt.Sprintf("signature_%d", j+1)] = hexutil.Encode(sig)
		}
	}

	out, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode signed entries: %w", err)
	}
	if err := os.WriteFile(outPath, out, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", outPath, err)
	}

	logger.Info("Signed input written",
		zap.String("path", outPath),
		zap.Int("entries", len(entries)),
		zap.Int("signers", len(signers)))
	return nil
}
