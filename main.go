package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/big"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"dlp-proof/config"
	"dlp-proof/input"
	"dlp-proof/proofverifier"
	"dlp-proof/shared"
)

const resultsFile = "results.json"

func main() {
	logger, err := shared.NewLoggerFromEnv("dlp-proof")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Critical("Invalid configuration", zap.Error(err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := run(ctx, cfg, logger, uuid.NewString()); err != nil {
		logger.Critical("Proof generation failed", zap.Error(err))
		os.Exit(1)
	}
}

// run performs one proof run and writes results.json into cfg.OutputDir.
func run(ctx context.Context, cfg *config.Config, logger *shared.Logger, runID string) (*proofverifier.ProofRecord, error) {
	runLogger := logger.WithRun(runID)
	input.SetLogger(runLogger)
	proofverifier.SetLogger(runLogger)

	entries, err := input.LoadDir(cfg.InputDir, cfg.InputFile, cfg.EntriesPath)
	if err != nil {
		return nil, err
	}

	recoverer, closeRecoverer, err := buildRecoverer(ctx, cfg, runLogger)
	if err != nil {
		return nil, err
	}
	defer closeRecoverer()

	apiKey, err := cfg.ResolveDedupAPIKey(ctx, shared.NewGCPSecretReader)
	if err != nil {
		return nil, err
	}
	duplicates := proofverifier.NewHTTPDuplicationChecker(cfg.DedupAPIURL,
		proofverifier.WithAPIKey(apiKey),
		proofverifier.WithDuplicationTimeout(cfg.DedupTimeout),
		proofverifier.WithDuplicationLogger(runLogger))

	roster, err := proofverifier.NewRoster(cfg.Pullers)
	if err != nil {
		return nil, err
	}

	threshold := cfg.ValidityThreshold
	engine, err := proofverifier.New(proofverifier.Config{
		DLPID:             cfg.DLPID,
		RunID:             runID,
		Roster:            roster,
		Recoverer:         recoverer,
		RecovererName:     cfg.Recoverer,
		Duplicates:        duplicates,
		ValidityThreshold: &threshold,
		SizeField:         cfg.SizeField,
		DedupField:        cfg.DedupField,
		MaxWorkers:        cfg.MaxWorkers,
		Logger:            logger.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid engine configuration: %w", err)
	}

	record, err := engine.Generate(ctx, entries)
	if err != nil {
		return nil, err
	}

	if err := writeRecord(cfg.OutputDir, record); err != nil {
		return nil, err
	}
	runLogger.Info("Proof written",
		zap.String("path", filepath.Join(cfg.OutputDir, resultsFile)),
		zap.Float64("score", record.Score),
		zap.Bool("valid", record.Valid))
	return record, nil
}

// buildRecoverer connects the configured recovery backend. The contract
// backend probes the RPC endpoint once so an unreachable node fails the run
// up front instead of failing every signature.
func buildRecoverer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (proofverifier.SignatureRecoverer, func(), error) {
	noop := func() {}
	if !common.IsHexAddress(cfg.VerifierContract) {
		return nil, noop, fmt.Errorf("invalid VERIFIER_CONTRACT %q", cfg.VerifierContract)
	}
	contract := common.HexToAddress(cfg.VerifierContract)

	if cfg.Recoverer == proofverifier.RecovererLocal {
		return proofverifier.NewLocalRecoverer(shared.TypedDataDomain{
			Name:              cfg.EIP712Name,
			Version:           cfg.EIP712Version,
			ChainID:           cfg.ChainID,
			VerifyingContract: contract,
		}), noop, nil
	}

	contractABI, err := loadVerifierABI(cfg.VerifierABIFile)
	if err != nil {
		return nil, noop, err
	}

	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, noop, fmt.Errorf("failed to dial RPC endpoint: %w", err)
	}
	var chainID *big.Int
	err = shared.RetryWithBackoff(ctx, nil, func(ctx context.Context) error {
		var err error
		chainID, err = client.ChainID(ctx)
		return err
	})
	if err != nil {
		client.Close()
		return nil, noop, fmt.Errorf("RPC endpoint unreachable: %w", err)
	}
	logger.Info("Connected to verification endpoint",
		zap.String("chain_id", chainID.String()),
		zap.String("contract", contract.Hex()))

	recoverer, err := proofverifier.NewContractRecoverer(client, contract, contractABI)
	if err != nil {
		client.Close()
		return nil, noop, err
	}
	return recoverer, client.Close, nil
}

func loadVerifierABI(path string) (abi.ABI, error) {
	if path == "" {
		return proofverifier.DefaultVerifierABI()
	}
	f, err := os.Open(path)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("cannot open verifier ABI: %w", err)
	}
	defer f.Close()
	return proofverifier.ParseVerifierABI(f)
}

func writeRecord(dir string, record *proofverifier.ProofRecord) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode proof: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, resultsFile), data, 0o644)
}
