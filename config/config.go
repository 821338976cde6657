package config

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"dlp-proof/proofverifier"
	"dlp-proof/shared"
)

// Config holds everything a proof run reads from its environment.
type Config struct {
	DLPID string

	InputDir    string
	InputFile   string
	EntriesPath string
	OutputDir   string

	Pullers []string

	Recoverer         string
	RPCURL            string
	VerifierContract  string
	VerifierABIFile   string
	EIP712Name        string
	EIP712Version     string
	ChainID           int64
	DedupAPIURL       string
	DedupAPIKey       string
	DedupAPIKeySecret string
	DedupTimeout      time.Duration

	SizeField         string
	DedupField        string
	MaxWorkers        int
	ValidityThreshold float64
}

// RosterFile is the YAML layout of ROSTER_FILE.
type RosterFile struct {
	Pullers []string `yaml:"pullers"`
}

// Load reads .env (if present) and the environment. All missing required
// variables are reported together.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "failed to load .env file")
	}
	return FromEnv()
}

// FromEnv builds the config from the current environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		DLPID:             os.Getenv("DLP_ID"),
		InputDir:          shared.GetEnvOrDefault("INPUT_DIR", "/input"),
		InputFile:         shared.GetEnvOrDefault("INPUT_FILE", "input.json"),
		EntriesPath:       shared.GetEnvOrDefault("ENTRIES_PATH", "$"),
		OutputDir:         shared.GetEnvOrDefault("OUTPUT_DIR", "/output"),
		Pullers:           shared.GetEnvList("AUTHORIZED_PULLERS"),
		Recoverer:         strings.ToLower(shared.GetEnvOrDefault("RECOVERER", proofverifier.RecovererContract)),
		RPCURL:            os.Getenv("RPC_URL"),
		VerifierContract:  os.Getenv("VERIFIER_CONTRACT"),
		VerifierABIFile:   os.Getenv("VERIFIER_ABI_FILE"),
		EIP712Name:        shared.GetEnvOrDefault("EIP712_NAME", "DataVerifier"),
		EIP712Version:     shared.GetEnvOrDefault("EIP712_VERSION", "1"),
		ChainID:           shared.GetEnvInt64OrDefault("CHAIN_ID", 14800),
		DedupAPIURL:       os.Getenv("DEDUP_API_URL"),
		DedupAPIKey:       os.Getenv("DEDUP_API_KEY"),
		DedupAPIKeySecret: os.Getenv("DEDUP_API_KEY_SECRET"),
		DedupTimeout:      shared.GetEnvDurationOrDefault("DEDUP_TIMEOUT", proofverifier.DefaultDuplicationTimeout),
		SizeField:         shared.GetEnvOrDefault("SIZE_FIELD", proofverifier.DefaultSizeField),
		DedupField:        shared.GetEnvOrDefault("DEDUP_FIELD", proofverifier.DefaultDedupField),
		MaxWorkers:        shared.GetEnvIntOrDefault("MAX_WORKERS", proofverifier.DefaultMaxWorkers),
		ValidityThreshold: shared.GetEnvFloatOrDefault("SCORE_THRESHOLD", proofverifier.ValidityThreshold),
	}

	if rosterFile := os.Getenv("ROSTER_FILE"); rosterFile != "" {
		pullers, err := LoadRosterFile(rosterFile)
		if err != nil {
			return nil, err
		}
		cfg.Pullers = append(cfg.Pullers, pullers...)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every missing or inconsistent setting at once.
func (c *Config) Validate() error {
	var missing []string
	if c.DLPID == "" {
		missing = append(missing, "DLP_ID")
	}
	if len(c.Pullers) == 0 {
		missing = append(missing, "AUTHORIZED_PULLERS or ROSTER_FILE")
	}
	if c.DedupAPIURL == "" {
		missing = append(missing, "DEDUP_API_URL")
	}

	switch c.Recoverer {
	case proofverifier.RecovererContract:
		if c.RPCURL == "" {
			missing = append(missing, "RPC_URL")
		}
		if c.VerifierContract == "" {
			missing = append(missing, "VERIFIER_CONTRACT")
		}
	case proofverifier.RecovererLocal:
		if c.VerifierContract == "" {
			missing = append(missing, "VERIFIER_CONTRACT")
		}
	default:
		return errors.Errorf("unknown RECOVERER %q, expected %q or %q", c.Recoverer, proofverifier.RecovererContract, proofverifier.RecovererLocal)
	}

	if len(missing) > 0 {
		return errors.Errorf("missing required environment variables: %v", missing)
	}
	return nil
}

// LoadRosterFile reads the authorized pullers from a YAML file.
func LoadRosterFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read roster file %s", path)
	}

	var roster RosterFile
	if err := yaml.Unmarshal(data, &roster); err != nil {
		return nil, errors.Wrapf(err, "failed to parse roster file %s", path)
	}
	return roster.Pullers, nil
}

// ResolveDedupAPIKey returns DEDUP_API_KEY, or reads DEDUP_API_KEY_SECRET
// through reader when only the secret reference is configured.
func (c *Config) ResolveDedupAPIKey(ctx context.Context, newReader func(context.Context) (shared.SecretReader, error)) (string, error) {
	if c.DedupAPIKey != "" || c.DedupAPIKeySecret == "" {
		return c.DedupAPIKey, nil
	}

	reader, err := newReader(ctx)
	if err != nil {
		return "", errors.Wrap(err, "failed to open secret store")
	}
	defer reader.Close()

	var payload []byte
	err = shared.RetryWithBackoff(ctx, nil, func(ctx context.Context) error {
		var err error
		payload, err = reader.AccessSecret(ctx, c.DedupAPIKeySecret)
		return err
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to read secret %s", c.DedupAPIKeySecret)
	}
	return strings.TrimSpace(string(payload)), nil
}
