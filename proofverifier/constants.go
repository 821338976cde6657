package proofverifier

import "time"

// Scoring policy. Fixed; only tests and operators override them through Config.
const (
	QualityWeight     = 0.5
	OwnershipWeight   = 0.3
	UniquenessWeight  = 0.2
	ValidityThreshold = 0.6

	MinQualitySize = 10.0
)

// Duplication defaults. The two are deliberately asymmetric:
// no ids means no uniqueness credit, a failed lookup means full credit.
const (
	DuplicatePercentageNoIDs   = 100.0
	DuplicatePercentageOnError = 0.0

	DefaultDuplicationTimeout = 30 * time.Second
)

// Entry field names in the pool's input format.
const (
	DefaultSizeField  = "sz"
	DefaultDedupField = "billId"
)

const DefaultMaxWorkers = 8

// Recoverer backend names reported in proof metadata.
const (
	RecovererContract = "contract"
	RecovererLocal    = "local"
)
