package proofverifier

// Entry is one submitted record. Data is nil for entries the loader could not
// make sense of; such entries contribute nothing to any dimension.
type Entry struct {
	ID         string
	Data       map[string]any
	Signatures []string
	// Offset of the entry in the input document, for diagnostics.
	Offset int
}

// CanonicalMessage is the {payload} envelope the pullers sign.
type CanonicalMessage struct {
	Payload string `json:"payload"`
}

// SignatureVerdict is the threshold outcome for a single entry.
type SignatureVerdict struct {
	Passed bool
	// Distinct authorized signers, lower-cased, sorted.
	Signers []string
	// Recovered addresses that are not on the roster.
	Unauthorized []string
	Failures     []error
}

// ProofRecord is the result of one run. It is never modified after Generate returns.
type ProofRecord struct {
	DLPID        string         `json:"dlp_id"`
	Valid        bool           `json:"valid"`
	Score        float64        `json:"score"`
	Authenticity float64        `json:"authenticity"`
	Ownership    float64        `json:"ownership"`
	Quality      float64        `json:"quality"`
	Uniqueness   float64        `json:"uniqueness"`
	Attributes   map[string]any `json:"attributes"`
	Metadata     map[string]any `json:"metadata"`
}

// Weights of the aggregate score.
type Weights struct {
	Quality    float64
	Ownership  float64
	Uniqueness float64
}

func DefaultWeights() Weights {
	return Weights{
		Quality:    QualityWeight,
		Ownership:  OwnershipWeight,
		Uniqueness: UniquenessWeight,
	}
}
