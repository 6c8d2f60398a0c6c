package strategy

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Kind names one of the six reconstruction strategies.
type Kind string

const (
	KindDirectInstruction  Kind = "direct_instruction"
	KindDiagnostic         Kind = "diagnostic_reconstruction"
	KindOutlineFirst       Kind = "outline_first"
	KindCrossChunk         Kind = "cross_chunk"
	KindUniversalExpansion Kind = "universal_expansion"
	KindPositionList       Kind = "position_list"
)

type Fidelity string

const (
	FidelityConservative Fidelity = "conservative"
	FidelityAggressive   Fidelity = "aggressive"
)

// ErrInvalidInput covers requests rejected before any provider call.
var ErrInvalidInput = errors.New("text or instructions required")

// errAborted signals a deliberate abort observed at a chunk boundary. It is
// not a failure; the job transitions to aborted with its partial output.
var errAborted = errors.New("aborted")

// Request is the validated inbound reconstruction request.
type Request struct {
	Text               string
	CustomInstructions string
	Fidelity           Fidelity
	Provider           string
}

// Result is the terminal report of one reconstruction run. Success is
// false only for failed jobs; aborted jobs report success with their
// partial output, and an expansion shortfall is a successful completion
// with the Shortfall flag raised.
type Result struct {
	SessionID       uuid.UUID
	Mode            Kind
	Status          string
	Success         bool
	Output          string
	Message         string
	InputWordCount  int
	OutputWordCount int

	Diagnosis string

	SectionsGenerated int
	TargetWords       int
	Shortfall         bool

	PositionsProcessed int
	PositionsSelected  int
	TotalPositions     int

	ChunksProcessed int
	TotalChunks     int

	ProcessingTime time.Duration
}

// Outline is the structural skeleton extracted once per outline-first job
// and held fixed across every section regeneration.
type Outline struct {
	Thesis      string   `json:"thesis"`
	KeyPoints   []string `json:"keyPoints"`
	KeyTerms    []string `json:"keyTerms"`
	Constraints []string `json:"constraints"`
}

// GlobalState is the rolling cross-chunk accumulator: terminology and
// claims established by earlier chunks that later chunks must respect.
type GlobalState struct {
	Thesis    string   `json:"thesis"`
	KeyTerms  []string `json:"keyTerms"`
	Decisions []string `json:"decisions"`
	Summary   string   `json:"summary"`
}
