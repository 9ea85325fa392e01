package constants

// RunState is the canonical state of a conversion run.
type RunState string

// Stable values (these exact strings appear in logs and API responses).
const (
	RunStatePlanning    RunState = "PLANNING"
	RunStateDispatching RunState = "DISPATCHING"
	RunStateNormalizing RunState = "NORMALIZING"
	RunStateValidating  RunState = "VALIDATING"
	RunStateDone        RunState = "DONE"    // terminal: results and diagnostics available
	RunStateAborted     RunState = "ABORTED" // terminal: configuration error, nothing dispatched
)

// Terminal reports whether no further transitions are possible.
func (s RunState) Terminal() bool {
	return s == RunStateDone || s == RunStateAborted
}

// Stage identifies where a per-batch or per-record diagnostic was raised.
type Stage string

const (
	StageRequest          Stage = "request"
	StageParsing          Stage = "parsing"
	StageNormalization    Stage = "normalization"
	StageSchemaValidation Stage = "schema_validation"
)
