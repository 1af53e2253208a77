package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// ============================================
// Tracing Fields (Context level)
// Propagated through the call chain of one request
// ============================================

const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldAnalysisID is the ID assigned to one analysis run
	FieldAnalysisID = "analysis_id"

	// FieldComponent is the component/module name
	FieldComponent = "component"

	// FieldStage is the pipeline stage currently executing
	FieldStage = "stage"

	// FieldSource is the record source an index is built from
	FieldSource = "source"
)

// ============================================
// Metric Fields (Entry level)
// Used for aggregation and alerting
// ============================================

const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldSize is the data size in bytes
	FieldSize = "size"

	// FieldStatus is the operation status
	FieldStatus = "status"

	// FieldOutcome is the outcome of a pipeline stage (ok, degraded, rejected)
	FieldOutcome = "outcome"
)
