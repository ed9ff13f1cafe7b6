package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// ============================================
// Standard Tracing Fields (Context level)
// These fields are propagated through the call chain
// ============================================

const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldOperationID is the on-demand operation ID
	FieldOperationID = "operation_id"

	// FieldAccountID is the monitored account ID
	FieldAccountID = "account_id"

	// FieldAccountURL is the canonical account URL
	FieldAccountURL = "account_url"

	// FieldProvider is the content provider (instagram, youtube, ...)
	FieldProvider = "provider"

	// FieldCredential is the credential (cookie file) name, never its content
	FieldCredential = "credential"

	// FieldSessionID is the browser session ID
	FieldSessionID = "session_id"

	// FieldComponent is the component/module name
	FieldComponent = "component"
)

// ============================================
// Standard Metric Fields (Entry level)
// These fields are used for aggregation and alerting
// ============================================

const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldNewCount is the number of newly recorded items
	FieldNewCount = "new_count"

	// FieldSize is the data size in bytes
	FieldSize = "size"

	// FieldStatus is the HTTP response status
	FieldStatus = "status"

	// FieldError is an error message attached to an Entry
	FieldError = "error"
)
