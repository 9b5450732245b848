package contextkey

// key is a private type to avoid context key collisions across packages.
type key string

const (
	TraceID      key = "trace_id"
	RequestID    key = "request_id"
	UserID       key = "user_id"
	SubmissionID key = "submission_id"
)

// String returns the plain key name, used for gin context storage.
func (k key) String() string {
	return string(k)
}
