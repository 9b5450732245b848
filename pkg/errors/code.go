package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 12000-12999: Problem module errors
// 13000-13999: Submission & Evaluation module errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	Unauthorized        ErrorCode = 10004
	TooManyRequests     ErrorCode = 10006
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	// Database errors (10100-10199)
	DatabaseError ErrorCode = 10100

	// Cache errors (10200-10299)
	CacheError ErrorCode = 10200

	// Validation errors (10300-10399)
	ValidationFailed ErrorCode = 10300
	InvalidFormat    ErrorCode = 10301

	// ========== Problem Module Errors (12000-12999) ==========

	ProblemNotFound ErrorCode = 12000

	// ========== Submission & Evaluation Errors (13000-13999) ==========

	// Submission (13000-13099)
	SubmissionNotFound     ErrorCode = 13000
	SubmissionCreateFailed ErrorCode = 13001
	CodeTooLarge           ErrorCode = 13002
	PackagingFailed        ErrorCode = 13003

	// Agents (13100-13199)
	AgentRequestFailed ErrorCode = 13100
	AgentBadStatus     ErrorCode = 13101
	AgentTimeout       ErrorCode = 13102

	// Progress (13200-13299)
	ProgressNotFound   ErrorCode = 13200
	ProgressStoreError ErrorCode = 13201
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	Unauthorized:        "Unauthorized access",
	TooManyRequests:     "Too many requests, please try again later",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	DatabaseError: "Database operation failed",
	CacheError:    "Cache operation failed",

	ValidationFailed: "Validation failed",
	InvalidFormat:    "Invalid format",

	ProblemNotFound: "Problem not found",

	SubmissionNotFound:     "Submission not found",
	SubmissionCreateFailed: "Failed to create submission",
	CodeTooLarge:           "Submitted files are too large",
	PackagingFailed:        "Failed to package submitted files",

	AgentRequestFailed: "Agent request failed",
	AgentBadStatus:     "Agent returned an error status",
	AgentTimeout:       "Agent did not respond in time",

	ProgressNotFound:   "Submission progress not found",
	ProgressStoreError: "Progress store operation failed",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == Unauthorized:
		return 401
	case c == NotFound, c == ProblemNotFound, c == SubmissionNotFound, c == ProgressNotFound:
		return 404
	case c == TooManyRequests:
		return 429
	case c == CodeTooLarge:
		return 413
	case c == AgentRequestFailed, c == AgentBadStatus:
		return 502
	case c == ServiceUnavailable:
		return 503
	case c == AgentTimeout, c == Timeout:
		return 504
	case c >= 10300 && c < 10400: // Validation errors
		return 400
	case c == InvalidParams:
		return 400
	default:
		return 500
	}
}
