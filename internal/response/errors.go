package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrTokenExpired       ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden         ErrCode = "FORBIDDEN"
	ErrTeacherAccessOnly ErrCode = "TEACHER_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// ─── Session-specific ──────────────────────────────────────────────
	ErrSessionNotFound  ErrCode = "SESSION_NOT_FOUND"
	ErrSessionEnded     ErrCode = "SESSION_ENDED"
	ErrSessionFull      ErrCode = "SESSION_FULL"
	ErrSessionPassword  ErrCode = "SESSION_PASSWORD_REQUIRED"
	ErrTestNotFound     ErrCode = "TEST_NOT_FOUND"
	ErrNoQuestions      ErrCode = "NO_QUESTIONS"
	ErrNotSessionOwner  ErrCode = "NOT_SESSION_OWNER"
	ErrInvalidEvent     ErrCode = "INVALID_EVENT"
	ErrQuestionRange    ErrCode = "QUESTION_OUT_OF_RANGE"
	ErrSessionTakenOver ErrCode = "SESSION_TAKEN_OVER"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	case ErrInvalidCredentials:
		return "Email or password is incorrect."
	case ErrTokenRequired:
		return "An authentication token is required."
	case ErrTokenInvalid:
		return "The authentication token is invalid."
	case ErrTokenExpired:
		return "The authentication token has expired."
	case ErrForbidden:
		return "You do not have permission to perform this action."
	case ErrTeacherAccessOnly:
		return "This resource is restricted to teachers."
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "The ID format is invalid."
	case ErrInvalidPayload:
		return "The request payload is invalid."
	case ErrNotFound:
		return "Resource not found."
	case ErrConflict:
		return "The resource already exists."
	case ErrSessionNotFound:
		return "No such session."
	case ErrSessionEnded:
		return "The session has already ended."
	case ErrSessionFull:
		return "The session is full."
	case ErrSessionPassword:
		return "A password is required to join this session."
	case ErrTestNotFound:
		return "No such test."
	case ErrNoQuestions:
		return "This test has no questions."
	case ErrNotSessionOwner:
		return "You are not the owner of this session."
	case ErrInvalidEvent:
		return "The event payload is malformed."
	case ErrQuestionRange:
		return "The question index is out of range."
	case ErrSessionTakenOver:
		return "Your session was taken over by a newer connection."
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
