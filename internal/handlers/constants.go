package handlers

// Error codes carried in the "error" field of JSON responses
const (
	CodeNotFound          = "not-found"
	CodeExpired           = "expired"
	CodeRevoked           = "revoked"
	CodeAlreadyUsed       = "already-used"
	CodeNoShifts          = "no-shifts"
	CodeShiftsUnavailable = "shifts-unavailable"
	CodeUpstreamIdentity  = "upstream-identity"
	CodeForbidden         = "forbidden"
	CodeUnauthorized      = "unauthorized"
	CodeThrottled         = "throttled"
	CodeInvalidRequest    = "invalid-request"
	CodeServerError       = "server-error"

	ErrInvalidRequestBody  = "Invalid request body"
	ErrInternalServerError = "Internal server error"
)

// maxBodyBytes bounds JSON request bodies
const maxBodyBytes = 1 << 20
