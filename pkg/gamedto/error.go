package gamedto

// Stable error codes returned by the HTTP surface.
const (
	CodeValidation = "VALIDATION"
	CodeNotFound   = "NOT_FOUND"
	CodeConflict   = "PROTOCOL_VIOLATION"
	CodeIdentity   = "IDENTITY_REQUIRED"
	CodeFunds      = "INSUFFICIENT_FUNDS"
	CodeInternal   = "INTERNAL"
	CodeNotExpired = "NOT_YET_EXPIRABLE"
)

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e ErrorResponse) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "referee error"
}
