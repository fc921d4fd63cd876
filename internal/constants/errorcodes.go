package constants

// Error Codes identify error categories in admin API responses. Clients of
// the control plane can switch on these without parsing messages.
const (
	CodeBadRequest      = "bad_request"
	CodeUnauthorized    = "unauthorized"
	CodeForbidden       = "forbidden"
	CodeNotFound        = "not_found"
	CodeValidationError = "validation_error"
	CodeInternalError   = "internal_error"
)

// User-Facing Messages for the admin API.
const (
	// MsgAuthRequired indicates that a bearer token must be supplied.
	MsgAuthRequired = "Authentication required"

	// MsgAccessDenied indicates an invalid admin token.
	MsgAccessDenied = "Invalid admin token"

	// MsgResourceNotFound is the generic 404 message.
	MsgResourceNotFound = "Resource not found"

	// MsgInternalServerError provides a generic server error message.
	MsgInternalServerError = "An internal server error occurred"

	// MsgMalformedJSON indicates an unparseable request body.
	MsgMalformedJSON = "Request body contains malformed JSON"

	// MsgEmptyRequestBody indicates a missing request body.
	MsgEmptyRequestBody = "Request body must not be empty"

	// MsgRequestBodyTooLarge indicates the body exceeded MaxRequestBodySize.
	MsgRequestBodyTooLarge = "Request body too large"
)
