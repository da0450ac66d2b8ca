package handlers

// Error codes carried in the "code" field of the fail envelope. Clients branch
// on these; the message is for humans. Super action endpoints keep their own
// {success, error} body and do not use them.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeInternal     = "internal_error"
	ErrCodeUpstream     = "upstream_error"
	ErrCodeUnavailable  = "service_unavailable"

	// Domain-specific:
	ErrCodeGmailNotConnected      = "gmail_not_connected"
	ErrCodeTokenRefreshFailed     = "token_refresh_failed"
	ErrCodeNoRefreshToken         = "no_refresh_token"
	ErrCodeConfiguration          = "configuration_error"
	ErrCodeInvalidPattern         = "invalid_pattern"
	ErrCodeUndoExpired            = "undo_expired"
	ErrCodeNotUndoable            = "not_undoable"
	ErrCodeActionFailed           = "action_failed"
	ErrCodeCreateFailed           = "create_failed"
	ErrCodeListFailed             = "list_failed"
	ErrCodeMethodNotAllowed       = "method_not_allowed"
)
