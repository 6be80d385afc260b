package common

// DefaultTokenHeaderName is the request header that carries the session
// token when no other name is configured.
const DefaultTokenHeaderName = "Bearer"

// TimeLayout is the wire format for timestamps in JSON responses.
const TimeLayout = "2006-01-02T15:04:05Z"

// Account activity states.
const (
	AccountActive   = 0
	AccountInactive = 1
)

// One-time token states.
const (
	TokenIssued   = 0
	TokenConsumed = 1
)

// Roles.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)
