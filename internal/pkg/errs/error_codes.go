/*
Package errs provides coded application errors shared by the HTTP surface and
the chat protocol.

Error code constants. The ranges group codes by concern so a code alone places
the failure.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrInvalidJSONFormat indicates a request body or frame that is not valid JSON.
	ErrInvalidJSONFormat = 1002

	// ErrRateLimitExceeded indicates that the request rate exceeded the limit.
	ErrRateLimitExceeded = 1003
)

// 2xxx: Room and Message Errors
const (
	// ErrRoomNotFound indicates an operation referenced an unknown room id.
	ErrRoomNotFound = 2101

	// ErrMessageContentTooLong indicates a message body over the size limit.
	ErrMessageContentTooLong = 2201
)

// 3xxx: User, Session, and Security Errors
const (
	// ErrInvalidCredentials indicates a login with a wrong username or password.
	ErrInvalidCredentials = 3001

	// ErrUsernameTaken indicates a registration with an already used username.
	ErrUsernameTaken = 3002

	// ErrUnauthenticated indicates a request that requires an authenticated session.
	ErrUnauthenticated = 3003

	// ErrTooManyLoginAttempts indicates the session exceeded the configured login budget.
	ErrTooManyLoginAttempts = 3004
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified internal server error.
	ErrUnknown = 5000
)
