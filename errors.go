package portalauth

import "errors"

var (
	// ErrNoSession is returned by HandleCallback when there is no provider
	// session to exchange, or when the exchange failed. Exchange failures
	// wrap the cause as well.
	ErrNoSession = errors.New("no session found")
	// ErrInvalidConfig wraps every Config validation failure.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrBuilderUsed is returned by a second Build call on one Builder.
	ErrBuilderUsed = errors.New("builder already used")
)
