package utils

import "go.uber.org/zap"

// NewLogger builds the process logger: JSON production output by default,
// human-readable development output in debug mode.
func NewLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// TokenPrefix returns a short prefix of a credential that is safe to log.
func TokenPrefix(token string) string {
	if len(token) > 10 {
		return token[:10] + "..."
	}
	return token
}
