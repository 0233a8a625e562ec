package commands

import "fmt"

// ArgumentError marks a command-line argument-validation failure. main maps
// it to exit code 2, reserved exclusively for this kind of error.
type ArgumentError struct {
	Message string
}

func (e ArgumentError) Error() string {
	return e.Message
}

func argError(format string, args ...any) error {
	return ArgumentError{Message: fmt.Sprintf(format, args...)}
}
