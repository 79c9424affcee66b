package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/taskdeck/deck/internal/gateway"
)

// errSignedOut is returned when the backend rejects the stored session.
var errSignedOut = errors.New("not signed in")

// WarnError writes a warning message to stderr and returns.
// Use this for optional operations that enhance functionality but aren't required.
func WarnError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Warning: "+format+"\n", args...)
}

// hintFor suggests a fix for the common backend failures.
func hintFor(err error) string {
	switch {
	case errors.Is(err, errSignedOut), gateway.IsAuth(err):
		return "Sign in through the web app, then run 'deck auth set-cookie' with the access_token and refresh_token cookies"
	case gateway.IsNotFound(err):
		return "Check the id with 'deck issues list'"
	case gateway.IsTransport(err):
		return "Is the backend running? Check --api or DECK_API_URL (try 'deck demo' for a local backend)"
	}
	return ""
}

// reportError prints a command error, as JSON under --json.
func reportError(err error) {
	if jsonOutput {
		code := ""
		if f, ok := gateway.AsFailure(err); ok {
			code = f.Code
		}
		outputJSONError(err, code)
		return
	}
	if hint := hintFor(err); hint != "" {
		fmt.Fprintf(os.Stderr, "Error: %v\nHint: %s\n", err, hint)
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}
