package main

import (
	"encoding/json"
	"fmt"
	"os"
)

// outputJSON writes v to stdout as indented JSON.
func outputJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: encoding JSON output: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(stdout, "%s\n", data)
}

// outputJSONError writes {"error": ..., "code": ...} to stderr; code is
// omitted when empty.
func outputJSONError(err error, code string) {
	payload := struct {
		Error string `json:"error"`
		Code  string `json:"code,omitempty"`
	}{Error: err.Error(), Code: code}
	data, _ := json.MarshalIndent(payload, "", "  ")
	fmt.Fprintf(os.Stderr, "%s\n", data)
}
