package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Exit codes for opsctl.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // the command ran but the answer is negative, e.g. key not found
	ExitCommandError = 2 // bad flags, unreachable database, failed migration
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func failure(message string) *ExitError {
	return &ExitError{Code: ExitFailure, Message: message}
}

func commandError(message string, err error) *ExitError {
	return &ExitError{Code: ExitCommandError, Message: message, Err: err}
}

// ExitCode extracts the exit code from an error. Errors that are not an
// ExitError come from cobra flag parsing and count as command errors.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitCommandError
}

type response struct {
	Status string `json:"status"`
	Data   any    `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
}

// output writes results as text lines or one JSON document per command.
type output struct {
	format string
	w      io.Writer
}

func (o output) success(data any, text string) error {
	if o.format == "json" {
		return json.NewEncoder(o.w).Encode(response{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(o.w, text)
	return err
}

func (o output) failure(err error) {
	if o.format == "json" {
		_ = json.NewEncoder(o.w).Encode(response{Status: "error", Error: err.Error()})
		return
	}
	fmt.Fprintf(o.w, "Error: %v\n", err)
}
