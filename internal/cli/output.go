package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"courtboard/internal/attendance"
	"courtboard/internal/calendar"
	"courtboard/internal/feedback"
	"courtboard/internal/identity"
	"courtboard/internal/kv"
	"courtboard/internal/presence"
	"courtboard/internal/profile"
	"courtboard/internal/timeslot"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // The store refused or could not serve the request
	ExitCommandError = 2 // Bad flags or arguments
)

// ExitError represents an error with a specific exit code.
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

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// fail attaches an exit code to a domain error.
func fail(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	switch {
	case errors.As(err, &exitErr):
		return err
	case errors.Is(err, identity.ErrNotAuthenticated):
		return WrapExitError(ExitCommandError, "no acting user, pass --user", err)
	case errors.Is(err, attendance.ErrInvalidStatus),
		errors.Is(err, calendar.ErrInvalidDay),
		errors.Is(err, timeslot.ErrUnknownSlot),
		errors.Is(err, kv.ErrInvalidPath),
		errors.Is(err, profile.ErrInvalid),
		errors.Is(err, feedback.ErrEmpty):
		return WrapExitError(ExitCommandError, "invalid argument", err)
	case errors.Is(err, presence.ErrNotEligible):
		return WrapExitError(ExitFailure, "not eligible", err)
	case errors.Is(err, kv.ErrUnavailable):
		return WrapExitError(ExitFailure, "store unavailable", err)
	}
	return WrapExitError(ExitFailure, "failed", err)
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer
	Verbose   bool
}

// CLIResponse is the JSON envelope for CLI output.
type CLIResponse struct {
	Status string `json:"status"`
	Data   any    `json:"data,omitempty"`
}

// Success writes data as a JSON envelope, or runs text for human output.
// A nil text prints data with fmt.
func (f *OutputFormatter) Success(data any, text func(w io.Writer)) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}
	if text == nil {
		fmt.Fprintln(f.Writer, data)
		return nil
	}
	text(f.Writer)
	return nil
}

// VerboseLog writes a diagnostic line when verbose mode is on. It goes to
// ErrWriter so JSON output stays clean.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}

func names(people []presence.Person) string {
	if len(people) == 0 {
		return "-"
	}
	out := make([]string, len(people))
	for i, p := range people {
		out[i] = p.Name
		if out[i] == "" {
			out[i] = p.UserID
		}
	}
	return strings.Join(out, ", ")
}

// writeSnapshot renders a day board for a terminal.
func writeSnapshot(w io.Writer, s *presence.Snapshot) {
	fmt.Fprintf(w, "%s", s.Day)
	if s.Viewer != "" {
		fmt.Fprintf(w, "  (you: %s)", s.Status)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Going (%d): %s\n", len(s.Going), names(s.Going))
	fmt.Fprintf(w, "Maybe (%d): %s\n", len(s.Maybe), names(s.Maybe))
	for _, v := range s.Slots {
		mark := " "
		switch {
		case v.Pending:
			mark = "~"
		case v.Joined:
			mark = "*"
		}
		fmt.Fprintf(w, " %s %-12s %2d  %s\n", mark, v.Name, len(v.Members), names(v.Members))
	}
	fmt.Fprintf(w, "Estimated: %d\n", s.Estimated)
}
