package session

import "errors"

// Error taxonomy surfaced to the presentation layer. Navigation and transfer
// failures are user-visible; script failures only reach the console
// transcript.
var (
	// ErrInvalidAddress reports input that could not be formed into a
	// loadable request.
	ErrInvalidAddress = errors.New("invalid address")
	// ErrNavigationFailed reports an engine-reported load error.
	ErrNavigationFailed = errors.New("navigation failed")
	// ErrScriptEvaluation reports an engine-reported script error.
	ErrScriptEvaluation = errors.New("script evaluation failed")
	// ErrDuplicateBookmark reports an insert for an already bookmarked URL.
	ErrDuplicateBookmark = errors.New("already bookmarked")
	// ErrCannotBookmark reports an attempt to bookmark an empty or
	// placeholder page.
	ErrCannotBookmark = errors.New("cannot bookmark this page")
	// ErrUnknownCommand reports a run request for a command id that does not
	// exist.
	ErrUnknownCommand = errors.New("unknown custom command")
)
