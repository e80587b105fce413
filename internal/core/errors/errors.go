// Package errors provides centralized error definitions for the application.
// Errors are organized by domain to avoid duplication and provide consistent naming.
//
// Naming conventions:
//   - Exported errors (Err*): Use for errors that callers need to check with errors.Is
//   - All sentinel errors should be defined as variables, not inline errors.New calls
//   - Use fmt.Errorf with %w to wrap sentinel errors with context
package errors

import "errors"

// Tweet storage errors.
var (
	// ErrDuplicateTweetID indicates a non-null tweet_id already exists in the tweets table.
	ErrDuplicateTweetID = errors.New("duplicate tweet id")

	// ErrNotFound is a generic not found error.
	ErrNotFound = errors.New("not found")

	// ErrLockHeld indicates another process holds an advisory lock.
	ErrLockHeld = errors.New("lock held by another process")
)

// Validation errors.
var (
	// ErrInvalidInput indicates invalid input was provided.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidDataSource indicates a provenance tag outside the known set.
	ErrInvalidDataSource = errors.New("invalid data source")

	// ErrInvalidTweetURL indicates a URL that carries no /status/<id> segment.
	ErrInvalidTweetURL = errors.New("invalid tweet url")

	// ErrRawJSONNotAllowed indicates a raw payload attached to a non-xhr tweet.
	ErrRawJSONNotAllowed = errors.New("raw json is only stored for xhr tweets")
)

// Response and parsing errors.
var (
	// ErrEmptyResponse indicates an empty payload was received.
	ErrEmptyResponse = errors.New("empty response")

	// ErrNoResults indicates no tweets were found in a payload.
	ErrNoResults = errors.New("no results")

	// ErrMalformedPayload indicates a payload that is not valid JSON.
	ErrMalformedPayload = errors.New("malformed payload")
)
