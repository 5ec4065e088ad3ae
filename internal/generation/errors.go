package generation

import (
	"errors"
	"fmt"

	"blossom/internal/utils"
)

// ExcerptLimit caps how much of a bad response body is echoed back in an error.
const ExcerptLimit = 200

// Kind classifies a generation failure.
type Kind string

const (
	KindTransport Kind = "transport"
	KindStatus    Kind = "status"
	KindMalformed Kind = "malformed"
	KindUpstream  Kind = "upstream"
	KindEmpty     Kind = "empty_completion"
)

var (
	// ErrEmptyPrompt is returned before any request is made when the prompt is blank.
	ErrEmptyPrompt = errors.New("prompt must not be empty")

	ErrTransport       = errors.New("generation endpoint unreachable")
	ErrStatus          = errors.New("generation endpoint returned a non-success status")
	ErrMalformed       = errors.New("malformed generation response")
	ErrUpstream        = errors.New("upstream provider reported an error")
	ErrEmptyCompletion = errors.New("generation returned no text")
)

var sentinels = map[Kind]error{
	KindTransport: ErrTransport,
	KindStatus:    ErrStatus,
	KindMalformed: ErrMalformed,
	KindUpstream:  ErrUpstream,
	KindEmpty:     ErrEmptyCompletion,
}

// Error is the failure of one generation call. errors.Is matches it against the
// sentinel for its Kind; errors.As reaches the status and the body excerpt.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Excerpt string
	Err     error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindTransport:
		return fmt.Sprintf("generation request failed: %s", e.Message)
	case KindStatus:
		return fmt.Sprintf("generation endpoint returned HTTP %d: %s", e.Status, e.Message)
	case KindMalformed:
		return fmt.Sprintf("malformed generation response: %s (body: %q)", e.Message, e.Excerpt)
	case KindUpstream:
		if e.Status != 0 {
			return fmt.Sprintf("upstream provider error (HTTP %d): %s", e.Status, e.Message)
		}
		return fmt.Sprintf("upstream provider error: %s", e.Message)
	case KindEmpty:
		return "generation returned an empty completion"
	}
	return e.Message
}

func (e *Error) Is(target error) bool {
	return sentinels[e.Kind] == target
}

func (e *Error) Unwrap() error { return e.Err }

// excerpt keeps the head of a body, ellipsis included, within ExcerptLimit runes.
func excerpt(body []byte) string {
	return utils.Excerpt(string(body), ExcerptLimit-1)
}
