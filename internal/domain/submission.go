package domain

import (
	"encoding/base64"
	"errors"
	"strings"
)

// =============================================================================
// Submission state machine
// =============================================================================

// SubmissionState is one step of a report submission.
type SubmissionState string

const (
	StateDraft                SubmissionState = "draft"
	StateValidating           SubmissionState = "validating"
	StateInvalid              SubmissionState = "invalid"
	StateUploadingAttachments SubmissionState = "uploading_attachments"
	StatePersisting           SubmissionState = "persisting"
	StatePersisted            SubmissionState = "persisted"
	StateNotifying            SubmissionState = "notifying"
	StateDone                 SubmissionState = "done"
	StateFailed               SubmissionState = "failed"
)

var submissionTransitions = map[SubmissionState][]SubmissionState{
	StateDraft:                {StateValidating},
	StateValidating:           {StateInvalid, StateUploadingAttachments},
	StateInvalid:              {StateDraft},
	StateUploadingAttachments: {StatePersisting, StateFailed},
	StatePersisting:           {StatePersisted, StateFailed},
	StatePersisted:            {StateNotifying},
	StateNotifying:            {StateDone},
}

// CanTransitionTo reports whether next may follow s.
func (s SubmissionState) CanTransitionTo(next SubmissionState) bool {
	for _, allowed := range submissionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s SubmissionState) IsTerminal() bool {
	return s == StateDone || s == StateFailed
}

// NotificationKind distinguishes the two message types.
type NotificationKind string

const (
	NotificationOperator NotificationKind = "operator"
	NotificationEmployee NotificationKind = "employee"
)

// NotificationOutcome is the result of one delivery attempt.
type NotificationOutcome struct {
	Kind      NotificationKind `json:"kind"`
	Recipient string           `json:"recipient"`
	Delivered bool             `json:"delivered"`
	Queued    bool             `json:"queued,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// SubmissionResult is what a successful submission returns. Persistence
// succeeded; notification outcomes are reported per recipient.
type SubmissionResult struct {
	Report             *IncidentReport       `json:"report"`
	States             []SubmissionState     `json:"states"`
	Outcomes           []NotificationOutcome `json:"notifications"`
	NotificationFailed bool                  `json:"notificationFailed"`
}

// Message is the user-facing summary of the submission.
func (r *SubmissionResult) Message() string {
	if r.NotificationFailed {
		return "Report submitted successfully but email failed to send."
	}
	if len(r.Outcomes) == 0 {
		return "Report submitted successfully."
	}
	return "Report submitted and email sent successfully!"
}

// =============================================================================
// Body map image
// =============================================================================

// BodyMapImage is the flattened drawing, handed by value to persistence
// and notification.
type BodyMapImage struct {
	PNG    []byte
	Width  int
	Height int
}

const pngDataURLPrefix = "data:image/png;base64,"

// DataURL encodes the image as a data URL.
func (b *BodyMapImage) DataURL() string {
	if b == nil || len(b.PNG) == 0 {
		return ""
	}
	return pngDataURLPrefix + base64.StdEncoding.EncodeToString(b.PNG)
}

// ErrInvalidDataURL is returned for malformed image data URLs.
var ErrInvalidDataURL = errors.New("invalid image data url")

// DecodeDataURL extracts the payload of a base64 image data URL. An empty
// string yields nil bytes and no error.
func DecodeDataURL(s string) ([]byte, string, error) {
	if s == "" {
		return nil, "", nil
	}
	if !strings.HasPrefix(s, "data:") {
		return nil, "", ErrInvalidDataURL
	}
	meta, payload, ok := strings.Cut(strings.TrimPrefix(s, "data:"), ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return nil, "", ErrInvalidDataURL
	}
	contentType := strings.TrimSuffix(meta, ";base64")
	if !strings.HasPrefix(contentType, "image/") {
		return nil, "", ErrInvalidDataURL
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", ErrInvalidDataURL
	}
	return data, contentType, nil
}
