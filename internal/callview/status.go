package callview

import (
	"time"

	"github.com/carefollow/callboard/internal/structs"
)

// DefaultInboundLiveness is the default time after which an inbound call
// without a recording is no longer considered to be in progress.
const DefaultInboundLiveness = 8 * time.Minute

// answeredByVoicemail is the value of answeredBy set by the call backend if a
// call reached a voicemail box.
const answeredByVoicemail = "Voicemail"

// Classifier maps raw call records to their display status.
type Classifier struct {
	// InboundLiveness is how long an inbound call without a recording is
	// reported as in progress. The call backend does not send a heartbeat so
	// this is the only signal available.
	InboundLiveness time.Duration

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

func (c Classifier) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}

	return time.Now()
}

func (c Classifier) liveness() time.Duration {
	if c.InboundLiveness > 0 {
		return c.InboundLiveness
	}

	return DefaultInboundLiveness
}

// Classify returns the display status of call. It always returns one of
// the values in structs.AllStatuses.
func (c Classifier) Classify(call structs.RawCall) structs.Status {
	status, _ := c.classify(call)

	return status
}

// classify also reports whether the status has been inferred from the
// inbound liveness window.
func (c Classifier) classify(call structs.RawCall) (structs.Status, bool) {
	if call == nil {
		return structs.StatusIncomplete, false
	}

	switch call.Kind() {
	case structs.KindQueued:
		return structs.StatusQueued, false
	case structs.KindInProgress:
		return structs.StatusInProgress, false
	}

	outcome := outcomeOf(call)

	// a voicemail outcome wins over the record kind.
	if outcome != nil && outcome.AnsweredBy == answeredByVoicemail {
		return structs.StatusVoicemail, false
	}

	switch call.Kind() {
	case structs.KindFailed:
		return structs.StatusFailed, false

	case structs.KindProcessed:
		if outcome == nil {
			break
		}

		if outcome.RecordingURL == "" {
			if direction(outcome.Direction) != structs.DirectionInbound {
				return structs.StatusFailed, false
			}

			created, ok := CoerceTime(outcome.CreatedAt)
			if ok && c.now().Sub(created) < c.liveness() {
				return structs.StatusInProgress, true
			}

			return structs.StatusFailed, true
		}

		return completion(outcome), false
	}

	return completion(outcome), false
}

// NextChange returns how long it takes until the first in-progress status
// of b that has been inferred from the inbound liveness window expires. ok
// is false if no such status exists.
func (c Classifier) NextChange(b Board) (wait time.Duration, ok bool) {
	now := c.now()

	for _, conv := range b.Conversations {
		status, inferred := c.classify(conv)
		if !inferred || status != structs.StatusInProgress {
			continue
		}

		created, valid := CoerceTime(conv.CreatedAt)
		if !valid {
			continue
		}

		d := max(created.Add(c.liveness()).Sub(now), 0)
		if !ok || d < wait {
			wait, ok = d, true
		}
	}

	return wait, ok
}

func completion(outcome *structs.Outcome) structs.Status {
	if outcome != nil && outcome.CompletedExperience {
		return structs.StatusComplete
	}

	return structs.StatusIncomplete
}

func outcomeOf(call structs.RawCall) *structs.Outcome {
	switch v := call.(type) {
	case *structs.ProcessedCall:
		if v != nil {
			return &v.Outcome
		}
	case *structs.Conversation:
		if v != nil {
			return &v.Outcome
		}
	}

	return nil
}
