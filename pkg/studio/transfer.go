package studio

import "context"

// Phase names a step of the handshake.
type Phase string

const (
	PhaseRegister Phase = "register"
	PhaseUpload   Phase = "upload"
	PhaseConfirm  Phase = "confirm"
)

// State is the position of one item in the handshake.
//
//	Idle → Registered → Uploaded → Confirmed
//
// Any phase failure moves to Failed. No state is re-entered.
type State string

const (
	StateIdle       State = "idle"
	StateRegistered State = "registered"
	StateUploaded   State = "uploaded"
	StateConfirmed  State = "confirmed"
	StateFailed     State = "failed"
)

// Event is a phase transition reported to a Trace.
type Event string

const (
	EventAttempted Event = "attempted"
	EventSucceeded Event = "succeeded"
	EventFailed    Event = "failed"
)

// TraceEvent describes one phase transition.
type TraceEvent struct {
	Phase Phase
	Event Event

	// State is the handshake state after the event.
	State State

	// URL is the endpoint the phase calls. Upload URLs are presigned and
	// should not be logged outside the run trail.
	URL string

	// Err is set for EventFailed.
	Err error
}

// Trace receives phase transitions in order. It is called synchronously.
type Trace func(TraceEvent)

// Item is the input of one handshake.
type Item struct {
	Session     string
	Token       string
	Name        string
	SourceURL   string
	Data        []byte
	ContentType string
}

// Transfer runs register, upload and confirm for one item, stopping at the
// first failed phase. The returned state is StateConfirmed on success and
// StateFailed otherwise; the error is a *PhaseError.
//
// The upload is never attempted without a ticket and confirm is never
// attempted unless the upload succeeded.
func (c *Client) Transfer(ctx context.Context, it Item, trace Trace) (State, error) {
	if trace == nil {
		trace = func(TraceEvent) {}
	}

	fail := func(phase Phase, err error) (State, error) {
		trace(TraceEvent{Phase: phase, Event: EventFailed, State: StateFailed, Err: err})
		return StateFailed, err
	}

	trace(TraceEvent{Phase: PhaseRegister, Event: EventAttempted, State: StateIdle, URL: c.FilesURL(it.Session)})
	ticket, err := c.Register(ctx, it.Session, it.Token, it.Name, it.SourceURL)
	if err != nil {
		return fail(PhaseRegister, err)
	}
	trace(TraceEvent{Phase: PhaseRegister, Event: EventSucceeded, State: StateRegistered})

	trace(TraceEvent{Phase: PhaseUpload, Event: EventAttempted, State: StateRegistered, URL: ticket.UploadURL})
	if err := c.Upload(ctx, ticket, it.Data, it.ContentType); err != nil {
		return fail(PhaseUpload, err)
	}
	trace(TraceEvent{Phase: PhaseUpload, Event: EventSucceeded, State: StateUploaded})

	confirmURL := c.ConfirmURL(it.Session, ticket.RemoteFileID)
	trace(TraceEvent{Phase: PhaseConfirm, Event: EventAttempted, State: StateUploaded, URL: confirmURL})
	if err := c.Confirm(ctx, it.Session, it.Token, ticket.RemoteFileID); err != nil {
		return fail(PhaseConfirm, err)
	}
	trace(TraceEvent{Phase: PhaseConfirm, Event: EventSucceeded, State: StateConfirmed})

	return StateConfirmed, nil
}
