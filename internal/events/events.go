package events

import "github.com/rsclarke/hookcatch/internal/capture"

// Event wraps a capture draft with the outcome of storing it.
type Event struct {
	Draft    *CaptureDraft
	Stored   bool
	StoreErr error
}

// HTTPEvent extends Event with the inbound request and the response plan.
type HTTPEvent struct {
	Event
	In      capture.Inbound
	Resp    *HTTPResponsePlan
	Scratch map[string]any
}
