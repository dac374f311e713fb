// Package events defines the values passed through the capture pipeline.
package events

import "github.com/rsclarke/hookcatch/internal/models"

// CaptureDraft is a normalized request on its way to the day file.
type CaptureDraft struct {
	Record models.CaptureRecord
	// Date names the day file the record is appended to.
	Date string
	// Drop skips persistence; later hooks still run.
	Drop bool
}

// HTTPResponsePlan describes the response to be sent to the caller.
type HTTPResponsePlan struct {
	Status  int
	Headers map[string]string
	Body    []byte
	Handled bool
}
