package server

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/rsclarke/hookcatch/internal/capture"
	"github.com/rsclarke/hookcatch/internal/events"
	"github.com/rsclarke/hookcatch/internal/logging"
	"github.com/rsclarke/hookcatch/internal/plugins"
)

// CaptureServer records every inbound request and answers 200 OK.
type CaptureServer struct {
	Pipeline   *plugins.Pipeline
	Normalizer capture.Normalizer
	Options    capture.Options
	Logger     *zap.Logger
	// Now stamps records; defaults to time.Now.
	Now func() time.Time
}

func (s *CaptureServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	in, cleanup, err := capture.FromHTTP(r, s.Options)
	defer cleanup()
	if err != nil {
		level := s.Logger.Warn
		if errors.Is(err, capture.ErrBodyTooLarge) {
			level = s.Logger.Info
		}
		level("partial request read",
			logging.Method(r.Method),
			logging.Path(r.URL.Path),
			zap.Error(err))
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	rec := s.Normalizer.Normalize(in, now())

	e := &events.HTTPEvent{
		Event: events.Event{
			Draft: &events.CaptureDraft{Record: rec},
		},
		In:      in,
		Resp:    &events.HTTPResponsePlan{},
		Scratch: make(map[string]any),
	}

	if err := s.Pipeline.ProcessHTTP(r.Context(), e); err != nil {
		s.Logger.Error("store capture failed",
			logging.Date(e.Draft.Date),
			logging.Method(rec.Method),
			logging.Path(rec.Path),
			zap.Error(err))
	}

	writePlan(w, e.Resp)
}

func writePlan(w http.ResponseWriter, plan *events.HTTPResponsePlan) {
	if plan == nil || !plan.Handled {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
		return
	}
	for k, v := range plan.Headers {
		w.Header().Set(k, v)
	}
	status := plan.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(plan.Body)
}
