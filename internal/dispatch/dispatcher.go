// Package dispatch routes intent requests to their registered workflow
// handlers. The dispatcher is the failure boundary: a handler error or panic
// becomes a structured result, never a crashed caller.
package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"

	"github.com/identity-guardian/guardian/internal/faults"
	"github.com/identity-guardian/guardian/internal/logging"
	"github.com/identity-guardian/guardian/internal/telemetry"
)

// Result status values.
const (
	StatusOK          = "ok"
	StatusInvalid     = "invalid"
	StatusUnsupported = "unsupported"
	StatusError       = "error"
)

// Request is one intent invocation.
type Request struct {
	Intent  string                 `json:"intent"`
	Payload map[string]interface{} `json:"payload"`
}

// Result is the dispatcher's response envelope.
type Result struct {
	Intent string      `json:"intent"`
	Status string      `json:"status"`
	Data   interface{} `json:"data,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// Handler executes one intent against its payload.
type Handler func(ctx context.Context, payload map[string]interface{}) (interface{}, error)

// Dispatcher maps intents to handlers. The table is fixed at startup;
// Register is not safe to call after Dispatch begins.
type Dispatcher struct {
	handlers map[string]Handler
	logger   *logging.Logger
	metrics  *telemetry.Metrics
}

// New creates an empty dispatcher.
func New(logger *logging.Logger, metrics *telemetry.Metrics) *Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{
		handlers: make(map[string]Handler),
		logger:   logger,
		metrics:  metrics,
	}
}

// Register binds an intent to its handler. Registering a duplicate intent
// panics: the table is static and a collision is a programming error.
func (d *Dispatcher) Register(intent string, h Handler) {
	if _, exists := d.handlers[intent]; exists {
		panic(fmt.Sprintf("dispatch: duplicate handler for intent %q", intent))
	}
	d.handlers[intent] = h
}

// Intents returns the registered intent names, sorted.
func (d *Dispatcher) Intents() []string {
	out := make([]string, 0, len(d.handlers))
	for intent := range d.handlers {
		out = append(out, intent)
	}
	sort.Strings(out)
	return out
}

// Dispatch routes a request to its handler and folds the outcome into a
// Result. Handler panics are recovered and reported as errors.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (res Result) {
	res = Result{Intent: req.Intent}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("handler panicked",
				"intent", req.Intent, "panic", r, "stack", string(debug.Stack()))
			res = Result{
				Intent: req.Intent,
				Status: StatusError,
				Error:  fmt.Sprintf("internal error handling intent %s", req.Intent),
			}
		}
		if d.metrics != nil {
			d.metrics.DispatchRequests.WithLabelValues(req.Intent, res.Status).Inc()
		}
	}()

	h, ok := d.handlers[req.Intent]
	if !ok {
		err := &faults.UnsupportedIntentError{Intent: req.Intent}
		d.logger.Warn("unsupported intent", "intent", req.Intent)
		res.Status = StatusUnsupported
		res.Error = err.Error()
		return res
	}

	data, err := h(ctx, req.Payload)
	if err != nil {
		res.Error = err.Error()
		switch {
		case faults.IsValidation(err):
			res.Status = StatusInvalid
			d.logger.Warn("intent rejected", "intent", req.Intent, "error", err)
		case faults.IsUnsupportedIntent(err):
			res.Status = StatusUnsupported
			d.logger.Warn("unsupported intent", "intent", req.Intent, "error", err)
		case faults.IsInvariant(err):
			// A surfaced invariant violation is a bug, not an operating
			// condition. Log loudly, report as a plain error downstream.
			res.Status = StatusError
			d.logger.Error("invariant violation surfaced to dispatcher",
				"intent", req.Intent, "error", err)
		default:
			res.Status = StatusError
			d.logger.Error("intent failed", "intent", req.Intent, "error", err)
		}
		// Partial results still travel with the error envelope.
		res.Data = data
		return res
	}

	res.Status = StatusOK
	res.Data = data
	return res
}
