package intercept

import (
	"github.com/Rorqualx/captchagate/internal/resubmit"
	"github.com/Rorqualx/captchagate/internal/types"
)

// Action is the terminal state of one interception cycle.
type Action int

const (
	// ActionPass returns the original response unchanged.
	ActionPass Action = iota
	// ActionRetry hands a resubmission to the crawl engine.
	ActionRetry
	// ActionReject ends the request chain.
	ActionReject
)

// String returns the lowercase action name used in logs, metrics and the API.
func (a Action) String() string {
	switch a {
	case ActionRetry:
		return "retry"
	case ActionReject:
		return "reject"
	default:
		return "pass"
	}
}

// Outcome is the result of Process. Exactly one of Response, Request and
// Err is set, according to Action.
type Outcome struct {
	Action   Action
	Response *types.Response
	Request  *resubmit.Request
	Err      *types.RejectionError
}

// Reason returns the rejection reason, or types.ReasonNone.
func (o Outcome) Reason() types.Reason {
	if o.Err == nil {
		return types.ReasonNone
	}
	return o.Err.Reason
}

func pass(resp *types.Response) Outcome {
	return Outcome{Action: ActionPass, Response: resp}
}

func retry(req *resubmit.Request) Outcome {
	return Outcome{Action: ActionRetry, Request: req}
}

func reject(err *types.RejectionError) Outcome {
	return Outcome{Action: ActionReject, Err: err}
}
