package ai

import "time"

// Outcome is the terminal state of one generation call.
type Outcome int

const (
	OutcomeSucceeded Outcome = iota
	OutcomeUnconfigured
	OutcomeWarming
	OutcomeRateLimited
	OutcomeUpstreamError
	OutcomeMalformed
	OutcomeTimeout
	OutcomeConnectionFailure
	OutcomeUnexpected
	OutcomeBusy
)

var outcomeNames = map[Outcome]string{
	OutcomeSucceeded:         "succeeded",
	OutcomeUnconfigured:      "unconfigured",
	OutcomeWarming:           "warming",
	OutcomeRateLimited:       "rate_limited",
	OutcomeUpstreamError:     "upstream_error",
	OutcomeMalformed:         "malformed",
	OutcomeTimeout:           "timeout",
	OutcomeConnectionFailure: "connection_failure",
	OutcomeUnexpected:        "unexpected",
	OutcomeBusy:              "busy",
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return "unknown"
}

// Outcomes lists every outcome in declaration order.
func Outcomes() []Outcome {
	out := make([]Outcome, 0, len(outcomeNames))
	for o := OutcomeSucceeded; o <= OutcomeBusy; o++ {
		out = append(out, o)
	}
	return out
}

// Result is what the gateway hands back for one call. Text is only set on success.
type Result struct {
	Outcome Outcome
	Status  int
	Text    string
	Latency time.Duration
}
