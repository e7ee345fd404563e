package ai

import (
	"math/rand/v2"
	"strconv"
	"strings"
)

// Replies holds the user-facing text for every non-success outcome.
// UpstreamError may contain a {status} placeholder.
type Replies struct {
	Unconfigured      string
	Warming           string
	RateLimited       string
	UpstreamError     string
	Timeout           string
	ConnectionFailure string
	Unexpected        string
	Busy              string
	Fallbacks         []string
}

// DefaultReplies returns the built-in English replies.
func DefaultReplies() Replies {
	return Replies{
		Unconfigured:      "👋 Hi! I'm your AI assistant. Setup is still being finished, please check back soon.",
		Warming:           "The model is warming up. Please try again in a few seconds.",
		RateLimited:       "The model is receiving too many requests right now. Please try again shortly.",
		UpstreamError:     "The AI service answered with an error (status {status}). Please try again later.",
		Timeout:           "Connection to the AI service timed out. Please try again.",
		ConnectionFailure: "Could not connect to the AI service. Please try again later.",
		Unexpected:        "🤖 Sorry, something went wrong on my side. I'm ready for your next question!",
		Busy:              "I'm handling a lot of conversations right now. Please try again in a moment.",
		Fallbacks: []string{
			"Interesting question! Could you tell me more?",
			"Got it. What else can I help you with?",
			"Thanks for the message! What are you interested in?",
			"Hi! Glad to chat. How can I help?",
		},
	}
}

// Merge fills every empty field of r from def.
func (r Replies) Merge(def Replies) Replies {
	pick := func(v, d string) string {
		if strings.TrimSpace(v) == "" {
			return d
		}
		return v
	}
	r.Unconfigured = pick(r.Unconfigured, def.Unconfigured)
	r.Warming = pick(r.Warming, def.Warming)
	r.RateLimited = pick(r.RateLimited, def.RateLimited)
	r.UpstreamError = pick(r.UpstreamError, def.UpstreamError)
	r.Timeout = pick(r.Timeout, def.Timeout)
	r.ConnectionFailure = pick(r.ConnectionFailure, def.ConnectionFailure)
	r.Unexpected = pick(r.Unexpected, def.Unexpected)
	r.Busy = pick(r.Busy, def.Busy)
	if len(r.Fallbacks) == 0 {
		r.Fallbacks = def.Fallbacks
	}
	return r
}

// Text maps a call result to the reply shown to the user.
func (r Replies) Text(res Result) string {
	switch res.Outcome {
	case OutcomeSucceeded:
		return res.Text
	case OutcomeUnconfigured:
		return r.Unconfigured
	case OutcomeWarming:
		return r.Warming
	case OutcomeRateLimited:
		return r.RateLimited
	case OutcomeUpstreamError:
		return strings.ReplaceAll(r.UpstreamError, "{status}", strconv.Itoa(res.Status))
	case OutcomeMalformed:
		return r.fallback()
	case OutcomeTimeout:
		return r.Timeout
	case OutcomeConnectionFailure:
		return r.ConnectionFailure
	case OutcomeBusy:
		return r.Busy
	default:
		return r.Unexpected
	}
}

func (r Replies) fallback() string {
	if len(r.Fallbacks) == 0 {
		return r.Unexpected
	}
	return r.Fallbacks[rand.IntN(len(r.Fallbacks))]
}
