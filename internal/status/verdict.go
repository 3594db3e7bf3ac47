package status

import (
	"fmt"
	"time"
)

// Kind classifies a Verdict.
type Kind int

const (
	Allowed Kind = iota
	Cooldown
	Blacklisted
)

func (k Kind) String() string {
	switch k {
	case Allowed:
		return "allowed"
	case Cooldown:
		return "cooldown"
	case Blacklisted:
		return "blacklisted"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Verdict is the admission decision for one visit.
type Verdict struct {
	Kind Kind
	Host string
	// Remaining is set for Cooldown verdicts.
	Remaining time.Duration
	// Message is the text shown to a refused visitor.
	Message string
}

// Allowed reports whether the visit may proceed.
func (v Verdict) Allowed() bool {
	return v.Kind == Allowed
}

func cooldownVerdict(host string, remaining time.Duration) Verdict {
	return Verdict{
		Kind:      Cooldown,
		Host:      host,
		Remaining: remaining,
		Message: fmt.Sprintf("Your cooldown for this page is still pending. Please wait %v",
			remaining.Round(time.Second)),
	}
}

func blacklistedVerdict(host string) Verdict {
	return Verdict{
		Kind:    Blacklisted,
		Host:    host,
		Message: "This page is blacklisted from being visited.",
	}
}
