package session

// DefaultSessionExpiry is the session expiry interval, in seconds, requested
// for persistent sessions: 100 hours, so that a restart or a weekend outage
// does not lose the subscription.
const DefaultSessionExpiry uint32 = 360000

// Policy selects between a clean and a persistent broker session.
type Policy struct {
	// Persistent requests Clean Start = false so the broker resumes any
	// session it holds for the client identity.
	Persistent bool

	// ExpirySeconds is the MQTT v5 Session Expiry Interval. Zero for clean
	// sessions.
	ExpirySeconds uint32
}

// BuildPolicy derives the session policy from whether a client id suffix
// was supplied. No suffix means a clean session; a suffix means a persistent
// session with DefaultSessionExpiry.
func BuildPolicy(hasSuffix bool) Policy {
	if !hasSuffix {
		return Policy{}
	}
	return Policy{
		Persistent:    true,
		ExpirySeconds: DefaultSessionExpiry,
	}
}

// WithExpiry returns a copy of p with the expiry replaced. It has no effect
// on clean sessions, and a zero value keeps the current expiry.
func (p Policy) WithExpiry(seconds uint32) Policy {
	if !p.Persistent || seconds == 0 {
		return p
	}
	p.ExpirySeconds = seconds
	return p
}

// CleanStart is the value of the MQTT v5 Clean Start flag for this policy.
func (p Policy) CleanStart() bool {
	return !p.Persistent
}
