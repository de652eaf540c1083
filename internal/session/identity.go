package session

import (
	"errors"
	"os"
	"strings"
)

// ClientIDPrefix is the fixed first component of every client identity.
const ClientIDPrefix = "mqtt2file"

// HostFunc returns the local host name. os.Hostname satisfies it.
type HostFunc func() (string, error)

// Identity is the MQTT client identity of a bridge instance.
//
// It is immutable once built and identical across restarts for the same
// host and suffix, which is what allows a persistent session to be resumed.
type Identity struct {
	// Base is "mqtt2file-<host>".
	Base string

	// Suffix is the optional operator-supplied suffix. Empty means the
	// bridge runs with a clean session.
	Suffix string
}

// BuildIdentity resolves the host name and combines it with suffix.
//
// A nil host function falls back to os.Hostname. Failure to resolve the
// host, or an empty host name, yields an *IdentityError.
func BuildIdentity(host HostFunc, suffix string) (Identity, error) {
	if host == nil {
		host = os.Hostname
	}

	name, err := host()
	if err != nil {
		return Identity{}, &IdentityError{Err: err}
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Identity{}, &IdentityError{Err: errors.New("empty host name")}
	}

	return Identity{
		Base:   ClientIDPrefix + "-" + name,
		Suffix: suffix,
	}, nil
}

// ClientID returns the identity in its wire form.
func (i Identity) ClientID() string {
	if i.Suffix == "" {
		return i.Base
	}
	return i.Base + "-" + i.Suffix
}

// HasSuffix reports whether a suffix was supplied, i.e. whether the bridge
// wants a persistent session.
func (i Identity) HasSuffix() bool {
	return i.Suffix != ""
}

func (i Identity) String() string {
	return i.ClientID()
}
