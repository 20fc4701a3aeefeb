package transport

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Address schemes understood by the factory.
const (
	SchemeIPC    = "ipc"
	SchemeInproc = "inproc"
)

// maxUnixPath is the longest socket path accepted on every supported OS
// (sun_path is 104 bytes on darwin, 108 on linux).
const maxUnixPath = 103

// Address is a parsed endpoint address of the form scheme://target.
type Address struct {
	Scheme string
	Target string
}

// ParseAddress splits and validates an endpoint address.
func ParseAddress(addr string) (Address, error) {
	scheme, target, ok := strings.Cut(addr, "://")
	if !ok || target == "" {
		return Address{}, fmt.Errorf("%w: %q (expected ipc://<path> or inproc://<name>)", ErrInvalidAddress, addr)
	}

	switch scheme {
	case SchemeIPC:
		if len(target) > maxUnixPath {
			return Address{}, fmt.Errorf("%w: socket path %q exceeds %d bytes", ErrInvalidAddress, target, maxUnixPath)
		}
		return Address{Scheme: scheme, Target: filepath.Clean(target)}, nil
	case SchemeInproc:
		return Address{Scheme: scheme, Target: target}, nil
	default:
		return Address{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidAddress, scheme)
	}
}

// String reassembles the address.
func (a Address) String() string {
	return a.Scheme + "://" + a.Target
}
