package cluster

import (
	"bytes"
	"encoding/gob"
)

// gobDecode mirrors the encoding pkg/leader uses for the same match-term
// vectors, so a leader and follower built from this same module always
// agree on the wire form.
func gobDecode(data []byte, out any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(out)
}
