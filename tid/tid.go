// Package tid implements the temporal id: a 12-byte identifier whose leading
// bytes encode the creation second and which sorts lexicographically.
//
// Layout:
//
//	[0:4]  seconds since the Unix epoch, big-endian
//	[4:9]  per-process random bytes
//	[9:12] counter, big-endian
//
// New never returns a value less than or equal to anything it returned before,
// or to anything passed to Observe. TIDs are the only ordering primitive the
// lookup engine uses.
package tid

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"time"

	"github.com/teranos/strata/errors"
)

// Size is the number of bytes in a TID.
const Size = 12

// TID is a temporal id. The zero value is Empty.
type TID [Size]byte

var (
	// Empty denotes the root dataset and the no-value TID. It sorts before every other TID.
	Empty TID

	// Max sorts after every TID that can be created; used as the "now" cutoff.
	Max = TID{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
)

// New returns a TID strictly greater than every TID previously returned by New
// or passed to Observe in this process.
func New() TID {
	return defaultGenerator.New()
}

// Observe records a TID read from storage so later calls to New exceed it.
func Observe(t TID) {
	defaultGenerator.Observe(t)
}

// FromTime returns the smallest TID whose creation second is t's second.
// Use it to build time-based cutoffs.
func FromTime(t time.Time) TID {
	var id TID
	binary.BigEndian.PutUint32(id[0:4], uint32(t.Unix()))
	return id
}

// FromBytes copies a 12-byte slice into a TID.
func FromBytes(b []byte) (TID, error) {
	var id TID
	if len(b) != Size {
		return id, errors.NewMalformedID("tid must be %d bytes, got %d", Size, len(b))
	}
	copy(id[:], b)
	return id, nil
}

// Parse parses a 24-character hex string.
func Parse(s string) (TID, error) {
	var id TID
	if len(s) != 2*Size {
		return id, errors.NewMalformedID("tid %q must be %d hex characters, got %d", s, 2*Size, len(s))
	}
	if _, err := hex.Decode(id[:], []byte(s)); err != nil {
		return Empty, errors.NewMalformedID("tid %q is not valid hex: %v", s, err)
	}
	return id, nil
}

// MustParse is Parse for constants and tests; it panics on malformed input.
func MustParse(s string) TID {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

// String returns the 24-character lowercase hex form.
func (t TID) String() string {
	return hex.EncodeToString(t[:])
}

// Bytes returns a copy of the raw bytes.
func (t TID) Bytes() []byte {
	b := make([]byte, Size)
	copy(b, t[:])
	return b
}

// IsEmpty reports whether t is the Empty TID.
func (t TID) IsEmpty() bool {
	return t == Empty
}

// Compare returns -1, 0 or +1 ordering t against o lexicographically.
func (t TID) Compare(o TID) int {
	return bytes.Compare(t[:], o[:])
}

// Less reports whether t sorts before o.
func (t TID) Less(o TID) bool {
	return t.Compare(o) < 0
}

// Time returns the creation second encoded in t.
func (t TID) Time() time.Time {
	return time.Unix(int64(binary.BigEndian.Uint32(t[0:4])), 0).UTC()
}

// MarshalText implements encoding.TextMarshaler.
func (t TID) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *TID) UnmarshalText(text []byte) error {
	id, err := Parse(string(text))
	if err != nil {
		return err
	}
	*t = id
	return nil
}

// MaxOf returns the greater of a and b.
func MaxOf(a, b TID) TID {
	if a.Less(b) {
		return b
	}
	return a
}

// increment returns t+1 treating the TID as a 96-bit big-endian integer.
// Incrementing Max wraps to Empty; the generator never gets there in practice.
func (t TID) increment() TID {
	for i := Size - 1; i >= 0; i-- {
		t[i]++
		if t[i] != 0 {
			break
		}
	}
	return t
}
