// Package id generates the identifiers used throughout LeaseQ.
//
// Every identifier is a ULID: lexicographically sortable by creation time and
// unique without coordination. Item ids, queue ids and snapshot archive keys
// all come from here, so sorting any of them by string also sorts them by the
// moment they were minted.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// monoEntropy is a package-level monotone entropy source shared across all
// New calls. Using a single shared source keeps ULIDs ordered even when
// generated within the same millisecond.
var (
	monoMu      sync.Mutex
	monoEntropy io.Reader = ulid.Monotonic(rand.Reader, 0)
)

// New generates a fresh ULID string.
func New() (string, error) {
	return At(time.Now())
}

// At generates a ULID whose timestamp component is t.
func At(t time.Time) (string, error) {
	monoMu.Lock()
	defer monoMu.Unlock()
	id, err := ulid.New(ulid.Timestamp(t), monoEntropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// MustNew is like New but panics on error. Use only in tests, demos or init
// code.
func MustNew() string {
	s, err := New()
	if err != nil {
		panic(fmt.Sprintf("id.MustNew: %v", err))
	}
	return s
}

// Validate returns an error if s is not a well-formed ULID string.
func Validate(s string) error {
	_, err := ulid.ParseStrict(s)
	return err
}

// Time returns the creation time encoded in a ULID string.
func Time(s string) (time.Time, error) {
	u, err := ulid.ParseStrict(s)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(u.Time()), nil
}
