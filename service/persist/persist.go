package persist

import (
	"github.com/segmentio/ksuid"
)

// DBID represents an application-wide entity ID
type DBID string

// GenerateID generates an application-wide unique ID
func GenerateID() DBID {
	id, err := ksuid.NewRandom()
	if err != nil {
		panic(err)
	}
	return DBID(id.String())
}

func (d DBID) String() string {
	return string(d)
}

var notFoundError = ErrNotFound{}

// ErrNotFound is the root of every not-found error in the module so callers can
// match the whole class with errors.Is.
type ErrNotFound struct{}

func (e ErrNotFound) Error() string { return "entity not found" }
