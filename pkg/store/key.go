package store

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// TimestampLayout formats run times in keys and file names.
const TimestampLayout = "2006-01-02_15-04-05"

// ErrInvalidKey indicates a key that cannot be mapped to a location.
var ErrInvalidKey = errors.New("invalid store key")

// Key identifies the raw document of one run.
type Key struct {
	// Vendor names the data source, e.g. "acme". It becomes a path segment.
	Vendor string

	// RunAt is when the run started. Stored in UTC.
	RunAt time.Time
}

// KeyFor returns the key of doc.
func KeyFor(doc *Document) Key {
	return Key{Vendor: doc.Vendor, RunAt: doc.StartedAt}
}

// Validate rejects keys without a run time and vendors that are empty or
// would escape their folder.
func (k Key) Validate() error {
	if err := validateVendor(k.Vendor); err != nil {
		return err
	}
	if k.RunAt.IsZero() {
		return fmt.Errorf("%w: run time is required", ErrInvalidKey)
	}
	return nil
}

func validateVendor(vendor string) error {
	v := strings.TrimSpace(vendor)
	switch {
	case v == "":
		return fmt.Errorf("%w: vendor is required", ErrInvalidKey)
	case v != vendor || v == "." || v == "..":
		return fmt.Errorf("%w: vendor %q", ErrInvalidKey, vendor)
	case strings.ContainsAny(v, `/\:`):
		return fmt.Errorf("%w: vendor %q contains a separator", ErrInvalidKey, vendor)
	}
	return nil
}

// Stamp returns the run time in TimestampLayout.
func (k Key) Stamp() string {
	return k.RunAt.UTC().Format(TimestampLayout)
}

// String generates a deterministic Redis key.
// Format: batchfetch:raw:<vendor>:<stamp>
//
// Example:
//
//	batchfetch:raw:acme:2024-05-01_12-00-00
func (k Key) String() string {
	return strings.Join([]string{"batchfetch", "raw", k.Vendor, k.Stamp()}, ":")
}

// Path returns the slash-separated location relative to a store base.
//
// Example:
//
//	raw/acme/2024-05-01_12-00-00_acme.json
func (k Key) Path() string {
	return "raw/" + k.Vendor + "/" + k.Stamp() + "_" + k.Vendor + ".json"
}
