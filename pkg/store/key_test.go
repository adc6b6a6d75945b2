package store

import (
	"errors"
	"testing"
	"time"
)

var testRunAt = time.Date(2024, 5, 1, 12, 30, 5, 0, time.UTC)

func TestKey_StringAndPath(t *testing.T) {
	tests := []struct {
		name     string
		key      Key
		wantKey  string
		wantPath string
	}{
		{
			name:     "utc",
			key:      Key{Vendor: "acme", RunAt: testRunAt},
			wantKey:  "batchfetch:raw:acme:2024-05-01_12-30-05",
			wantPath: "raw/acme/2024-05-01_12-30-05_acme.json",
		},
		{
			name:     "non-utc run time is normalized",
			key:      Key{Vendor: "acme", RunAt: testRunAt.In(time.FixedZone("CEST", 2*3600))},
			wantKey:  "batchfetch:raw:acme:2024-05-01_12-30-05",
			wantPath: "raw/acme/2024-05-01_12-30-05_acme.json",
		},
		{
			name:     "vendor with dash",
			key:      Key{Vendor: "pizza-co", RunAt: testRunAt},
			wantKey:  "batchfetch:raw:pizza-co:2024-05-01_12-30-05",
			wantPath: "raw/pizza-co/2024-05-01_12-30-05_pizza-co.json",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.String(); got != tt.wantKey {
				t.Errorf("String() = %q, want %q", got, tt.wantKey)
			}
			if got := tt.key.Path(); got != tt.wantPath {
				t.Errorf("Path() = %q, want %q", got, tt.wantPath)
			}
		})
	}
}

func TestKey_Deterministic(t *testing.T) {
	a := Key{Vendor: "acme", RunAt: testRunAt}
	b := Key{Vendor: "acme", RunAt: testRunAt}

	if a.String() != b.String() {
		t.Errorf("same key produced %q and %q", a.String(), b.String())
	}
}

func TestKey_Validate(t *testing.T) {
	tests := []struct {
		name    string
		key     Key
		wantErr bool
	}{
		{name: "valid", key: Key{Vendor: "acme", RunAt: testRunAt}},
		{name: "empty vendor", key: Key{RunAt: testRunAt}, wantErr: true},
		{name: "padded vendor", key: Key{Vendor: " acme", RunAt: testRunAt}, wantErr: true},
		{name: "dot dot", key: Key{Vendor: "..", RunAt: testRunAt}, wantErr: true},
		{name: "slash", key: Key{Vendor: "a/b", RunAt: testRunAt}, wantErr: true},
		{name: "backslash", key: Key{Vendor: `a\b`, RunAt: testRunAt}, wantErr: true},
		{name: "colon", key: Key{Vendor: "a:b", RunAt: testRunAt}, wantErr: true},
		{name: "zero time", key: Key{Vendor: "acme"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.key.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidKey) {
				t.Errorf("Validate() error = %v, want ErrInvalidKey", err)
			}
		})
	}
}
