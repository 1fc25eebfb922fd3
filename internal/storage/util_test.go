package storage

import (
	"errors"
	"testing"
)

func TestLatestVersionBySemver(t *testing.T) {
	tests := []struct {
		name     string
		versions []string
		want     string
	}{
		{"empty list", []string{}, ""},
		{"single version", []string{"1.0.0"}, "1.0.0"},
		{"multiple versions ascending", []string{"1.0.0", "1.1.0", "2.0.0"}, "2.0.0"},
		{"multiple versions descending", []string{"2.0.0", "1.1.0", "1.0.0"}, "2.0.0"},
		{"multiple versions unsorted", []string{"1.1.0", "0.9.0", "1.0.0"}, "1.1.0"},
		{"with v prefix", []string{"v1.0.0", "v1.1.0"}, "1.1.0"},
		{"mixed v prefix", []string{"1.0.0", "v1.1.0"}, "1.1.0"},
		{"prerelease", []string{"1.0.0", "1.0.0-beta.1"}, "1.0.0"},
		{"prerelease vs release", []string{"1.0.0-beta.1", "1.0.0-alpha.1"}, "1.0.0-beta.1"},
		{"newer prerelease", []string{"1.0.0", "2.0.0-rc.1"}, "2.0.0-rc.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := latestVersionBySemver(tt.versions)
			if got != tt.want {
				t.Errorf("latestVersionBySemver(%v) = %v, want %v", tt.versions, got, tt.want)
			}
		})
	}
}

func TestPickLatest(t *testing.T) {
	tests := []struct {
		name string
		refs []planRef
		want string
	}{
		{"none", nil, ""},
		{"unversioned takes most recent", []planRef{{Hash: "b"}, {Hash: "a"}}, "b"},
		{"highest version", []planRef{{Hash: "new", Version: "1.0.0"}, {Hash: "old", Version: "2.0.0"}}, "old"},
		{"tie goes to most recent", []planRef{{Hash: "new", Version: "1.0.0"}, {Hash: "old", Version: "v1.0.0"}}, "new"},
		{"versioned beats unversioned", []planRef{{Hash: "new"}, {Hash: "old", Version: "0.1.0"}}, "old"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := pickLatest(tt.refs)
			if ok != (tt.want != "") {
				t.Fatalf("pickLatest() ok = %v", ok)
			}
			if got.Hash != tt.want {
				t.Errorf("pickLatest() = %v, want %v", got.Hash, tt.want)
			}
		})
	}
}

func TestCursorRoundTrip(t *testing.T) {
	cursor := encodeCursor(Plan{ModuleID: "Market", Hash: "sha256:ab"})
	moduleID, hash, err := decodeCursor(cursor)
	if err != nil {
		t.Fatalf("decodeCursor() error = %v", err)
	}
	if moduleID != "Market" || hash != "sha256:ab" {
		t.Errorf("decodeCursor() = %s, %s", moduleID, hash)
	}
	if _, _, err := decodeCursor("no-separator"); !errors.Is(err, ErrInvalidCursor) {
		t.Errorf("decodeCursor() error = %v, want ErrInvalidCursor", err)
	}
}
