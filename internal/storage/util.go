package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pendergraft/ignition/internal/validation"
)

// generateID generates a new UUID
func generateID() string {
	return uuid.New().String()
}

// computeHash computes SHA256 hash of content
func computeHash(content []byte) string {
	h := sha256.Sum256(content)
	return hex.EncodeToString(h[:])
}

// timeLayout is fixed width so timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// now is the creation timestamp written by both stores.
func now() string {
	return time.Now().UTC().Format(timeLayout)
}

// latestVersionBySemver returns the highest version, normalized without a
// leading 'v'. A release outranks its own prereleases.
func latestVersionBySemver(versions []string) string {
	return validation.NormalizeVersion(validation.ResolveLatest(versions, true))
}

// planRef is the part of a row needed to pick the latest plan.
type planRef struct {
	Hash    string
	Version string
}

// pickLatest chooses the plan with the highest version and, among equal
// versions, the most recent one. refs must be ordered most recent first.
func pickLatest(refs []planRef) (planRef, bool) {
	if len(refs) == 0 {
		return planRef{}, false
	}

	var versions []string
	for _, r := range refs {
		if r.Version != "" {
			versions = append(versions, r.Version)
		}
	}
	if len(versions) == 0 {
		return refs[0], true
	}

	latest := latestVersionBySemver(versions)
	for _, r := range refs {
		if validation.NormalizeVersion(r.Version) == latest {
			return r, true
		}
	}
	return refs[0], true
}

// encodeCursor and decodeCursor implement keyset pagination over
// (module_id, hash). Module ids never contain '/'.
func encodeCursor(p Plan) string {
	return p.ModuleID + "/" + p.Hash
}

func decodeCursor(cursor string) (moduleID, hash string, err error) {
	moduleID, hash, ok := strings.Cut(cursor, "/")
	if !ok || moduleID == "" || hash == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidCursor, cursor)
	}
	return moduleID, hash, nil
}

func marshalStrings(s []string) (string, error) {
	if s == nil {
		s = []string{}
	}
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalStrings(s string) []string {
	var out []string
	if s == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}

// prepare fills generated fields before an insert.
func prepare(p *Plan) error {
	if p.ModuleID == "" || p.Hash == "" {
		return fmt.Errorf("plan requires module id and hash")
	}
	if p.ID == "" {
		p.ID = generateID()
	}
	if p.ManifestHash == "" && len(p.Manifest) > 0 {
		p.ManifestHash = computeHash(p.Manifest)
	}
	if p.CreatedAt == "" {
		p.CreatedAt = now()
	}
	return nil
}

func pageLimit(pagination PaginationParams) int {
	if pagination.Limit <= 0 || pagination.Limit > 100 {
		return 20
	}
	return pagination.Limit
}
