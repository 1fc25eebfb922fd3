// Package validation checks identifiers and versions accepted from manifests
// and the HTTP API.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/mod/semver"
)

// Module ids become part of every action id, so they may not contain the
// '#' and '/' separators. '.' separates module and result in manifest
// references.
var moduleIDRegex = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

// Logical action, result and parameter names in manifests.
var nameRegex = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_-]*$`)

var planHashRegex = regexp.MustCompile(`^sha256:[0-9a-f]{64}$`)

const maxIDLength = 64

// ValidateModuleID validates a module id
func ValidateModuleID(id string) error {
	if id == "" {
		return errors.New("module id cannot be empty")
	}
	if len(id) > maxIDLength {
		return fmt.Errorf("module id too long (max %d chars)", maxIDLength)
	}
	if !moduleIDRegex.MatchString(id) {
		return errors.New("invalid module id: must start with a letter and contain only letters, digits, '_' or '-'")
	}
	return nil
}

// ValidateName validates the logical name of an action or result
func ValidateName(name string) error {
	if name == "" {
		return errors.New("name cannot be empty")
	}
	if len(name) > maxIDLength {
		return fmt.Errorf("name too long (max %d chars)", maxIDLength)
	}
	if !nameRegex.MatchString(name) {
		return fmt.Errorf("invalid name %q: only letters, digits, '_' or '-' allowed", name)
	}
	return nil
}

// ValidatePlanHash validates a "sha256:<hex>" plan hash
func ValidatePlanHash(hash string) error {
	if !planHashRegex.MatchString(hash) {
		return errors.New("invalid plan hash: must be sha256: followed by 64 lowercase hex chars")
	}
	return nil
}

// ValidateVersion validates a semantic version string
func ValidateVersion(v string) error {
	normalized := NormalizeVersion(v)
	if normalized == "" {
		return errors.New("version cannot be empty")
	}

	// x/mod/semver wants the leading 'v'
	if !semver.IsValid("v" + normalized) {
		return errors.New("invalid semver version: must be in format X.Y.Z or X.Y.Z-prerelease")
	}

	// semver accepts "v1" and "v1.2" as shorthands; require all three parts
	core, _, _ := strings.Cut(normalized, "-")
	core, _, _ = strings.Cut(core, "+")
	if strings.Count(core, ".") != 2 {
		return errors.New("invalid semver version: must be in format X.Y.Z (major.minor.patch)")
	}
	return nil
}

// NormalizeVersion strips a leading 'v'
func NormalizeVersion(v string) string {
	return strings.TrimPrefix(v, "v")
}

// IsPrerelease checks if a version is a prerelease
func IsPrerelease(v string) bool {
	return semver.Prerelease("v"+NormalizeVersion(v)) != ""
}

// CompareVersions returns -1, 0 or 1. Versions that are not valid semver
// sort before every valid one.
func CompareVersions(v1, v2 string) int {
	return semver.Compare("v"+NormalizeVersion(v1), "v"+NormalizeVersion(v2))
}

// ResolveLatest returns the highest version in the list. Prereleases are
// skipped unless includePrerelease is set or nothing else is available.
func ResolveLatest(versions []string, includePrerelease bool) string {
	if len(versions) == 0 {
		return ""
	}

	var candidates []string
	for _, v := range versions {
		if !includePrerelease && IsPrerelease(v) {
			continue
		}
		candidates = append(candidates, v)
	}
	if len(candidates) == 0 {
		candidates = versions
	}

	latest := candidates[0]
	for _, v := range candidates[1:] {
		if CompareVersions(v, latest) > 0 {
			latest = v
		}
	}
	return latest
}

// ValidateAddress validates a hex account or contract address
func ValidateAddress(addr string) error {
	if len(addr) != 42 {
		return errors.New("invalid address length: must be 42 characters (0x + 40 hex)")
	}
	if !strings.HasPrefix(addr, "0x") {
		return errors.New("invalid address: must start with 0x")
	}
	for _, c := range addr[2:] {
		isDigit := c >= '0' && c <= '9'
		isLowerHex := c >= 'a' && c <= 'f'
		isUpperHex := c >= 'A' && c <= 'F'
		if !isDigit && !isLowerHex && !isUpperHex {
			return errors.New("invalid address: contains non-hex characters")
		}
	}
	return nil
}
