// Package id generates short random identifiers for background runs,
// so log lines of one sweep or repair can be correlated.
package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Run id prefixes.
const (
	PrefixSweep  = "sweep"
	PrefixRepair = "repair"
)

// alphabet avoids characters that need quoting in log pipelines.
const (
	alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	length   = 12
)

// Generate creates a prefixed run id, e.g. "sweep-4k2n9x0qz1ab".
// Returns an error if the system has insufficient entropy.
func Generate(prefix string) (string, error) {
	id, err := gonanoid.Generate(alphabet, length)
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + id, nil
}

// MustGenerate is like Generate but panics if generation fails.
func MustGenerate(prefix string) string {
	id, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return id
}
