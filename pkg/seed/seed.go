// Package seed derives the small per-deployment coefficients that perturb
// waitlist priority scoring. The derivation is deterministic: the same
// fingerprint always yields the same seed, so scores stay reproducible within
// a deployment while differing across deployments.
package seed

import (
	"fmt"
	"strconv"
	"sync"
	"time"
)

const valueLen = 12

// Seed holds the rendered seed value and the three scoring coefficients.
type Seed struct {
	Value  string
	CoeffA int // [7,11]
	CoeffB int // [13,19]
	CoeffC int // [3,5]
}

// Fingerprint builds the canonical fingerprint string from a stable project
// identifier, the project's first-activity timestamp, and the deployment
// start timestamp. The delimiter must not appear in any component.
func Fingerprint(projectID string, firstActivity, deployedAt time.Time) string {
	return fmt.Sprintf("%s|%d|%d", projectID, firstActivity.UnixMilli(), deployedAt.UnixMilli())
}

// Generate computes a Seed from a fingerprint. Pure and total: an empty or
// degenerate fingerprint still produces a valid (low-entropy) seed.
func Generate(fingerprint string) Seed {
	var h int32
	for _, r := range fingerprint {
		h = h*31 + int32(r) // wraps to 32-bit signed each step
	}

	u := uint32(h)
	if h < 0 {
		u = uint32(-int64(h))
	}

	value := fmt.Sprintf("%0*x", valueLen, u)
	if len(value) > valueLen {
		value = value[:valueLen]
	}

	// A 32-bit hash renders to at most 8 hex chars, so the padded value
	// carries its entropy in the suffix. Coefficient windows are read there.
	return Seed{
		Value:  value,
		CoeffA: 7 + hexWindow(value, 6)%5,
		CoeffB: 13 + hexWindow(value, 8)%7,
		CoeffC: 3 + hexWindow(value, 10)%3,
	}
}

func hexWindow(value string, offset int) int {
	n, err := strconv.ParseInt(value[offset:offset+2], 16, 32)
	if err != nil {
		return 0
	}
	return int(n)
}

// Generator memoizes a Seed for the process lifetime. The fingerprint is
// fixed per deployment, so the seed is computed at most once and is safe for
// concurrent reads afterwards.
type Generator struct {
	fingerprint string

	once sync.Once
	seed Seed
}

func NewGenerator(fingerprint string) *Generator {
	return &Generator{fingerprint: fingerprint}
}

// Seed returns the memoized seed, computing it on first use.
func (g *Generator) Seed() Seed {
	g.once.Do(func() {
		g.seed = Generate(g.fingerprint)
	})
	return g.seed
}
