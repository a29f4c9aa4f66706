package app

import (
	"testing"

	"github.com/linhnh2711/examen-civique-app-sub000/internal/domain"
)

func TestComputeIntegrityTagIsDeterministic(t *testing.T) {
	a := computeIntegrityTag(domain.TierBasic, "salt", 2)
	b := computeIntegrityTag(domain.TierBasic, "salt", 2)
	if a != b {
		t.Fatalf("expected deterministic tag, got %s and %s", a, b)
	}
	if a == computeIntegrityTag(domain.TierFull, "salt", 2) {
		t.Fatalf("expected tier to influence the tag")
	}
	if a == computeIntegrityTag(domain.TierBasic, "other", 2) {
		t.Fatalf("expected salt to influence the tag")
	}
	if a == computeIntegrityTag(domain.TierBasic, "salt", 3) {
		t.Fatalf("expected version to influence the tag")
	}
}

func TestIntegrityVerifierTable(t *testing.T) {
	// Current format.
	tag := computeIntegrityTag(domain.TierFull, "salt", 2)
	if !integrityVerifiers[2](domain.TierFull, "salt", tag) {
		t.Fatalf("expected v2 tag to verify")
	}
	if integrityVerifiers[2](domain.TierBasic, "salt", tag) {
		t.Fatalf("expected v2 tag bound to its tier")
	}

	// Legacy format still verifies through its own entry.
	legacy := legacyIntegrityTag(domain.TierBasic, "salt")
	if !integrityVerifiers[1](domain.TierBasic, "salt", legacy) {
		t.Fatalf("expected legacy tag to verify")
	}
}

func TestParseSignature(t *testing.T) {
	if version, tag := parseSignature("2:abcd1234"); version != 2 || tag != "abcd1234" {
		t.Fatalf("expected versioned signature parsed, got v%d %q", version, tag)
	}
	// Bare tags predate the versioned format.
	if version, tag := parseSignature("00ff00"); version != 1 || tag != "00ff00" {
		t.Fatalf("expected bare tag treated as v1, got v%d %q", version, tag)
	}
}
