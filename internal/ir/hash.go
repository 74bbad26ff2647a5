package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Domain prefixes for content hashes. The version suffix allows the
// hashed layout to change without colliding with older hashes.
const (
	DomainRuleset = "rulescript/ruleset/v1"
	DomainFact    = "rulescript/fact/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// RulesetHash identifies a compiled ruleset. Runs record it so stored
// results can be tied back to the rules that produced them.
func RulesetHash(rs Ruleset) (string, error) {
	// Struct field order is fixed and IRObject marshals with sorted keys,
	// so encoding/json output is stable here.
	data, err := json.Marshal(rs)
	if err != nil {
		return "", fmt.Errorf("RulesetHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainRuleset, data), nil
}

// FactHash hashes a fact's type and field values. Ids are excluded, so
// two runs that derive the same content produce the same hash.
func FactHash(typeName string, fields IRObject) (string, error) {
	canonical, err := MarshalCanonical(IRObject{
		"type":   IRString(typeName),
		"fields": fields,
	})
	if err != nil {
		return "", fmt.Errorf("FactHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainFact, canonical), nil
}

// MustRulesetHash is like RulesetHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustRulesetHash(rs Ruleset) string {
	h, err := RulesetHash(rs)
	if err != nil {
		panic(err)
	}
	return h
}
