// Package ir provides the value model and declaration types shared by the
// rulescript compiler, engine and store.
//
// ir imports nothing internal. Every other internal package builds on it.
//
// Key design constraints:
//   - NO float types anywhere - use int64 for numbers
//   - References between facts are IRRef ids, never pointers
//   - All JSON tags use snake_case
//   - Canonical JSON (RFC 8785) is the only serialization used for hashing
package ir
