// Package emulators contains utilities to work with the *_EMULATOR_HOST
// environment variables that point tests at locally running backends.
package emulators

import (
	"os"
	"testing"
)

// Emulator represents a test-only server, e.g. a CockroachDB or Redis
// instance.
type Emulator string

const (
	// CockroachDB represents a test-only CockroachDB instance.
	CockroachDB       = Emulator("CockroachDB")
	CockroachDBEnvVar = "COCKROACHDB_EMULATOR_HOST"

	// Redis represents a test-only Redis instance.
	Redis       = Emulator("Redis")
	RedisEnvVar = "REDIS_EMULATOR_HOST"
)

var AllEmulators = []Emulator{CockroachDB, Redis}

// GetEmulatorHostEnvVar returns the contents of the *_EMULATOR_HOST environment variable
// corresponding to the given emulator, or the empty string if the environment variable is unset.
func GetEmulatorHostEnvVar(emulator Emulator) string {
	return os.Getenv(GetEmulatorHostEnvVarName(emulator))
}

// GetEmulatorHostEnvVarName returns the name of the *_EMULATOR_HOST environment variable
// corresponding to the given emulator.
func GetEmulatorHostEnvVarName(emulator Emulator) string {
	switch emulator {
	case CockroachDB:
		return CockroachDBEnvVar
	case Redis:
		return RedisEnvVar
	default:
		panic("Unknown emulator " + emulator)
	}
}

// RequireEmulator skips the test unless the emulator's host is set, and
// returns the host.
func RequireEmulator(t testing.TB, emulator Emulator) string {
	host := GetEmulatorHostEnvVar(emulator)
	if host == "" {
		t.Skipf("%s not set; skipping test that needs %s", GetEmulatorHostEnvVarName(emulator), emulator)
	}
	return host
}
