//go:build !debug

package memkit

// assertf is a no-op in normal builds, violations are reported as errors.
func assertf(cond bool, format string, args ...any) {}
