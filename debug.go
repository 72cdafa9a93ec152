//go:build debug

package memkit

import "fmt"

// In debug builds, contract violations panic at the call site.

func assertf(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf("memkit: "+format, args...))
	}
}
