//go:build !windows

package memkit

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/ebitengine/purego"
	"golang.org/x/sys/unix"
)

func libcCandidates() []string {
	switch runtime.GOOS {
	case "darwin", "ios":
		return []string{"/usr/lib/libSystem.B.dylib"}
	case "freebsd":
		return []string{"libc.so.7"}
	}
	return []string{"libc.so.6", "libc.so"}
}

func openLibc() (*libc, error) {
	var (
		handle uintptr
		name   string
		err    error
	)
	for _, name = range libcCandidates() {
		handle, err = purego.Dlopen(name, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("dlopen libc: %w", err)
	}

	c := &libc{
		name:     name,
		pageSize: uint(unix.Getpagesize()),
	}
	var alignedAlloc func(alignment, size uintptr) unsafe.Pointer
	for sym, fptr := range map[string]any{
		"malloc":        &c.malloc,
		"free":          &c.free,
		"realloc":       &c.realloc,
		"aligned_alloc": &alignedAlloc,
	} {
		addr, err := purego.Dlsym(handle, sym)
		if err != nil {
			return nil, fmt.Errorf("dlsym %s: %w", sym, err)
		}
		purego.RegisterFunc(fptr, addr)
	}

	// C11 aligned_alloc wants a size that is a multiple of the alignment,
	// and some libcs reject alignments below the pointer size.
	c.alignedAlloc = func(alignment, size uintptr) unsafe.Pointer {
		alignment = max(alignment, uintptr(ptrSize))
		if size > ^uintptr(0)-alignment {
			return nil
		}
		return alignedAlloc(alignment, alignUp(size, alignment))
	}
	c.alignedFree = c.free
	return c, nil
}
