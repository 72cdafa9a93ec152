//go:build windows

package memkit

import (
	"fmt"
	"unsafe"

	"github.com/ebitengine/purego"
	"golang.org/x/sys/windows"
)

const ucrt = "ucrtbase.dll"

func openLibc() (*libc, error) {
	handle, err := windows.LoadLibrary(ucrt)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", ucrt, err)
	}

	c := &libc{
		name:     ucrt,
		pageSize: uint(windows.Getpagesize()),
	}
	var alignedMalloc func(size, alignment uintptr) unsafe.Pointer
	for sym, fptr := range map[string]any{
		"malloc":          &c.malloc,
		"free":            &c.free,
		"realloc":         &c.realloc,
		"_aligned_malloc": &alignedMalloc,
		"_aligned_free":   &c.alignedFree,
	} {
		addr, err := windows.GetProcAddress(handle, sym)
		if err != nil {
			return nil, fmt.Errorf("GetProcAddress %s: %w", sym, err)
		}
		purego.RegisterFunc(fptr, addr)
	}

	// _aligned_malloc takes the size first and must be released with
	// _aligned_free rather than free.
	c.alignedAlloc = func(alignment, size uintptr) unsafe.Pointer {
		return alignedMalloc(size, alignment)
	}
	return c, nil
}
