// Package lualib exposes the memkit system allocator and the bounded
// memory primitives to Lua as `require "memkit"`.
//
// Addresses travel as light userdata, sizes and offsets as integers.
// write and read take the size of the block they touch and never step
// outside it.
// Allocation failures return nil plus a message, bounded primitive
// failures return false plus a message.
package lualib

import (
	"fmt"
	"sync"
	"unsafe"

	"go.yuchanns.xyz/lua"
	"go.yuchanns.xyz/memkit"
)

var system = sync.OnceValues(memkit.NewSystem)

// OpenLibs registers the memkit module in package.preload.
func OpenLibs(L *lua.State) {
	L.GetGlobal("package")
	L.GetField(-1, "preload")

	l := []*lua.Reg{
		{Name: "memkit", Func: Open},
	}
	L.SetFuncs(l, 0)
	L.Pop(2)
}

// Open represents `require("memkit")` in Lua.
func Open(L *lua.State) int {
	l := []*lua.Reg{
		{Name: "malloc", Func: lmalloc},
		{Name: "free", Func: lfree},
		{Name: "realloc", Func: lrealloc},
		{Name: "aligned_alloc", Func: lalignedAlloc},
		{Name: "aligned_free", Func: lalignedFree},
		{Name: "memchr", Func: lmemchr},
		{Name: "memcpy", Func: lmemcpy},
		{Name: "memmove", Func: lmemmove},
		{Name: "write", Func: lwrite},
		{Name: "read", Func: lread},
	}
	L.NewLib(l)
	return 1
}

func getSystem(L *lua.State) *memkit.System {
	s, err := system()
	if err != nil {
		L.Errorf("%s", err.Error())
		return nil
	}
	return s
}

func toPointer(L *lua.State, index int) unsafe.Pointer {
	if L.Type(index) != lua.LUA_TLIGHTUSERDATA {
		return nil
	}
	return L.ToUserData(index)
}

func checkSize(L *lua.State, index int) uint {
	n := L.CheckInteger(index)
	if n < 0 {
		L.Errorf("bad argument #%d, size should not be negative", index)
		return 0
	}
	return uint(n)
}

func pushPointer(L *lua.State, ptr unsafe.Pointer, err error) int {
	if err != nil {
		L.PushNil()
		L.PushString(err.Error())
		return 2
	}
	L.PushLightUserData(ptr)
	return 1
}

func pushStatus(L *lua.State, err error) int {
	if err != nil {
		L.PushBoolean(false)
		L.PushString(err.Error())
		return 2
	}
	L.PushBoolean(true)
	return 1
}

func lmalloc(L *lua.State) int {
	s := getSystem(L)
	ptr, err := s.Alloc(checkSize(L, 1))
	return pushPointer(L, ptr, err)
}

func lfree(L *lua.State) int {
	getSystem(L).Free(toPointer(L, 1))
	return 0
}

func lrealloc(L *lua.State) int {
	s := getSystem(L)
	ptr, err := s.Realloc(toPointer(L, 1), checkSize(L, 2))
	return pushPointer(L, ptr, err)
}

func lalignedAlloc(L *lua.State) int {
	s := getSystem(L)
	ptr, err := s.AlignedAlloc(checkSize(L, 1), checkSize(L, 2))
	return pushPointer(L, ptr, err)
}

func lalignedFree(L *lua.State) int {
	getSystem(L).AlignedFree(toPointer(L, 1))
	return 0
}

// memchr(ptr, ch, count) returns a zero-based offset or -1.
func lmemchr(L *lua.State) int {
	ch := L.CheckInteger(2)
	if ch < 0 || ch > 0xFF {
		return L.Errorf("bad argument #2, byte expected, got %d", ch)
	}
	L.PushInteger(int64(memkit.Memchr(toPointer(L, 1), byte(ch), checkSize(L, 3))))
	return 1
}

// memcpy(dest, destsz, src, count)
func lmemcpy(L *lua.State) int {
	err := memkit.Memcpy(toPointer(L, 1), checkSize(L, 2), toPointer(L, 3), checkSize(L, 4))
	return pushStatus(L, err)
}

// memmove(dest, destsz, src, count)
func lmemmove(L *lua.State) int {
	err := memkit.Memmove(toPointer(L, 1), checkSize(L, 2), toPointer(L, 3), checkSize(L, 4))
	return pushStatus(L, err)
}

// at returns ptr+offset within a block of size bytes, or nil for a nil
// block.
func at(ptr unsafe.Pointer, size, offset uint) (unsafe.Pointer, uint, error) {
	if offset > size {
		return nil, 0, fmt.Errorf("offset %d past %d bytes: %w", offset, size, memkit.ErrBufferTooSmall)
	}
	if ptr == nil {
		return nil, size - offset, nil
	}
	return unsafe.Add(ptr, int(offset)), size - offset, nil
}

// write(ptr, size, offset, str) stores str at ptr+offset inside a block
// of size bytes.
func lwrite(L *lua.State) int {
	data := L.ToString(4)
	dest, room, err := at(toPointer(L, 1), checkSize(L, 2), checkSize(L, 3))
	if err != nil {
		return pushStatus(L, err)
	}
	var src unsafe.Pointer
	if len(data) > 0 {
		src = unsafe.Pointer(unsafe.StringData(data))
	}
	return pushStatus(L, memkit.Memcpy(dest, room, src, uint(len(data))))
}

// read(ptr, size, offset, n) returns n bytes at ptr+offset inside a block
// of size bytes.
func lread(L *lua.State) int {
	src, room, err := at(toPointer(L, 1), checkSize(L, 2), checkSize(L, 3))
	n := checkSize(L, 4)
	if err == nil && n > room {
		err = fmt.Errorf("read %d bytes out of %d: %w", n, room, memkit.ErrBufferTooSmall)
	}
	if err != nil {
		L.PushNil()
		L.PushString(err.Error())
		return 2
	}
	if n == 0 {
		L.PushString("")
		return 1
	}
	buf := make([]byte, n)
	if err := memkit.Memcpy(unsafe.Pointer(unsafe.SliceData(buf)), n, src, n); err != nil {
		L.PushNil()
		L.PushString(err.Error())
		return 2
	}
	L.PushString(string(buf))
	return 1
}
