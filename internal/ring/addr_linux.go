//go:build linux

package ring

import "unsafe"

// addrOf returns the address of a byte slice's backing array as a plain
// integer. This is the one place in the package that reaches for unsafe:
// the StackMap wire format requires raw remote-readable addresses, which
// Go has no other vocabulary for. The caller is responsible for keeping the
// slice reachable for as long as the returned address is in use (see
// Store.keepAlive and StackMap.chunks).
func addrOf(b []byte) uint64 {
	if len(b) == 0 {
		return 0
	}
	return uint64(uintptr(unsafe.Pointer(&b[0])))
}

// ptrOf returns sm's address as an unsafe.Pointer, isolated to this file so
// the rest of the package stays free of unsafe.
func ptrOf(sm *StackMap) unsafe.Pointer {
	return unsafe.Pointer(sm)
}
