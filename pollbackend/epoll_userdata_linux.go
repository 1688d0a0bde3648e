//go:build linux
// +build linux

package pollbackend

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// packUserData/unpackUserData store the caller's user data key in the
// 8-byte data union of an epoll_event (Fd and Pad together), the same way
// the Linux kernel's struct epoll_event represents epoll_data_t.
func packUserData(ev *unix.EpollEvent, userData uintptr) {
	*(*uintptr)(unsafe.Pointer(&ev.Fd)) = userData
}

func unpackUserData(ev *unix.EpollEvent) uintptr {
	return *(*uintptr)(unsafe.Pointer(&ev.Fd))
}
