// Package possem wraps POSIX named semaphores (sem_open(3) and friends).
// Go's standard library and golang.org/x/sys/unix expose no named-semaphore
// syscalls -- sem_open is a librt/libpthread entry point, not a raw
// syscall -- so, following the same cgo-shim approach the example pack's
// ghetzel-shmtool library uses to reach SysV shared memory from Go, this
// package carries a small C shim around <semaphore.h>.
package possem

/*
#include <semaphore.h>
#include <fcntl.h>
#include <errno.h>
#include <stdlib.h>

static sem_t *possem_open(const char *name, int oflag, unsigned int mode, unsigned int value) {
	return sem_open(name, oflag, (mode_t)mode, (unsigned int)value);
}
*/
import "C"

import (
	"fmt"
	"unsafe"
)

// Sem is a handle to a named POSIX semaphore.
type Sem struct {
	handle *C.sem_t
	name   string
}

// Open opens the named semaphore, creating it if it does not exist only
// when create is true (O_CREAT); otherwise a missing one fails. name must begin
// with '/' per POSIX convention, matching how §4.2 derives the three
// per-segment semaphore names.
func Open(name string, create bool, initial uint) (*Sem, error) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))

	var oflag C.int
	if create {
		oflag = C.O_CREAT
	}

	h, err := C.possem_open(cname, oflag, 0600, C.uint(initial))
	if h == nil {
		return nil, fmt.Errorf("possem: sem_open(%s): %w", name, err)
	}
	return &Sem{handle: h, name: name}, nil
}

// Wait blocks until the semaphore can be decremented.
func (s *Sem) Wait() error {
	if _, err := C.sem_wait(s.handle); err != nil {
		return fmt.Errorf("possem: sem_wait(%s): %w", s.name, err)
	}
	return nil
}

// TryWait attempts a non-blocking decrement, returning false if it would
// block.
func (s *Sem) TryWait() bool {
	_, err := C.sem_trywait(s.handle)
	return err == nil
}

// Post increments the semaphore, waking one waiter if any are blocked.
func (s *Sem) Post() error {
	if _, err := C.sem_post(s.handle); err != nil {
		return fmt.Errorf("possem: sem_post(%s): %w", s.name, err)
	}
	return nil
}

// Close releases this process's handle to the semaphore.
func (s *Sem) Close() error {
	if _, err := C.sem_close(s.handle); err != nil {
		return fmt.Errorf("possem: sem_close(%s): %w", s.name, err)
	}
	return nil
}

// Unlink removes the semaphore's name from the system so no further
// sem_open by name will find it; existing handles remain valid.
func Unlink(name string) error {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	if _, err := C.sem_unlink(cname); err != nil {
		return fmt.Errorf("possem: sem_unlink(%s): %w", name, err)
	}
	return nil
}
