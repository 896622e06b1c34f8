package segment

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/aleph-shmif/shmif/internal/possem"
)

// Mapping owns a memory-mapped segment and its three named semaphores.
type Mapping struct {
	file *os.File
	data []byte
	Page *Page

	VSem *possem.Sem
	ASem *possem.Sem
	ESem *possem.Sem

	Size int
}

// semSuffixes maps the three synchronization roles to the single-character
// suffix §6 says replaces the shared-memory key's last byte.
var semSuffixes = [3]byte{'v', 'a', 'e'}

// semaphoreNames derives the three semaphore names from a shared-memory
// key, per §4.2/§6: take key, replace its last character with 'v', 'a',
// 'e' respectively.
func semaphoreNames(key string) [3]string {
	if len(key) == 0 {
		return [3]string{}
	}
	base := []byte(key)
	var names [3]string
	for i, suffix := range semSuffixes {
		work := make([]byte, len(base))
		copy(work, base)
		work[len(work)-1] = suffix
		names[i] = "/" + string(work)
	}
	return names
}

// shmPath mirrors the teacher's own convention (feeder/shm: "/dev/shm/" +
// name) for locating the POSIX shared-memory object backing a key, rather
// than linking against shm_open(3) (a librt wrapper, not a raw syscall).
func shmPath(key string) string { return "/dev/shm/" + key }

// NewInMemory builds a Mapping over a plain byte slice with no backing file
// or semaphores, letting tests exercise Page/ring logic without a real
// /dev/shm object or POSIX semaphore namespace.
func NewInMemory(size int) *Mapping {
	data := make([]byte, size)
	return &Mapping{data: data, Page: pageFromBytes(data), Size: size}
}

// Map opens the shared-memory object named by key, maps StartSize bytes,
// and remaps at the page's advertised SegmentSize if it differs. It then
// opens (and, if forceUnlink, immediately unlinks) the three derived
// semaphores. Any failure returns a nil *Mapping, matching §4.2/§7
// ("endpoint is not created").
func Map(key string, forceUnlink bool) (*Mapping, error) {
	file, err := os.OpenFile(shmPath(key), os.O_RDWR, 0700)
	if err != nil {
		return nil, fmt.Errorf("segment: open(%s): %w", key, err)
	}

	data, err := unix.Mmap(int(file.Fd()), 0, StartSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("segment: mmap(%s): %w", key, err)
	}

	m := &Mapping{file: file, data: data, Page: pageFromBytes(data), Size: StartSize}

	if advertised := m.Page.SegmentSize; advertised != 0 && int(advertised) != StartSize {
		if err := m.remap(int(advertised)); err != nil {
			m.unmapOnly()
			file.Close()
			return nil, fmt.Errorf("segment: remap(%s): %w", key, err)
		}
	}

	if err := m.openSemaphores(key, forceUnlink); err != nil {
		m.unmapOnly()
		file.Close()
		return nil, err
	}

	return m, nil
}

func (m *Mapping) remap(size int) error {
	if err := unix.Munmap(m.data); err != nil {
		return err
	}
	data, err := unix.Mmap(int(m.file.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return err
	}
	m.data = data
	m.Page = pageFromBytes(data)
	m.Size = size
	return nil
}

// Remap is the public entry point the resize negotiator uses once the
// server has grown the segment (§4.7 step 8).
func (m *Mapping) Remap(size int) error {
	return m.remap(size)
}

func (m *Mapping) openSemaphores(key string, forceUnlink bool) error {
	names := semaphoreNames(key)
	sems := make([]*possem.Sem, 0, 3)

	cleanup := func() {
		for _, s := range sems {
			s.Close()
		}
	}

	for _, name := range names {
		// The server creates these semaphores; a client that had to create
		// one itself would mean no server ever initialized it.
		s, err := possem.Open(name, false, 1)
		if err != nil {
			cleanup()
			return fmt.Errorf("segment: opening semaphores for %s: %w", key, err)
		}
		sems = append(sems, s)
		if forceUnlink {
			possem.Unlink(name)
		}
	}

	m.VSem, m.ASem, m.ESem = sems[0], sems[1], sems[2]
	return nil
}

func (m *Mapping) unmapOnly() {
	unix.Munmap(m.data)
}

// Close unmaps the segment, closes the backing fd, and closes the three
// semaphore handles.
func (m *Mapping) Close() error {
	if m.VSem != nil {
		m.VSem.Close()
	}
	if m.ASem != nil {
		m.ASem.Close()
	}
	if m.ESem != nil {
		m.ESem.Close()
	}
	unix.Munmap(m.data)
	return m.file.Close()
}

// Fd returns the underlying shared-memory file descriptor, used by the
// resize negotiator to remap without reopening.
func (m *Mapping) Fd() int { return int(m.file.Fd()) }

// Data returns the raw mapped bytes, used to compute audio/video
// backbuffer pointers past the fixed Page prefix.
func (m *Mapping) Data() []byte { return m.data }
