// Package descriptor passes file descriptors over the event socket via
// SCM_RIGHTS ancillary data, correlated by position to descriptor-bearing
// events in the inbound ring (§4.4).
package descriptor

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// ErrWouldBlock is returned by Receive in non-blocking mode when no
// descriptor is currently available.
var ErrWouldBlock = errors.New("descriptor: would block")

// Send pushes fd as ancillary data over conn, the pattern grounded on
// other_examples' SCM_RIGHTS receiver (dsmmcken-dh-cli's uffd_linux.go),
// mirrored here for the send side.
func Send(conn *net.UnixConn, fd int) error {
	rights := unix.UnixRights(fd)
	// a one-byte regular payload (a single zero byte) must accompany
	// ancillary data on most platforms' SCM_RIGHTS framing.
	_, _, err := conn.WriteMsgUnix([]byte{0}, rights, nil)
	if err != nil {
		return fmt.Errorf("descriptor: send: %w", err)
	}
	return nil
}

// Receive waits for (or, if !blocking, polls once for) a single descriptor
// on conn. It returns ErrWouldBlock if blocking is false and none is ready
// yet.
func Receive(conn *net.UnixConn, blocking bool) (int, error) {
	if !blocking {
		if err := conn.SetReadDeadline(time.Now()); err != nil {
			return -1, fmt.Errorf("descriptor: set deadline: %w", err)
		}
		defer conn.SetReadDeadline(time.Time{})
	}

	buf := make([]byte, 1)
	oob := make([]byte, unix.CmsgSpace(4))

	_, oobn, _, _, err := conn.ReadMsgUnix(buf, oob)
	if err != nil {
		if !blocking && isTimeout(err) {
			return -1, ErrWouldBlock
		}
		return -1, fmt.Errorf("descriptor: receive: %w", err)
	}
	if oobn == 0 {
		return -1, errors.New("descriptor: no ancillary data in message")
	}

	scms, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return -1, fmt.Errorf("descriptor: parsing control message: %w", err)
	}
	for _, scm := range scms {
		fds, err := unix.ParseUnixRights(&scm)
		if err == nil && len(fds) > 0 {
			return fds[0], nil
		}
	}
	return -1, errors.New("descriptor: no rights in control message")
}

func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

// CloseQuiet closes fd, discarding any error -- used on the garbage
// collection paths where a caller failed to claim a descriptor in time and
// the runtime closes it on their behalf (§3, §4.5 step B).
func CloseQuiet(fd int) {
	if fd < 0 {
		return
	}
	syscall.Close(fd)
}

// Dup duplicates fd, letting a caller retain a descriptor-bearing event's
// handle past the runtime's garbage-collection window.
func Dup(fd int) (int, error) {
	newFd, err := unix.Dup(fd)
	if err != nil {
		return -1, fmt.Errorf("descriptor: dup: %w", err)
	}
	return newFd, nil
}

