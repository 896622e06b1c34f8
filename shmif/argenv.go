package shmif

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/aleph-shmif/shmif/argstr"
	"github.com/aleph-shmif/shmif/event"
)

// BootEnv collects the environment variables SHMIF consumes at startup
// (§6). Populate it from os.Environ via LoadBootEnv, or construct one
// directly in tests.
type BootEnv struct {
	ShmKey   string // ARCAN_SHMKEY
	SockInFD int    // ARCAN_SOCKIN_FD, -1 if unset
	ConnPath string // ARCAN_CONNPATH
	ConnKey  string // ARCAN_CONNKEY
	ArgBlob  string // ARCAN_ARG
	Args     []argstr.Pair
}

// LoadBootEnv reads the standard environment variables and, if ARCAN_ARG is
// set, decodes it with argstr.Unpack.
func LoadBootEnv() (*BootEnv, error) {
	be := &BootEnv{
		ShmKey:   os.Getenv("ARCAN_SHMKEY"),
		SockInFD: event.NoFD,
		ConnPath: os.Getenv("ARCAN_CONNPATH"),
		ConnKey:  os.Getenv("ARCAN_CONNKEY"),
		ArgBlob:  os.Getenv("ARCAN_ARG"),
	}
	if v := os.Getenv("ARCAN_SOCKIN_FD"); v != "" {
		fd, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("shmif: ARCAN_SOCKIN_FD: %w", err)
		}
		be.SockInFD = fd
	}
	if be.ArgBlob != "" {
		pairs, err := argstr.Unpack(be.ArgBlob)
		if err != nil {
			return nil, err
		}
		be.Args = pairs
	}
	return be, nil
}

// Lookup returns the ind'th value for key among the decoded boot arguments.
func (be *BootEnv) Lookup(key string, ind int) (string, bool) {
	return argstr.Lookup(be.Args, key, ind)
}

// Open is the env-var bootstrap entrypoint, the Go analogue of
// arcan_shmif_open (arcan_shmif_control.c:1478-1521). It reads the boot
// environment and picks one of two paths: if ARCAN_SHMKEY and
// ARCAN_SOCKIN_FD are both set, the segment and event socket were already
// prepared by the parent process, so it acquires the key directly and wraps
// the inherited descriptor instead of dialing a rendezvous. Otherwise, if
// ARCAN_CONNPATH is set, it falls through to Connect's rendezvous dial.
func Open(flags Flags) (*Endpoint, error) {
	be, err := LoadBootEnv()
	if err != nil {
		return nil, err
	}

	if be.ShmKey != "" && be.SockInFD != event.NoFD {
		ep, err := acquireKey(be.ShmKey, flags, nil)
		if err != nil {
			return nil, err
		}

		conn := newConnFromFD(be.SockInFD)
		if conn == nil {
			ep.Mapping.Close()
			return nil, fmt.Errorf("shmif: wrap ARCAN_SOCKIN_FD %d: failed", be.SockInFD)
		}
		uconn, ok := conn.(*net.UnixConn)
		if !ok {
			conn.Close()
			ep.Mapping.Close()
			return nil, fmt.Errorf("shmif: ARCAN_SOCKIN_FD %d is not a unix socket", be.SockInFD)
		}
		ep.Conn = uconn
		ep.startGuard(flags)
		return ep, nil
	}

	if be.ConnPath != "" {
		return Connect(be.ConnPath, be.ConnKey, flags)
	}

	return nil, errors.New("shmif: no boot environment: set ARCAN_SHMKEY+ARCAN_SOCKIN_FD or ARCAN_CONNPATH")
}
