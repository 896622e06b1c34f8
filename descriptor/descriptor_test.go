package descriptor

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func dialPair(t *testing.T) (*net.UnixConn, *net.UnixConn) {
	t.Helper()

	sockPath := filepath.Join(t.TempDir(), "descriptor.sock")
	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: sockPath, Net: "unix"})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	acceptCh := make(chan *net.UnixConn, 1)
	errCh := make(chan error, 1)
	go func() {
		c, err := ln.AcceptUnix()
		if err != nil {
			errCh <- err
			return
		}
		acceptCh <- c
	}()

	client, err := net.DialUnix("unix", nil, &net.UnixAddr{Name: sockPath, Net: "unix"})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	select {
	case server := <-acceptCh:
		return server, client
	case err := <-errCh:
		t.Fatalf("accept: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for accept")
	}
	return nil, nil
}

func TestSendReceiveRoundTrip(t *testing.T) {
	server, client := dialPair(t)
	defer server.Close()
	defer client.Close()

	f, err := os.CreateTemp(t.TempDir(), "descriptor-fd")
	if err != nil {
		t.Fatalf("tempfile: %v", err)
	}
	defer f.Close()
	want := []byte("hello shmif")
	if _, err := f.Write(want); err != nil {
		t.Fatalf("write tempfile: %v", err)
	}

	recvCh := make(chan int, 1)
	recvErrCh := make(chan error, 1)
	go func() {
		fd, err := Receive(client, true)
		if err != nil {
			recvErrCh <- err
			return
		}
		recvCh <- fd
	}()

	if err := Send(server, int(f.Fd())); err != nil {
		t.Fatalf("Send: %v", err)
	}

	var gotFd int
	select {
	case gotFd = <-recvCh:
	case err := <-recvErrCh:
		t.Fatalf("Receive: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Receive")
	}
	recvFile := os.NewFile(uintptr(gotFd), "received")
	defer recvFile.Close()

	got := make([]byte, len(want))
	n, err := recvFile.ReadAt(got, 0)
	if err != nil {
		t.Fatalf("reading received fd: %v", err)
	}
	if n != len(want) || string(got) != string(want) {
		t.Fatalf("received fd content = %q, want %q", got[:n], want)
	}
}

func TestReceiveNonBlockingWouldBlock(t *testing.T) {
	server, client := dialPair(t)
	defer server.Close()
	defer client.Close()

	_, err := Receive(client, false)
	if err != ErrWouldBlock {
		t.Fatalf("Receive non-blocking with nothing pending: got %v, want ErrWouldBlock", err)
	}
}

func TestDupIndependence(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "dup-fd")
	if err != nil {
		t.Fatalf("tempfile: %v", err)
	}
	defer f.Close()

	dup, err := Dup(int(f.Fd()))
	if err != nil {
		t.Fatalf("Dup: %v", err)
	}
	defer CloseQuiet(dup)

	if dup == int(f.Fd()) {
		t.Fatal("Dup returned the same descriptor number")
	}
}
