package shmif

import (
	"testing"

	"github.com/aleph-shmif/shmif/event"
)

func TestLoadBootEnvReadsVariables(t *testing.T) {
	t.Setenv("ARCAN_SHMKEY", "mykey")
	t.Setenv("ARCAN_CONNPATH", "/tmp/arcan")
	t.Setenv("ARCAN_CONNKEY", "connkey")
	t.Setenv("ARCAN_ARG", "width=640:height=480:fullscreen")

	be, err := LoadBootEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if be.ShmKey != "mykey" || be.ConnPath != "/tmp/arcan" || be.ConnKey != "connkey" {
		t.Fatalf("unexpected boot env: %+v", be)
	}
	if be.SockInFD != event.NoFD {
		t.Fatalf("expected SockInFD to default to NoFD, got %d", be.SockInFD)
	}

	w, ok := be.Lookup("width", 0)
	if !ok || w != "640" {
		t.Fatalf("width lookup = %q, %v", w, ok)
	}
	if _, ok := be.Lookup("fullscreen", 0); !ok {
		t.Fatal("expected bare key 'fullscreen' to be present")
	}
}

func TestLoadBootEnvEmptyArgBlob(t *testing.T) {
	t.Setenv("ARCAN_ARG", "")
	be, err := LoadBootEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(be.Args) != 0 {
		t.Fatalf("expected no args for an empty blob, got %v", be.Args)
	}
}

func TestLoadBootEnvRejectsMalformedArgBlob(t *testing.T) {
	t.Setenv("ARCAN_ARG", "a=b=c")
	if _, err := LoadBootEnv(); err == nil {
		t.Fatal("expected an error for a field with two '=' signs")
	}
}
