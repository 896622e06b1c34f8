package shmif

import "testing"

func TestPrimaryRoundTrip(t *testing.T) {
	defer SetPrimary(true, nil)
	defer SetPrimary(false, nil)

	if Primary(true) != nil || Primary(false) != nil {
		t.Fatal("expected no primary endpoints registered initially")
	}

	in := &Endpoint{}
	out := &Endpoint{}
	SetPrimary(true, in)
	SetPrimary(false, out)

	if Primary(true) != in {
		t.Fatal("expected the registered input endpoint back")
	}
	if Primary(false) != out {
		t.Fatal("expected the registered output endpoint back")
	}
}

func TestSetPrimaryClearsWithNil(t *testing.T) {
	defer SetPrimary(true, nil)

	SetPrimary(true, &Endpoint{})
	SetPrimary(true, nil)
	if Primary(true) != nil {
		t.Fatal("expected SetPrimary(true, nil) to clear the slot")
	}
}
