package segment

import "testing"

func TestCookieDeterministic(t *testing.T) {
	a := Cookie()
	b := Cookie()
	if a != b {
		t.Fatalf("Cookie() not deterministic: %d != %d", a, b)
	}
	if a == 0 {
		t.Fatal("Cookie() should not be zero")
	}
}

func TestSemaphoreNames(t *testing.T) {
	names := semaphoreNames("abcde")
	want := [3]string{"/abcdv", "/abcda", "/abcde"}
	if names != want {
		t.Fatalf("got %v, want %v", names, want)
	}
}

func TestComputeBuffersNoOverlap(t *testing.T) {
	w, h := uint32(4), uint32(4)
	vSize := int(w) * int(h) * VChannels
	total := payloadOffset() + vSize*2 + AudioBufSize*2
	data := make([]byte, total)

	layout, err := ComputeBuffers(data, w, h, 2, 2)
	if err != nil {
		t.Fatalf("ComputeBuffers: %v", err)
	}
	if len(layout.VBuf) != 2 || len(layout.ABuf) != 2 {
		t.Fatalf("unexpected buffer counts: %d video, %d audio", len(layout.VBuf), len(layout.ABuf))
	}

	// writing into one buffer must not be observable in any other.
	for i := range layout.VBuf[0] {
		layout.VBuf[0][i] = 0xAA
	}
	for _, b := range layout.VBuf[1] {
		if b == 0xAA {
			t.Fatal("video buffer 0 write leaked into video buffer 1")
		}
	}
	for _, b := range layout.ABuf[0] {
		if b == 0xAA {
			t.Fatal("video buffer 0 write leaked into audio buffer 0")
		}
	}
}

func TestComputeBuffersTooSmall(t *testing.T) {
	data := make([]byte, payloadOffset()+10)
	if _, err := ComputeBuffers(data, 1920, 1080, 1, 1); err == nil {
		t.Fatal("expected error for undersized region")
	}
}
