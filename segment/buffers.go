package segment

import (
	"fmt"
	"unsafe"
)

// BufferLayout holds the audio/video backbuffer pointer arrays computed
// from a mapped page's current geometry and buffer counts (§4.7 step 10).
type BufferLayout struct {
	VBuf [][]byte // vbuf[i] is one w*h*VChannels video backbuffer
	ABuf [][]byte // abuf[j] is one audio backbuffer of AudioBufSize bytes
}

// AudioBufSize is the fixed per-buffer audio capacity in bytes.
const AudioBufSize = 64 * 1024

// payloadOffset is the byte offset within the mapped region where the
// versioned audio/video payload begins, directly after the fixed Page
// prefix.
func payloadOffset() int {
	return int(unsafe.Sizeof(Page{}))
}

// ComputeBuffers slices data (the full mapped region) into vbufCnt video
// buffers sized w*h*VChannels and abufCnt audio buffers sized
// AudioBufSize, packed back-to-back starting at payloadOffset(). It
// returns an error if the region is too small to hold them, matching a
// resize negotiation that asked for more than the server actually granted.
func ComputeBuffers(data []byte, w, h uint32, vbufCnt, abufCnt int) (BufferLayout, error) {
	offset := payloadOffset()
	vSize := int(w) * int(h) * VChannels

	var layout BufferLayout
	for i := 0; i < vbufCnt; i++ {
		if offset+vSize > len(data) {
			return BufferLayout{}, errTooSmall(len(data), offset+vSize)
		}
		layout.VBuf = append(layout.VBuf, data[offset:offset+vSize])
		offset += vSize
	}
	for j := 0; j < abufCnt; j++ {
		if offset+AudioBufSize > len(data) {
			return BufferLayout{}, errTooSmall(len(data), offset+AudioBufSize)
		}
		layout.ABuf = append(layout.ABuf, data[offset:offset+AudioBufSize])
		offset += AudioBufSize
	}
	return layout, nil
}

func errTooSmall(have, want int) error {
	return fmt.Errorf("segment: mapped region too small for requested buffers (have %d, need %d)", have, want)
}
