package audiogen

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func makeWAV(t *testing.T, sampleRate uint32, payload []byte) []byte {
	t.Helper()
	const channels, bitsPerSample = 1, 16
	byteRate := sampleRate * channels * bitsPerSample / 8

	buf := make([]byte, wavHeaderSize+len(payload))
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:], uint32(wavHeaderSize-8+len(payload)))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:], 16)
	binary.LittleEndian.PutUint16(buf[20:], 1)
	binary.LittleEndian.PutUint16(buf[22:], channels)
	binary.LittleEndian.PutUint32(buf[24:], sampleRate)
	binary.LittleEndian.PutUint32(buf[28:], byteRate)
	binary.LittleEndian.PutUint16(buf[32:], channels*bitsPerSample/8)
	binary.LittleEndian.PutUint16(buf[34:], bitsPerSample)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:], uint32(len(payload)))
	copy(buf[wavHeaderSize:], payload)
	return buf
}

func TestConcatWAVSizeInvariant(t *testing.T) {
	a := makeWAV(t, 24000, bytes.Repeat([]byte{0x01}, 100))
	b := makeWAV(t, 24000, bytes.Repeat([]byte{0x02}, 250))
	c := makeWAV(t, 24000, bytes.Repeat([]byte{0x03}, 50))

	out, err := ConcatWAV([][]byte{a, b, c})
	if err != nil {
		t.Fatalf("concat: %v", err)
	}

	wantPayload := 100 + 250 + 50
	if len(out) != wavHeaderSize+wantPayload {
		t.Fatalf("expected %d bytes, got %d", wavHeaderSize+wantPayload, len(out))
	}
	if got := binary.LittleEndian.Uint32(out[4:]); got != uint32(wavHeaderSize-8+wantPayload) {
		t.Fatalf("riff size field = %d", got)
	}
	if got := binary.LittleEndian.Uint32(out[40:]); got != uint32(wantPayload) {
		t.Fatalf("data size field = %d", got)
	}
	if !bytes.Equal(out[wavHeaderSize:wavHeaderSize+100], bytes.Repeat([]byte{0x01}, 100)) {
		t.Fatalf("first payload not preserved")
	}
	if !bytes.Equal(out[wavHeaderSize+100:wavHeaderSize+350], bytes.Repeat([]byte{0x02}, 250)) {
		t.Fatalf("second payload not preserved")
	}
}

func TestConcatWAVSingleSegmentVerbatim(t *testing.T) {
	a := makeWAV(t, 24000, bytes.Repeat([]byte{0xAB}, 64))
	out, err := ConcatWAV([][]byte{a})
	if err != nil {
		t.Fatalf("concat: %v", err)
	}
	if !bytes.Equal(out, a) {
		t.Fatalf("single segment should be copied verbatim")
	}
	out[0] = 'X'
	if a[0] != 'R' {
		t.Fatalf("concat must not alias the input buffer")
	}
}

func TestConcatWAVZeroSegments(t *testing.T) {
	if _, err := ConcatWAV(nil); err == nil {
		t.Fatalf("expected error for zero segments")
	}
}

func TestConcatWAVFormatMismatch(t *testing.T) {
	a := makeWAV(t, 24000, bytes.Repeat([]byte{0x01}, 100))
	b := makeWAV(t, 44100, bytes.Repeat([]byte{0x02}, 100))
	if _, err := ConcatWAV([][]byte{a, b}); err == nil {
		t.Fatalf("expected error for mismatched sample rates")
	}
}

func TestWAVDurationSec(t *testing.T) {
	// 24kHz mono 16-bit = 48000 bytes/sec
	a := makeWAV(t, 24000, make([]byte, 96000))
	d, err := WAVDurationSec(a)
	if err != nil {
		t.Fatalf("duration: %v", err)
	}
	if d != 2.0 {
		t.Fatalf("expected 2s, got %v", d)
	}
}

func TestValidateWAVRejectsGarbage(t *testing.T) {
	if _, err := ConcatWAV([][]byte{[]byte("not audio")}); err == nil {
		t.Fatalf("expected error for garbage buffer")
	}
}
