package audiogen

import (
	"encoding/binary"
	"fmt"
)

// Segments are produced by the same synthesis backend with identical audio
// settings, so the canonical 44-byte RIFF header layout is assumed: format
// parameters live at bytes 20-35, the total size field at byte 4 and the data
// chunk size at byte 40.
const wavHeaderSize = 44

const (
	riffSizeOffset = 4
	fmtParamsStart = 20
	fmtParamsEnd   = 36
	byteRateOffset = 28
	dataSizeOffset = 40
)

// ConcatWAV merges segment buffers into a single WAV file. A single segment
// is returned verbatim. For multiple segments the first header becomes the
// template and the two size fields are rewritten to cover the combined
// payload. Segments whose format parameters differ from the first are
// rejected rather than producing a corrupt file.
func ConcatWAV(buffers [][]byte) ([]byte, error) {
	if len(buffers) == 0 {
		return nil, fmt.Errorf("no audio segments to concatenate")
	}
	for i, b := range buffers {
		if err := validateWAV(b); err != nil {
			return nil, fmt.Errorf("segment %d: %w", i, err)
		}
	}
	if len(buffers) == 1 {
		out := make([]byte, len(buffers[0]))
		copy(out, buffers[0])
		return out, nil
	}

	template := buffers[0][:wavHeaderSize]
	totalPayload := 0
	for i, b := range buffers {
		if !formatParamsMatch(template, b) {
			return nil, fmt.Errorf("segment %d format parameters differ from segment 0", i)
		}
		totalPayload += len(b) - wavHeaderSize
	}

	out := make([]byte, 0, wavHeaderSize+totalPayload)
	out = append(out, template...)
	for _, b := range buffers {
		out = append(out, b[wavHeaderSize:]...)
	}

	binary.LittleEndian.PutUint32(out[riffSizeOffset:], uint32(wavHeaderSize-8+totalPayload))
	binary.LittleEndian.PutUint32(out[dataSizeOffset:], uint32(totalPayload))
	return out, nil
}

// WAVDurationSec derives playback length from the byte rate header field.
func WAVDurationSec(wav []byte) (float64, error) {
	if err := validateWAV(wav); err != nil {
		return 0, err
	}
	byteRate := binary.LittleEndian.Uint32(wav[byteRateOffset:])
	if byteRate == 0 {
		return 0, fmt.Errorf("wav byte rate is zero")
	}
	payload := len(wav) - wavHeaderSize
	return float64(payload) / float64(byteRate), nil
}

func validateWAV(b []byte) error {
	if len(b) < wavHeaderSize {
		return fmt.Errorf("wav buffer too short: %d bytes", len(b))
	}
	if string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return fmt.Errorf("not a RIFF/WAVE buffer")
	}
	return nil
}

func formatParamsMatch(template, b []byte) bool {
	return string(template[fmtParamsStart:fmtParamsEnd]) == string(b[fmtParamsStart:fmtParamsEnd])
}
