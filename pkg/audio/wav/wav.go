// Package wav implements a minimal RIFF/WAVE codec for 16-bit PCM audio.
//
// Decode accepts mono or stereo PCM16 files at any sample rate; Encode
// always writes a canonical 16-bit PCM WAV. This covers the two places
// earshot touches WAV files: loading input recordings and exporting the
// short voice clips sent to humans for identification.
package wav

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Format describes the PCM layout of decoded audio.
type Format struct {
	// SampleRate is the sample rate in Hz.
	SampleRate int

	// Channels is the number of interleaved channels (1 or 2).
	Channels int
}

// Sentinel errors.
var (
	// ErrNotWAV is returned when the input is not a RIFF/WAVE stream.
	ErrNotWAV = errors.New("wav: not a RIFF/WAVE stream")

	// ErrUnsupported is returned for encodings other than 16-bit PCM.
	ErrUnsupported = errors.New("wav: unsupported encoding (want 16-bit PCM)")
)

// Decode reads a WAV stream and returns its format and raw PCM16
// little-endian sample data.
func Decode(r io.Reader) (Format, []byte, error) {
	var hdr [12]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Format{}, nil, fmt.Errorf("wav: read header: %w", err)
	}
	if string(hdr[0:4]) != "RIFF" || string(hdr[8:12]) != "WAVE" {
		return Format{}, nil, ErrNotWAV
	}

	var (
		f       Format
		sawFmt  bool
		data    []byte
		sawData bool
	)
	for {
		var chunk [8]byte
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return Format{}, nil, fmt.Errorf("wav: read chunk header: %w", err)
		}
		id := string(chunk[0:4])
		size := binary.LittleEndian.Uint32(chunk[4:8])

		switch id {
		case "fmt ":
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return Format{}, nil, fmt.Errorf("wav: read fmt chunk: %w", err)
			}
			if len(body) < 16 {
				return Format{}, nil, ErrUnsupported
			}
			audioFormat := binary.LittleEndian.Uint16(body[0:2])
			channels := binary.LittleEndian.Uint16(body[2:4])
			rate := binary.LittleEndian.Uint32(body[4:8])
			depth := binary.LittleEndian.Uint16(body[14:16])
			if audioFormat != 1 || depth != 16 {
				return Format{}, nil, ErrUnsupported
			}
			if channels != 1 && channels != 2 {
				return Format{}, nil, fmt.Errorf("wav: %d channels: %w", channels, ErrUnsupported)
			}
			f = Format{SampleRate: int(rate), Channels: int(channels)}
			sawFmt = true
		case "data":
			data = make([]byte, size)
			if _, err := io.ReadFull(r, data); err != nil {
				return Format{}, nil, fmt.Errorf("wav: read data chunk: %w", err)
			}
			sawData = true
		default:
			// Skip unknown chunks (LIST, fact, cue, ...).
			if _, err := io.CopyN(io.Discard, r, int64(size)); err != nil {
				return Format{}, nil, fmt.Errorf("wav: skip %q chunk: %w", id, err)
			}
		}
		// Chunks are word-aligned; odd sizes carry a pad byte.
		if size%2 == 1 {
			var pad [1]byte
			if _, err := io.ReadFull(r, pad[:]); err != nil && !errors.Is(err, io.EOF) {
				return Format{}, nil, fmt.Errorf("wav: chunk padding: %w", err)
			}
		}
		if sawFmt && sawData {
			break
		}
	}
	if !sawFmt || !sawData {
		return Format{}, nil, ErrNotWAV
	}
	return f, data, nil
}

// Encode writes PCM16 little-endian sample data as a canonical 16-bit
// PCM WAV stream.
func Encode(w io.Writer, f Format, data []byte) error {
	if f.Channels != 1 && f.Channels != 2 {
		return fmt.Errorf("wav: %d channels: %w", f.Channels, ErrUnsupported)
	}
	blockAlign := 2 * f.Channels
	byteRate := f.SampleRate * blockAlign

	var hdr [44]byte
	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(36+len(data)))
	copy(hdr[8:12], "WAVE")
	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16)
	binary.LittleEndian.PutUint16(hdr[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(hdr[22:24], uint16(f.Channels))
	binary.LittleEndian.PutUint32(hdr[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(hdr[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(hdr[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(hdr[34:36], 16)
	copy(hdr[36:40], "data")
	binary.LittleEndian.PutUint32(hdr[40:44], uint32(len(data)))

	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("wav: write header: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("wav: write data: %w", err)
	}
	return nil
}
