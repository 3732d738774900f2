package audiofile

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/tphakala/wsynth-go/internal/errors"
	"github.com/tphakala/wsynth-go/internal/logger"
)

const (
	// HeaderSize is the size of a canonical PCM WAV header.
	HeaderSize = 44

	formatPCM   = 1
	bitDepth    = 16
	numChannels = 1

	// Full scale of a 16-bit sample. Encoding and decoding share it so a
	// round trip stays within one step; positive values clip at maxSample.
	fullScale = 32768.0
	maxSample = 32767
)

var (
	riffMagic = []byte("RIFF")
	waveMagic = []byte("WAVE")
)

// seekableBuffer is an in-memory io.WriteSeeker; the WAV encoder seeks back
// to patch chunk sizes after the samples are written.
type seekableBuffer struct {
	buf []byte
	pos int64
}

func (s *seekableBuffer) Write(p []byte) (int, error) {
	end := s.pos + int64(len(p))
	if end > int64(len(s.buf)) {
		s.buf = append(s.buf, make([]byte, end-int64(len(s.buf)))...)
	}
	copy(s.buf[s.pos:end], p)
	s.pos = end
	return len(p), nil
}

func (s *seekableBuffer) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = s.pos + offset
	case io.SeekEnd:
		next = int64(len(s.buf)) + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if next < 0 {
		return 0, fmt.Errorf("negative seek position %d", next)
	}
	s.pos = next
	return next, nil
}

// quantize maps a float sample to int16 range after clamping to [-1, 1].
func quantize(s float32) int {
	v := math.Max(-1, math.Min(1, float64(s)))
	return min(int(math.Round(v*fullScale)), maxSample)
}

// dequantize divides by full scale for both signs, so 32767 decodes to
// 32767/32768 and -32768 to -1.
func dequantize(v int) float32 {
	return float32(float64(v) / fullScale)
}

// Encode writes buf as a mono 16-bit PCM WAV with a 44-byte header.
func Encode(buf *Buffer) ([]byte, error) {
	if buf == nil || buf.SampleRate <= 0 {
		return nil, errors.Newf("cannot encode buffer without a sample rate").
			Component("audiofile").
			Category(errors.CategoryValidation).
			Build()
	}

	ints := make([]int, len(buf.Samples))
	for i, s := range buf.Samples {
		ints[i] = quantize(s)
	}

	ws := &seekableBuffer{buf: make([]byte, 0, HeaderSize+2*len(ints))}
	enc := wav.NewEncoder(ws, buf.SampleRate, bitDepth, numChannels, formatPCM)
	if err := enc.Write(&audio.IntBuffer{
		Data:           ints,
		Format:         &audio.Format{SampleRate: buf.SampleRate, NumChannels: numChannels},
		SourceBitDepth: bitDepth,
	}); err != nil {
		return nil, errors.New(fmt.Errorf("failed to write to WAV encoder: %w", err)).
			Component("audiofile").
			Category(errors.CategoryAudio).
			Build()
	}
	if err := enc.Close(); err != nil {
		return nil, errors.New(fmt.Errorf("failed to finalize WAV: %w", err)).
			Component("audiofile").
			Category(errors.CategoryAudio).
			Build()
	}
	return ws.buf, nil
}

// Decode parses a 16-bit PCM WAV. Multi-channel input is downmixed to mono.
func Decode(data []byte) (*Buffer, error) {
	if len(data) < 12 || !bytes.Equal(data[0:4], riffMagic) || !bytes.Equal(data[8:12], waveMagic) {
		return nil, playbackError("invalid WAV file format (RIFF/WAVE header)", len(data))
	}

	decoder := wav.NewDecoder(bytes.NewReader(data))
	decoder.ReadInfo()
	if err := decoder.Err(); err != nil {
		return nil, errors.New(fmt.Errorf("failed to read WAV header: %w", err)).
			Component("audiofile").
			Category(errors.CategoryPlayback).
			Build()
	}
	if !decoder.IsValidFile() {
		return nil, playbackError("input is not a valid WAV audio file", len(data))
	}
	if decoder.WavAudioFormat != formatPCM {
		return nil, playbackError(fmt.Sprintf("only uncompressed PCM is supported, got format tag %d", decoder.WavAudioFormat), len(data))
	}
	if decoder.BitDepth != bitDepth {
		return nil, playbackError(fmt.Sprintf("only 16-bit PCM is supported, got %d-bit", decoder.BitDepth), len(data))
	}

	pcm, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to read PCM data: %w", err)).
			Component("audiofile").
			Category(errors.CategoryPlayback).
			Build()
	}

	chans := int(decoder.NumChans)
	frames := len(pcm.Data) / chans
	samples := make([]float32, frames)
	for i := range frames {
		if chans == 1 {
			samples[i] = dequantize(pcm.Data[i])
			continue
		}
		var sum float32
		for c := range chans {
			sum += dequantize(pcm.Data[i*chans+c])
		}
		samples[i] = sum / float32(chans)
	}

	return &Buffer{Samples: samples, SampleRate: int(decoder.SampleRate)}, nil
}

func playbackError(msg string, size int) error {
	return errors.New(errors.NewStd(msg)).
		Component("audiofile").
		Category(errors.CategoryPlayback).
		Context("size_bytes", size).
		Build()
}

// ReadFile decodes the WAV file at path.
func ReadFile(path string) (*Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(err).
			Component("audiofile").
			Category(errors.CategoryFileIO).
			FileContext(path, 0).
			Build()
	}
	return Decode(data)
}

// WriteFile encodes buf and writes it to path, creating parent directories.
func WriteFile(path string, buf *Buffer) error {
	data, err := Encode(buf)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.New(fmt.Errorf("failed to create directories: %w", err)).
			Component("audiofile").
			Category(errors.CategoryFileIO).
			Build()
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.New(fmt.Errorf("failed to write WAV file: %w", err)).
			Component("audiofile").
			Category(errors.CategoryFileIO).
			FileContext(path, int64(len(data))).
			Build()
	}
	GetLogger().Debug("wrote WAV file",
		logger.String("path", path),
		logger.Int("frames", buf.Frames()),
		logger.Int("sample_rate", buf.SampleRate))
	return nil
}
