package audio

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// SilenceThreshold is the normalized RMS below which a chunk counts as silent
const SilenceThreshold = 0.01

var (
	// ErrOddLength means the chunk cannot hold whole 16-bit samples
	ErrOddLength = errors.New("PCM data length must be even (16-bit samples)")
	// ErrUndersized means the chunk is below the configured minimum
	ErrUndersized = errors.New("PCM chunk below minimum size")
)

// ValidatePCM16 checks that chunk looks like 16-bit little-endian mono PCM
// of at least minBytes.
func ValidatePCM16(chunk []byte, minBytes int) error {
	if len(chunk) < minBytes || len(chunk) == 0 {
		return fmt.Errorf("%w: %d < %d bytes", ErrUndersized, len(chunk), minBytes)
	}
	if len(chunk)%2 != 0 {
		return ErrOddLength
	}
	return nil
}

// DropReason maps a validation error to the metric label used for dropped chunks
func DropReason(err error) string {
	switch {
	case errors.Is(err, ErrUndersized):
		return "undersized"
	case errors.Is(err, ErrOddLength):
		return "malformed"
	}
	return "invalid"
}

// BytesToSamples decodes little-endian 16-bit samples
func BytesToSamples(pcmData []byte) []int16 {
	samples := make([]int16, len(pcmData)/2)
	for i := 0; i < len(samples); i++ {
		samples[i] = int16(pcmData[i*2]) | int16(pcmData[i*2+1])<<8
	}
	return samples
}

// Duration returns how much mono 16-bit audio the given byte count represents
func Duration(byteCount, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	samples := byteCount / 2
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}

// RMS returns the root mean square energy of a PCM16 chunk, normalized to 0..1
func RMS(pcmData []byte) float64 {
	samples := BytesToSamples(pcmData)
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// IsSilent reports whether a PCM16 chunk's energy is below SilenceThreshold
func IsSilent(pcmData []byte) bool {
	return RMS(pcmData) < SilenceThreshold
}
