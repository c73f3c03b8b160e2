package builtin

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"reelforge/internal/generation"
	"reelforge/internal/services"
)

// SilentNarration writes a silent 16-bit mono PCM WAV sized to the script.
type SilentNarration struct {
	sampleRate int
}

// NewSilentNarration returns the guaranteed narration backend.
func NewSilentNarration(opts Options) *SilentNarration {
	opts = opts.withDefaults()
	return &SilentNarration{sampleRate: opts.SampleRate}
}

func (n *SilentNarration) Name() string          { return SilentNarrationName }
func (n *SilentNarration) Tier() generation.Tier { return generation.TierGuaranteed }

const (
	bitsPerSample = 16
	channels      = 1
	chunkSamples  = 8192
)

// Produce writes narration.wav into the job work directory.
func (n *SilentNarration) Produce(ctx context.Context, in generation.NarrationInput) (generation.Narration, error) {
	duration := in.Script.TotalDuration()
	if duration <= 0 {
		duration = in.Request.TargetDuration
	}
	if duration <= 0 {
		return generation.Narration{}, services.Wrap(services.ErrValidation, string(generation.StageNarration), "silence", "script has no duration", nil)
	}
	if err := ensureWorkDir(in.WorkDir); err != nil {
		return generation.Narration{}, err
	}

	path := filepath.Join(in.WorkDir, "narration.wav")
	samples := int64(duration.Seconds() * float64(n.sampleRate))
	if err := writeSilentWAV(ctx, path, n.sampleRate, samples, in.Report); err != nil {
		_ = os.Remove(path)
		return generation.Narration{}, err
	}
	return generation.Narration{
		AudioPath:  path,
		Duration:   time.Duration(samples) * time.Second / time.Duration(n.sampleRate),
		SampleRate: n.sampleRate,
	}, nil
}

func writeSilentWAV(ctx context.Context, path string, sampleRate int, samples int64, report func(float64, string)) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create narration: %w", err)
	}
	defer file.Close()

	blockAlign := channels * bitsPerSample / 8
	dataSize := uint32(samples) * uint32(blockAlign)
	w := bufio.NewWriter(file)

	header := []any{
		[4]byte{'R', 'I', 'F', 'F'},
		uint32(36 + dataSize),
		[4]byte{'W', 'A', 'V', 'E'},
		[4]byte{'f', 'm', 't', ' '},
		uint32(16),
		uint16(1), // PCM
		uint16(channels),
		uint32(sampleRate),
		uint32(sampleRate * blockAlign),
		uint16(blockAlign),
		uint16(bitsPerSample),
		[4]byte{'d', 'a', 't', 'a'},
		dataSize,
	}
	for _, field := range header {
		if err := binary.Write(w, binary.LittleEndian, field); err != nil {
			return fmt.Errorf("write wav header: %w", err)
		}
	}

	silence := make([]byte, chunkSamples*blockAlign)
	for written := int64(0); written < samples; {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := min(int64(chunkSamples), samples-written)
		if _, err := w.Write(silence[:n*int64(blockAlign)]); err != nil {
			return fmt.Errorf("write wav data: %w", err)
		}
		written += n
		if report != nil {
			report(float64(written)/float64(samples)*100, "writing silence")
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush wav: %w", err)
	}
	return file.Close()
}
