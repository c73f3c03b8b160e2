package provider

import (
	"fmt"

	"reelforge/internal/config"
	"reelforge/internal/deps"
	"reelforge/internal/generation"
	"reelforge/internal/provider/ffmpeg"
)

// DefaultRegistry returns a registry holding the optional backends that ship
// with reelforge. Backends that need a host tool are registered regardless
// and report unavailability at pick time.
func DefaultRegistry(cfg *config.Config) (*Registry, error) {
	reg := NewRegistry()
	if err := reg.Register(generation.StageComposition, ffmpeg.NewComposer(deps.ResolveFFmpegPath(cfg.FFmpegBinary()))); err != nil {
		return nil, fmt.Errorf("register %s: %w", ffmpeg.Name, err)
	}
	return reg, nil
}
