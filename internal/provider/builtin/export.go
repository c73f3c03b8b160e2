package builtin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"reelforge/internal/fileutil"
	"reelforge/internal/generation"
	"reelforge/internal/services"
	"reelforge/internal/textutil"
)

// LocalExport copies the composed file into the configured output directory.
type LocalExport struct {
	outputDir string
}

// NewLocalExport returns the guaranteed export backend.
func NewLocalExport(outputDir string) *LocalExport {
	return &LocalExport{outputDir: outputDir}
}

func (e *LocalExport) Name() string          { return LocalExportName }
func (e *LocalExport) Tier() generation.Tier { return generation.TierGuaranteed }

// Produce copies the source to <output_dir>/<slug>-<job>.<ext>.
func (e *LocalExport) Produce(ctx context.Context, in generation.ExportInput) (generation.Export, error) {
	source := strings.TrimSpace(in.SourcePath)
	if source == "" {
		return generation.Export{}, services.Wrap(services.ErrValidation, string(generation.StageExport), "local-copy", "no composed file to export", nil)
	}
	if _, err := fileutil.NonEmptyFile(source); err != nil {
		return generation.Export{}, services.Wrap(services.ErrValidation, string(generation.StageExport), "local-copy", "composed file unusable", err)
	}
	if err := ctx.Err(); err != nil {
		return generation.Export{}, err
	}
	if err := os.MkdirAll(e.outputDir, 0o755); err != nil {
		return generation.Export{}, fmt.Errorf("ensure output dir: %w", err)
	}

	title := in.Title
	if title == "" {
		title = in.Request.Topic
	}
	ext := strings.ToLower(filepath.Ext(source))
	name := textutil.Slug(title, 48)
	if id := textutil.SanitizeToken(in.JobID); id != "unknown" {
		name += "-" + id[:min(len(id), 8)]
	}
	target := filepath.Join(e.outputDir, name+ext)

	in.Report(10, "copying "+filepath.Base(source))
	if err := fileutil.CopyFileVerified(source, target); err != nil {
		return generation.Export{}, fmt.Errorf("export copy: %w", err)
	}
	in.Report(100, "exported")
	return generation.Export{FinalPath: target, Format: strings.TrimPrefix(ext, ".")}, nil
}
