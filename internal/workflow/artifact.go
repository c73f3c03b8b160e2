package workflow

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"strings"

	"reelforge/internal/config"
	"reelforge/internal/faults"
	"reelforge/internal/fileutil"
	"reelforge/internal/generation"
	"reelforge/internal/logging"
	"reelforge/internal/queue"
)

// Resolution layers, tried in this order.
const (
	LayerCompositionOutput = "composition_output"
	LayerAlternateField    = "composition_alternate_field"
	LayerExportFinalPath   = "export_final_path"
	LayerOutputDirScan     = "output_dir_scan"
)

// ResolveInput is what the resolver may inspect: the Composition and Export
// payloads and the job work directory.
type ResolveInput struct {
	Composition   generation.Composition
	CompositionOK bool
	Export        generation.Export
	ExportOK      bool
	WorkDir       string
}

type candidate struct {
	path  string
	field string
}

// strategy extracts candidate paths for one layer. An empty result carries
// the reason the layer had nothing to offer.
type strategy struct {
	layer   string
	extract func(ResolveInput) ([]candidate, string)
}

// Resolver locates the final artifact of a job.
type Resolver struct {
	strategies []strategy
	source     []strategy
}

// NewResolver builds the layer chain from the [artifacts] config.
func NewResolver(cfg config.Artifacts) *Resolver {
	fields := slices.Clone(cfg.AlternateFields)
	exts := slices.Clone(cfg.Extensions)

	primary := strategy{layer: LayerCompositionOutput, extract: compositionOutput}
	alternate := strategy{layer: LayerAlternateField, extract: func(in ResolveInput) ([]candidate, string) {
		return alternateFields(in, fields)
	}}
	exported := strategy{layer: LayerExportFinalPath, extract: exportFinalPath}
	scan := strategy{layer: LayerOutputDirScan, extract: func(in ResolveInput) ([]candidate, string) {
		return scanOutputDirs(in, exts)
	}}
	return &Resolver{
		strategies: []strategy{primary, alternate, exported, scan},
		source:     []strategy{primary, alternate, scan},
	}
}

// Resolve walks every layer and returns the first usable file. When every
// layer misses the error is an ArtifactResolutionFailed record.
func (r *Resolver) Resolve(logger *slog.Logger, in ResolveInput) (*queue.Artifact, error) {
	artifact, misses := r.walk(logger, in, r.strategies, false)
	if artifact == nil {
		return nil, faults.New(faults.KindArtifactResolutionFailed, "",
			"no final artifact located: "+strings.Join(misses, "; "))
	}
	if in.ExportOK && artifact.Layer != LayerExportFinalPath {
		if path := strings.TrimSpace(in.Export.FinalPath); path != "" && path != artifact.Path {
			if _, err := fileutil.NonEmptyFile(path); err == nil {
				artifact.ExportedPath = path
			}
		}
	}
	return artifact, nil
}

// Source locates the composed file ahead of Export using the layers that do
// not depend on Export. Misses are logged at debug level; Resolve reports
// them once the job settles.
func (r *Resolver) Source(logger *slog.Logger, in ResolveInput) (*queue.Artifact, bool) {
	artifact, _ := r.walk(logger, in, r.source, true)
	return artifact, artifact != nil
}

func (r *Resolver) walk(logger *slog.Logger, in ResolveInput, strategies []strategy, quiet bool) (*queue.Artifact, []string) {
	if logger == nil {
		logger = logging.NewNop()
	}
	var misses []string
	for _, s := range strategies {
		candidates, reason := s.extract(in)
		for _, c := range candidates {
			size, err := fileutil.NonEmptyFile(c.path)
			if err == nil {
				return &queue.Artifact{Path: c.path, SizeBytes: size, Layer: s.layer, Field: c.field}, misses
			}
			reason = joinReason(reason, fmt.Sprintf("%s unusable (%v)", describe(c), err))
		}
		if reason == "" {
			reason = "no candidates"
		}
		misses = append(misses, s.layer+": "+reason)
		if quiet {
			logger.Debug("artifact layer missed",
				logging.String(logging.FieldEventType, "artifact_layer_miss"),
				logging.String("layer", s.layer),
				logging.String("reason", reason),
			)
			continue
		}
		logging.WarnWithContext(logger, "artifact layer missed", "artifact_layer_miss",
			logging.String("layer", s.layer),
			logging.String("reason", reason),
			logging.String("available_keys", strings.Join(availableKeys(in), ",")),
			logging.String(logging.FieldErrorHint, "check which fields the composition backend reports"),
			logging.String(logging.FieldImpact, "falling through to the next resolution layer"),
		)
	}
	return nil, misses
}

func compositionOutput(in ResolveInput) ([]candidate, string) {
	if !in.CompositionOK {
		return nil, "composition did not succeed"
	}
	path := strings.TrimSpace(in.Composition.OutputPath)
	if path == "" {
		return nil, "output_path is empty"
	}
	return []candidate{{path: path, field: "output_path"}}, ""
}

func alternateFields(in ResolveInput, names []string) ([]candidate, string) {
	if !in.CompositionOK {
		return nil, "composition did not succeed"
	}
	var out []candidate
	for _, name := range names {
		if path := strings.TrimSpace(in.Composition.Fields[name]); path != "" {
			out = append(out, candidate{path: path, field: name})
		}
	}
	if len(out) == 0 {
		return nil, fmt.Sprintf("none of [%s] set", strings.Join(names, ", "))
	}
	return out, ""
}

func exportFinalPath(in ResolveInput) ([]candidate, string) {
	if !in.ExportOK {
		return nil, "export did not succeed"
	}
	path := strings.TrimSpace(in.Export.FinalPath)
	if path == "" {
		return nil, "final_path is empty"
	}
	return []candidate{{path: path, field: "final_path"}}, ""
}

// scanOutputDirs looks for the newest matching file in the composition's
// output directory, then the job work directory.
func scanOutputDirs(in ResolveInput, exts []string) ([]candidate, string) {
	var dirs []string
	if dir := strings.TrimSpace(in.Composition.OutputDir); dir != "" {
		dirs = append(dirs, dir)
	}
	if dir := strings.TrimSpace(in.WorkDir); dir != "" && !slices.Contains(dirs, dir) {
		dirs = append(dirs, dir)
	}
	if len(dirs) == 0 {
		return nil, "no output directory known"
	}
	var reasons []string
	for _, dir := range dirs {
		path, err := fileutil.NewestMatching(dir, exts)
		if err == nil {
			return []candidate{{path: path}}, ""
		}
		if errors.Is(err, fs.ErrNotExist) {
			reasons = append(reasons, fmt.Sprintf("no %s file in %s", strings.Join(exts, "/"), dir))
			continue
		}
		reasons = append(reasons, fmt.Sprintf("scan %s: %v", dir, err))
	}
	return nil, strings.Join(reasons, "; ")
}

// availableKeys lists the populated fields of the payloads the resolver saw.
func availableKeys(in ResolveInput) []string {
	var keys []string
	if in.Composition.OutputPath != "" {
		keys = append(keys, "composition.output_path")
	}
	if in.Composition.OutputDir != "" {
		keys = append(keys, "composition.output_dir")
	}
	if in.Composition.Format != "" {
		keys = append(keys, "composition.format")
	}
	fields := make([]string, 0, len(in.Composition.Fields))
	for key := range in.Composition.Fields {
		fields = append(fields, "composition.fields."+key)
	}
	slices.Sort(fields)
	keys = append(keys, fields...)
	if in.Export.FinalPath != "" {
		keys = append(keys, "export.final_path")
	}
	if len(keys) == 0 {
		return []string{"none"}
	}
	return keys
}

func describe(c candidate) string {
	if c.field == "" {
		return c.path
	}
	return c.field + "=" + c.path
}

func joinReason(existing, next string) string {
	if existing == "" {
		return next
	}
	return existing + "; " + next
}
