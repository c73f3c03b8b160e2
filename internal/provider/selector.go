package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"reelforge/internal/config"
	"reelforge/internal/generation"
	"reelforge/internal/logging"
	"reelforge/internal/provider/builtin"
)

// Chain is the ordered premium and free backend names tried for one stage,
// plus the preference used when a request does not state one.
type Chain struct {
	Default string
	Pro     []string
	Free    []string
}

// Options configures a Selector.
type Options struct {
	Chains  map[generation.Stage]Chain
	Builtin builtin.Options
	Logger  *slog.Logger
}

// OptionsFromConfig derives selector options from application config.
func OptionsFromConfig(cfg *config.Config, logger *slog.Logger) Options {
	chains := make(map[generation.Stage]Chain, len(generation.Stages()))
	for _, stage := range generation.Stages() {
		pc := cfg.Providers.For(stage)
		chains[stage] = Chain{
			Default: pc.Tier,
			Pro:     append([]string(nil), pc.Pro...),
			Free:    append([]string(nil), pc.Free...),
		}
	}
	return Options{
		Chains:  chains,
		Builtin: builtin.Options{OutputDir: cfg.Paths.OutputDir},
		Logger:  logger,
	}
}

// Selector picks a backend per stage by walking the tier fallback chain.
type Selector struct {
	chains     map[generation.Stage]Chain
	guaranteed map[generation.Stage]generation.Backend
	logger     *slog.Logger
}

// NewSelector constructs the guaranteed backends and returns a Selector. A
// construction failure is a startup configuration error.
func NewSelector(opts Options) (*Selector, error) {
	guaranteed, err := builtin.NewAll(opts.Builtin)
	if err != nil {
		return nil, fmt.Errorf("construct guaranteed backends: %w", err)
	}
	chains := make(map[generation.Stage]Chain, len(opts.Chains))
	for stage, chain := range opts.Chains {
		chains[stage] = Chain{
			Default: strings.TrimSpace(chain.Default),
			Pro:     normalizeNames(chain.Pro),
			Free:    normalizeNames(chain.Free),
		}
	}
	return &Selector{
		chains:     chains,
		guaranteed: guaranteed,
		logger:     logging.NewComponentLogger(opts.Logger, "provider"),
	}, nil
}

// Guaranteed returns the built-in backend for stage.
func (s *Selector) Guaranteed(stage generation.Stage) generation.Backend {
	return s.guaranteed[stage]
}

// Query describes one selection request.
type Query struct {
	Stage generation.Stage
	// Preference is a tier name or an exact backend name. Empty uses the
	// stage's configured default.
	Preference  string
	OfflineOnly bool
	// Quiet logs the decision at debug level only.
	Quiet bool
}

type candidate struct {
	name  string
	group generation.Tier
}

// Pick selects a backend for q from reg. It never panics. For a pipeline
// stage every path ends at the stage's guaranteed backend; an unknown stage
// yields a selection with no backend.
func (s *Selector) Pick(ctx context.Context, q Query, reg *Registry) (sel Selection) {
	requested := s.requested(q)
	if _, ok := s.guaranteed[q.Stage]; !ok {
		logging.WarnWithContext(logging.WithContext(ctx, s.logger), "provider selection for unknown stage", "provider_selection_unknown_stage",
			logging.String(logging.FieldStage, string(q.Stage)),
			logging.String(logging.FieldErrorHint, "use one of the pipeline stages"),
			logging.String(logging.FieldImpact, "no backend selected"),
		)
		return Selection{Stage: q.Stage, Requested: requested, Reason: "unknown stage"}
	}
	defer func() {
		if r := recover(); r != nil {
			sel = s.fallbackToGuaranteed(q.Stage, requested, fmt.Sprintf("selection recovered from panic: %v", r), nil)
			logging.ErrorWithContext(s.logger, "provider selection panicked", "provider_selection_panic",
				logging.String(logging.FieldStage, string(q.Stage)),
				logging.String("panic", fmt.Sprint(r)),
				logging.Alert("internal_error"),
			)
		}
		s.logDecision(ctx, sel, q.Quiet)
	}()

	tier, isTier := generation.ParseTier(requested)
	if isTier && tier == generation.TierGuaranteed {
		return s.guaranteedSelection(q.Stage, requested, "guaranteed backend requested", false, nil)
	}
	if !isTier && strings.EqualFold(requested, s.guaranteed[q.Stage].Name()) {
		return s.guaranteedSelection(q.Stage, requested, "requested backend is the guaranteed backend", false, nil)
	}

	var skipped []Skip
	for _, c := range s.candidates(q.Stage, requested, tier, isTier, reg) {
		backend, ok := reg.Lookup(q.Stage, c.name)
		if !ok {
			skipped = append(skipped, Skip{Backend: c.name, Reason: "not registered"})
			continue
		}
		if q.OfflineOnly && requiresNetwork(backend) {
			skipped = append(skipped, Skip{Backend: c.name, Reason: "requires network (offline only)"})
			continue
		}
		if ok, reason := probeAvailability(ctx, backend); !ok {
			skipped = append(skipped, Skip{Backend: c.name, Reason: reason})
			continue
		}
		return s.registeredSelection(q.Stage, requested, tier, isTier, backend, skipped)
	}
	return s.fallbackToGuaranteed(q.Stage, requested, summarizeSkips(skipped, 4), skipped)
}

// Preview picks a backend for every stage using the request's preferences.
func (s *Selector) Preview(ctx context.Context, req generation.Request, reg *Registry) []Selection {
	stages := generation.Stages()
	out := make([]Selection, 0, len(stages))
	for _, stage := range stages {
		out = append(out, s.Pick(ctx, Query{
			Stage:       stage,
			Preference:  req.Preference(stage),
			OfflineOnly: req.OfflineOnly,
			Quiet:       true,
		}, reg))
	}
	return out
}

func (s *Selector) requested(q Query) string {
	if pref := strings.TrimSpace(q.Preference); pref != "" {
		return pref
	}
	if def := s.chains[q.Stage].Default; def != "" {
		return def
	}
	return string(generation.TierGuaranteed)
}

// candidates expands a tier into its ordered fallback list (configured names
// first, then any other registered backends of that tier by name). An exact
// backend name is a one-element list.
func (s *Selector) candidates(stage generation.Stage, requested string, tier generation.Tier, isTier bool, reg *Registry) []candidate {
	if !isTier {
		return []candidate{{name: normalizeName(requested)}}
	}
	chain := s.chains[stage]
	var out []candidate
	seen := make(map[string]struct{})
	add := func(names []string, group generation.Tier) {
		for _, name := range names {
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, candidate{name: name, group: group})
		}
	}
	switch tier {
	case generation.TierPro, generation.TierProIfAvailable:
		add(chain.Pro, generation.TierPro)
		add(reg.Names(stage, generation.TierPro), generation.TierPro)
		fallthrough
	case generation.TierFree:
		add(chain.Free, generation.TierFree)
		add(reg.Names(stage, generation.TierFree), generation.TierFree)
	}
	return out
}

func (s *Selector) registeredSelection(stage generation.Stage, requested string, tier generation.Tier, isTier bool, backend generation.Backend, skipped []Skip) Selection {
	sel := Selection{
		Stage:     stage,
		Backend:   normalizeName(backend.Name()),
		Tier:      backend.Tier(),
		Requested: requested,
		Skipped:   skipped,
		instance:  backend,
	}
	switch {
	case !isTier:
		sel.Reason = "requested backend available"
	case matchesTier(tier, backend.Tier()):
		sel.Reason = fmt.Sprintf("first available %s backend", backend.Tier())
	default:
		sel.IsFallback = true
		sel.FallbackFrom = requested
		sel.Reason = fmt.Sprintf("no usable %s backend (%s); using %s", tierLabel(tier), summarizeSkips(skipped, 4), backend.Tier())
	}
	return sel
}

func (s *Selector) fallbackToGuaranteed(stage generation.Stage, requested, why string, skipped []Skip) Selection {
	return s.guaranteedSelection(stage, requested, "fell back to guaranteed backend: "+why, true, skipped)
}

func (s *Selector) guaranteedSelection(stage generation.Stage, requested, reason string, fallback bool, skipped []Skip) Selection {
	backend := s.guaranteed[stage]
	sel := Selection{
		Stage:      stage,
		Backend:    backend.Name(),
		Tier:       generation.TierGuaranteed,
		Requested:  requested,
		IsFallback: fallback,
		Reason:     reason,
		Skipped:    skipped,
		instance:   backend,
	}
	if fallback {
		sel.FallbackFrom = requested
	}
	return sel
}

func (s *Selector) logDecision(ctx context.Context, sel Selection, quiet bool) {
	logger := logging.WithContext(ctx, s.logger)
	attrs := logging.DecisionAttrs("provider_selection", sel.Backend, sel.Reason)
	attrs = append(attrs,
		logging.String(logging.FieldStage, string(sel.Stage)),
		logging.String("requested", sel.Requested),
		logging.String("tier", string(sel.Tier)),
		logging.Bool("fallback", sel.IsFallback),
	)
	// ProIfAvailable expects to fall back, so only surface unexpected ones.
	if !quiet && sel.IsFallback && !strings.EqualFold(sel.Requested, string(generation.TierProIfAvailable)) {
		logger.Info("provider fallback selected", logging.Args(attrs...)...)
		return
	}
	logger.Debug("provider selected", logging.Args(attrs...)...)
}

// matchesTier reports whether a backend of tier got satisfies a request
// for want. ProIfAvailable is satisfied by Pro.
func matchesTier(want, got generation.Tier) bool {
	if want == generation.TierProIfAvailable {
		return got == generation.TierPro
	}
	return want == got
}

func tierLabel(tier generation.Tier) string {
	if tier == generation.TierProIfAvailable {
		return string(generation.TierPro)
	}
	return string(tier)
}

func requiresNetwork(backend generation.Backend) bool {
	nb, ok := backend.(generation.NetworkBound)
	return ok && nb.RequiresNetwork()
}

func probeAvailability(ctx context.Context, backend generation.Backend) (ok bool, reason string) {
	checker, isChecker := backend.(generation.AvailabilityChecker)
	if !isChecker {
		return true, ""
	}
	defer func() {
		if r := recover(); r != nil {
			ok, reason = false, fmt.Sprintf("availability probe panicked: %v", r)
		}
	}()
	ok, reason = checker.Available(ctx)
	if !ok && strings.TrimSpace(reason) == "" {
		reason = "unavailable"
	}
	return ok, reason
}

func normalizeNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if n := normalizeName(name); n != "" {
			out = append(out, n)
		}
	}
	return out
}
