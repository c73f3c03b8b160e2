package builtin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"reelforge/internal/generation"
	"reelforge/internal/services"
	"reelforge/internal/textutil"
)

const (
	minScenes = 3
	maxScenes = 12
)

// TemplateScript builds a structured script from the brief alone.
type TemplateScript struct {
	secondsPerCue int
}

// NewTemplateScript returns the guaranteed script backend.
func NewTemplateScript(opts Options) *TemplateScript {
	opts = opts.withDefaults()
	return &TemplateScript{secondsPerCue: opts.SecondsPerCue}
}

func (s *TemplateScript) Name() string          { return TemplateScriptName }
func (s *TemplateScript) Tier() generation.Tier { return generation.TierGuaranteed }

type sceneTemplate struct {
	heading   string
	narration string
}

var sceneTemplates = []sceneTemplate{
	{"Introduction", "Today we look at %s. This overview is written for %s."},
	{"Background", "To understand %s, start with where it comes from and why it matters to %s."},
	{"Key Idea", "The central idea behind %s is simpler than it looks, and %s can apply it right away."},
	{"Example", "Here is a concrete example of %s that %s will recognise."},
	{"Common Mistakes", "People new to %s often trip over the same details; %s can avoid them."},
	{"In Practice", "Putting %s into practice takes a few small, repeatable steps for %s."},
	{"Recap", "That was %s in brief. Thanks for watching, %s."},
}

// Produce returns a script whose scene durations sum to the target duration.
func (s *TemplateScript) Produce(ctx context.Context, in generation.ScriptInput) (generation.Script, error) {
	req := in.Request
	if strings.TrimSpace(req.Topic) == "" {
		return generation.Script{}, services.Wrap(services.ErrValidation, string(generation.StageScript), "template", "topic is empty", nil)
	}
	if err := ctx.Err(); err != nil {
		return generation.Script{}, err
	}

	topic := strings.Join(strings.Fields(req.Topic), " ")
	audience := strings.TrimSpace(req.Audience)
	if audience == "" {
		audience = "a general audience"
	}

	count := sceneCount(req.TargetDuration, s.secondsPerCue)
	durations := splitDuration(req.TargetDuration, count)
	script := generation.Script{
		Title:  textutil.Title(topic),
		Scenes: make([]generation.Scene, 0, count),
	}
	for i := 0; i < count; i++ {
		tpl := pickTemplate(i, count)
		narration := fmt.Sprintf(tpl.narration, topic, audience)
		if tone := strings.TrimSpace(req.Tone); tone != "" && i == 0 {
			narration += fmt.Sprintf(" The tone is %s.", strings.ToLower(tone))
		}
		script.Scenes = append(script.Scenes, generation.Scene{
			Index:        i,
			Heading:      tpl.heading,
			Narration:    narration,
			VisualPrompt: fmt.Sprintf("%s: %s", tpl.heading, textutil.Truncate(topic, 60)),
			Duration:     durations[i],
		})
		in.Report(float64(i+1)/float64(count)*100, "scene "+tpl.heading)
	}
	return script, nil
}

func sceneCount(target time.Duration, secondsPerCue int) int {
	count := int(target / (time.Duration(secondsPerCue) * time.Second))
	return min(max(count, minScenes), maxScenes)
}

// splitDuration divides total into n parts that sum exactly to total.
func splitDuration(total time.Duration, n int) []time.Duration {
	parts := make([]time.Duration, n)
	base := total / time.Duration(n)
	for i := range parts {
		parts[i] = base
	}
	parts[n-1] += total - base*time.Duration(n)
	return parts
}

// pickTemplate keeps the first and last templates pinned to the intro and
// recap and cycles the middle ones.
func pickTemplate(i, count int) sceneTemplate {
	switch {
	case i == 0:
		return sceneTemplates[0]
	case i == count-1:
		return sceneTemplates[len(sceneTemplates)-1]
	default:
		middle := sceneTemplates[1 : len(sceneTemplates)-1]
		return middle[(i-1)%len(middle)]
	}
}
