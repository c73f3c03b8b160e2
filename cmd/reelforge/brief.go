package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"reelforge/internal/config"
	"reelforge/internal/generation"
)

// briefFile is the on-disk TOML form of a generation request.
type briefFile struct {
	Topic          string `toml:"topic"`
	Audience       string `toml:"audience"`
	Tone           string `toml:"tone"`
	TargetDuration string `toml:"target_duration"`
	ScriptTier     string `toml:"script_tier"`
	NarrationTier  string `toml:"narration_tier"`
	VisualTier     string `toml:"visual_tier"`
	OfflineOnly    bool   `toml:"offline_only"`
	CorrelationID  string `toml:"correlation_id"`
}

// briefFlags collects a request from --brief and per-field flags. Flags
// override values read from the file.
type briefFlags struct {
	path          string
	topic         string
	audience      string
	tone          string
	duration      time.Duration
	scriptTier    string
	narrationTier string
	visualTier    string
	offline       bool
	correlationID string
}

func (b *briefFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVarP(&b.path, "brief", "b", "", "TOML brief file")
	flags.StringVarP(&b.topic, "topic", "t", "", "Video topic")
	flags.StringVar(&b.audience, "audience", "", "Intended audience")
	flags.StringVar(&b.tone, "tone", "", "Narration tone")
	flags.DurationVarP(&b.duration, "duration", "d", 0, "Target duration (e.g. 90s, 2m)")
	flags.StringVar(&b.scriptTier, "script-tier", "", "Script tier or backend name")
	flags.StringVar(&b.narrationTier, "narration-tier", "", "Narration tier or backend name")
	flags.StringVar(&b.visualTier, "visual-tier", "", "Visuals tier or backend name")
	flags.BoolVar(&b.offline, "offline", false, "Only use backends that need no network")
	flags.StringVar(&b.correlationID, "correlation-id", "", "Caller-supplied id used to deduplicate submissions")
}

// request builds and validates the generation request. A bare positional
// argument is accepted as the topic.
func (b *briefFlags) request(args []string) (generation.Request, error) {
	var req generation.Request
	if path := strings.TrimSpace(b.path); path != "" {
		loaded, err := loadBrief(path)
		if err != nil {
			return generation.Request{}, err
		}
		req = loaded
	}
	if len(args) > 0 && b.topic == "" {
		b.topic = strings.Join(args, " ")
	}
	overrideString(&req.Topic, b.topic)
	overrideString(&req.Audience, b.audience)
	overrideString(&req.Tone, b.tone)
	overrideString(&req.ScriptTier, b.scriptTier)
	overrideString(&req.NarrationTier, b.narrationTier)
	overrideString(&req.VisualTier, b.visualTier)
	overrideString(&req.CorrelationID, b.correlationID)
	if b.duration > 0 {
		req.TargetDuration = b.duration
	}
	if req.TargetDuration == 0 {
		req.TargetDuration = time.Minute
	}
	if b.offline {
		req.OfflineOnly = true
	}
	if err := req.Validate(); err != nil {
		return generation.Request{}, err
	}
	return req, nil
}

func loadBrief(path string) (generation.Request, error) {
	expanded, err := config.ExpandPath(path)
	if err != nil {
		return generation.Request{}, err
	}
	file, err := os.Open(expanded)
	if err != nil {
		return generation.Request{}, fmt.Errorf("open brief: %w", err)
	}
	defer file.Close()

	var raw briefFile
	if err := toml.NewDecoder(file).DisallowUnknownFields().Decode(&raw); err != nil {
		return generation.Request{}, fmt.Errorf("parse brief %s: %w", expanded, err)
	}
	req := generation.Request{
		Topic:         raw.Topic,
		Audience:      raw.Audience,
		Tone:          raw.Tone,
		ScriptTier:    raw.ScriptTier,
		NarrationTier: raw.NarrationTier,
		VisualTier:    raw.VisualTier,
		OfflineOnly:   raw.OfflineOnly,
		CorrelationID: raw.CorrelationID,
	}
	if value := strings.TrimSpace(raw.TargetDuration); value != "" {
		d, err := time.ParseDuration(value)
		if err != nil {
			return generation.Request{}, fmt.Errorf("parse brief %s: target_duration: %w", expanded, err)
		}
		req.TargetDuration = d
	}
	return req, nil
}

func overrideString(dst *string, value string) {
	if value = strings.TrimSpace(value); value != "" {
		*dst = value
	}
}
