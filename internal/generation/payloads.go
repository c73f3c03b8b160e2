package generation

import "time"

// ProgressFunc receives provider-reported progress for the running stage.
// Percent is in [0, 100].
type ProgressFunc func(percent float64, message string)

// StageContext carries per-job values every stage input shares.
type StageContext struct {
	JobID    string
	WorkDir  string
	Progress ProgressFunc
}

// Report forwards progress when a callback is attached.
func (c StageContext) Report(percent float64, message string) {
	if c.Progress != nil {
		c.Progress(percent, message)
	}
}

// Scene is one narrated segment of a script.
type Scene struct {
	Index        int           `json:"index"`
	Heading      string        `json:"heading"`
	Narration    string        `json:"narration"`
	VisualPrompt string        `json:"visual_prompt"`
	Duration     time.Duration `json:"duration"`
}

// Script is the Script stage payload.
type Script struct {
	Title  string  `json:"title"`
	Scenes []Scene `json:"scenes"`
}

// TotalDuration sums scene durations.
func (s Script) TotalDuration() time.Duration {
	var total time.Duration
	for _, scene := range s.Scenes {
		total += scene.Duration
	}
	return total
}

// Narration is the Narration stage payload.
type Narration struct {
	AudioPath  string        `json:"audio_path"`
	Duration   time.Duration `json:"duration"`
	SampleRate int           `json:"sample_rate"`
}

// Visual is one generated image bound to a scene.
type Visual struct {
	SceneIndex int    `json:"scene_index"`
	ImagePath  string `json:"image_path"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
}

// VisualSet is the Visuals stage payload (image manifest).
type VisualSet struct {
	Visuals []Visual `json:"visuals"`
}

// Composition is the Composition stage payload. OutputPath is the declared
// primary output; renderers that report their result under other names put
// them in Fields.
type Composition struct {
	OutputPath string            `json:"output_path,omitempty"`
	Format     string            `json:"format,omitempty"`
	OutputDir  string            `json:"output_dir,omitempty"`
	Fields     map[string]string `json:"fields,omitempty"`
}

// Export is the Export stage payload.
type Export struct {
	FinalPath string `json:"final_path,omitempty"`
	Format    string `json:"format,omitempty"`
}

// ScriptInput feeds the Script stage.
type ScriptInput struct {
	StageContext
	Request Request
}

// NarrationInput feeds the Narration stage.
type NarrationInput struct {
	StageContext
	Request Request
	Script  Script
}

// VisualInput feeds the Visuals stage.
type VisualInput struct {
	StageContext
	Request Request
	Script  Script
}

// CompositionInput feeds the Composition stage.
type CompositionInput struct {
	StageContext
	Request   Request
	Script    Script
	Narration Narration
	Visuals   VisualSet
}

// ExportInput feeds the Export stage.
type ExportInput struct {
	StageContext
	Request     Request
	Composition Composition
	// SourcePath is the composed file located from Composition by the
	// coordinator, empty when none could be found.
	SourcePath string
	Title      string
}
