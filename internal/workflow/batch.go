package workflow

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"subforge/internal/language"
	"subforge/internal/pipeline"
	"subforge/internal/retry"
	"subforge/internal/services"
)

// DefaultConcurrency is the number of tasks allowed in an active stage at once.
const DefaultConcurrency = 4

// BatchConfig is shared by every task in a batch.
type BatchConfig struct {
	OutputDir   string
	ScratchDir  string
	Concurrency int
	Retry       retry.Policy
}

// TaskSpec describes a task before submission.
type TaskSpec struct {
	InputPath      string            `json:"inputPath" yaml:"input"`
	Workflow       pipeline.Workflow `json:"workflow,omitempty" yaml:"workflow,omitempty"`
	TargetLanguage string            `json:"targetLanguage,omitempty" yaml:"language,omitempty"`
}

// Batch is an immutable list of tasks plus their shared configuration.
type Batch struct {
	ID     string
	Config BatchConfig
	Tasks  []*pipeline.Task
}

// NewBatch validates specs and assigns batch and task identifiers. It rejects
// empty batches, unknown workflows, subtitle tasks without a target language,
// and tasks that would write the same output file.
func NewBatch(cfg BatchConfig, specs []TaskSpec) (*Batch, error) {
	if len(specs) == 0 {
		return nil, services.Wrap(services.ErrValidation, "", "new batch", "at least one input is required", nil)
	}
	cfg.OutputDir = strings.TrimSpace(cfg.OutputDir)
	if cfg.OutputDir == "" {
		return nil, services.Wrap(services.ErrValidation, "", "new batch", "output directory is required", nil)
	}
	if strings.TrimSpace(cfg.ScratchDir) == "" {
		return nil, services.Wrap(services.ErrValidation, "", "new batch", "scratch directory is required", nil)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = retry.DefaultPolicy()
	}

	batch := &Batch{ID: uuid.NewString(), Config: cfg}
	outputs := make(map[string]string, len(specs))
	for i, spec := range specs {
		input := strings.TrimSpace(spec.InputPath)
		if input == "" {
			return nil, services.Wrap(services.ErrValidation, "", "new batch", fmt.Sprintf("task %d: input path is required", i+1), nil)
		}
		workflow, err := pipeline.ParseWorkflow(string(spec.Workflow))
		if err != nil {
			return nil, err
		}
		lang := strings.TrimSpace(spec.TargetLanguage)
		if workflow == pipeline.WorkflowSubtitle && lang == "" {
			return nil, services.Wrap(services.ErrValidation, "", "new batch", fmt.Sprintf("%s: subtitle workflow requires a target language", input), nil)
		}
		if lang != "" {
			if err := language.Validate(lang); err != nil {
				return nil, services.Wrap(services.ErrValidation, "", "new batch", input, err)
			}
		}
		name := pipeline.OutputName(input, lang)
		if previous, dup := outputs[name]; dup {
			return nil, services.Wrap(services.ErrValidation, "", "new batch",
				fmt.Sprintf("%s and %s would both write %s", previous, input, filepath.Join(cfg.OutputDir, name)), nil)
		}
		outputs[name] = input
		batch.Tasks = append(batch.Tasks, pipeline.NewTask(uuid.NewString(), batch.ID, workflow, input, lang))
	}
	return batch, nil
}

// TaskIDs lists the task identifiers in submission order.
func (b *Batch) TaskIDs() []string {
	ids := make([]string, 0, len(b.Tasks))
	for _, task := range b.Tasks {
		ids = append(ids, task.ID)
	}
	return ids
}
