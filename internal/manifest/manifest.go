// Package manifest loads YAML batch manifests for the run command and the
// batch submission endpoint.
//
// A manifest names its inputs and optional batch-wide defaults:
//
//	output: ~/subtitles
//	concurrency: 2
//	language: Spanish
//	tasks:
//	  - episode01.mkv
//	  - input: extras/commentary.srt
//	    workflow: subtitle
//	    language: French
//
// Relative input paths resolve against the manifest's directory.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"subforge/internal/config"
	"subforge/internal/pipeline"
	"subforge/internal/services"
	"subforge/internal/workflow"
)

// Manifest is a decoded batch manifest.
type Manifest struct {
	OutputDir      string            `yaml:"output,omitempty"`
	Concurrency    int               `yaml:"concurrency,omitempty"`
	Workflow       pipeline.Workflow `yaml:"workflow,omitempty"`
	TargetLanguage string            `yaml:"language,omitempty"`
	Tasks          []Entry           `yaml:"tasks"`

	dir string
}

// Entry is one manifest task. It decodes from either a bare path or a mapping.
type Entry struct {
	workflow.TaskSpec `yaml:",inline"`
}

// UnmarshalYAML accepts scalar and mapping task entries.
func (e *Entry) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		e.InputPath = node.Value
		return nil
	}
	var spec workflow.TaskSpec
	if err := node.Decode(&spec); err != nil {
		return err
	}
	e.TaskSpec = spec
	return nil
}

// Load reads and decodes the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, services.Wrap(services.ErrFilesystem, "", "read manifest", path, err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	abs, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, services.Wrap(services.ErrFilesystem, "", "resolve manifest directory", path, err)
	}
	m.dir = abs
	return m, nil
}

// Parse decodes manifest content, rejecting unknown keys.
func Parse(data []byte) (*Manifest, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var m Manifest
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, services.Wrap(services.ErrValidation, "", "parse manifest", "manifest is empty", nil)
		}
		return nil, services.Wrap(services.ErrValidation, "", "parse manifest", "invalid yaml", err)
	}
	if len(m.Tasks) == 0 {
		return nil, services.Wrap(services.ErrValidation, "", "parse manifest", "no tasks listed", nil)
	}
	if m.Concurrency < 0 {
		return nil, services.Wrap(services.ErrValidation, "", "parse manifest", "concurrency must be positive", nil)
	}
	return &m, nil
}

// Specs returns the task specs with manifest defaults applied and relative
// inputs resolved.
func (m *Manifest) Specs() []workflow.TaskSpec {
	specs := make([]workflow.TaskSpec, 0, len(m.Tasks))
	for _, entry := range m.Tasks {
		spec := entry.TaskSpec
		spec.InputPath = strings.TrimSpace(spec.InputPath)
		if spec.InputPath != "" && !filepath.IsAbs(spec.InputPath) && m.dir != "" {
			spec.InputPath = filepath.Join(m.dir, spec.InputPath)
		}
		if spec.Workflow == "" {
			spec.Workflow = m.Workflow
		}
		if strings.TrimSpace(spec.TargetLanguage) == "" {
			spec.TargetLanguage = m.TargetLanguage
		}
		specs = append(specs, spec)
	}
	return specs
}

// Output returns the manifest output directory expanded, or fallback when
// unset.
func (m *Manifest) Output(fallback string) (string, error) {
	out := strings.TrimSpace(m.OutputDir)
	if out == "" {
		return fallback, nil
	}
	if !filepath.IsAbs(out) && !strings.HasPrefix(out, "~") && m.dir != "" {
		out = filepath.Join(m.dir, out)
	}
	expanded, err := config.ExpandPath(out)
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "", "expand manifest output", out, err)
	}
	return expanded, nil
}
