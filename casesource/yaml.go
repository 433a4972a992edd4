package casesource

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/evalmesh/core"
	"github.com/hupe1980/evalmesh/model"
)

// ErrInvalidSuite is returned for suite files that parse but do not
// describe a runnable suite.
var ErrInvalidSuite = errors.New("invalid suite")

// SuiteFile is the YAML representation of a suite.
//
//	name: capitals
//	instructions: Answer with the city name only.
//	criteria: The answer names the correct capital.
//	cases:
//	  - input: What is the capital of France?
//	    category: europe
//	  - turns: ["My name is Ada.", "What is my name?"]
//	    criteria: The answer is Ada.
type SuiteFile struct {
	Name string `yaml:"name"`
	// Instructions is the system prompt used when the work function is a
	// model.
	Instructions string `yaml:"instructions,omitempty"`
	// Criteria and Category are defaults for cases that omit them.
	Criteria    string         `yaml:"criteria,omitempty"`
	Category    string         `yaml:"category,omitempty"`
	JudgeParams map[string]any `yaml:"judge_params,omitempty"`
	Metadata    map[string]any `yaml:"metadata,omitempty"`
	Cases       []CaseFile     `yaml:"cases"`
}

// CaseFile is one case entry. Exactly one of Input and Turns is set.
type CaseFile struct {
	Input    any            `yaml:"input,omitempty"`
	Turns    []any          `yaml:"turns,omitempty"`
	Criteria string         `yaml:"criteria,omitempty"`
	Category string         `yaml:"category,omitempty"`
	Metadata map[string]any `yaml:"metadata,omitempty"`
}

// ParseYAML decodes and validates a suite document.
func ParseYAML(data []byte) (*SuiteFile, error) {
	var f SuiteFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing suite: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks that every case has an input and a criteria.
func (f *SuiteFile) Validate() error {
	if len(f.Cases) == 0 {
		return fmt.Errorf("%w: no cases", ErrInvalidSuite)
	}
	for i, c := range f.Cases {
		hasInput, hasTurns := c.Input != nil, len(c.Turns) > 0
		switch {
		case hasInput && hasTurns:
			return fmt.Errorf("%w: case %d sets both input and turns", ErrInvalidSuite, i)
		case !hasInput && !hasTurns:
			return fmt.Errorf("%w: case %d has no input", ErrInvalidSuite, i)
		}
		if c.Criteria == "" && f.Criteria == "" {
			return fmt.Errorf("%w: case %d has no criteria", ErrInvalidSuite, i)
		}
	}
	return nil
}

// Suite converts the file into a core.Suite with defaults applied. The
// work function is left unset.
func (f *SuiteFile) Suite() core.Suite {
	cases := make([]core.Case, len(f.Cases))
	for i, c := range f.Cases {
		cs := core.Case{
			Input:    c.Input,
			Criteria: c.Criteria,
			Category: c.Category,
			Metadata: maps.Clone(c.Metadata),
		}
		if len(c.Turns) > 0 {
			cs.Input = core.Turns(c.Turns)
		}
		if cs.Criteria == "" {
			cs.Criteria = f.Criteria
		}
		if cs.Category == "" {
			cs.Category = f.Category
		}
		cases[i] = cs
	}
	return core.Suite{
		Name:        f.Name,
		Cases:       cases,
		JudgeParams: maps.Clone(f.JudgeParams),
		Metadata:    maps.Clone(f.Metadata),
	}
}

// YAMLOptions configure a YAMLSource.
type YAMLOptions struct {
	// Work is the work function. When nil and Model is set, the model
	// answers every case using the file's instructions.
	Work  any
	Model model.Model
	Setup core.SetupFunc
	// Judge overrides the run-level judge for this suite.
	Judge core.Judge
}

// YAMLSource reads a suite file on every Load.
type YAMLSource struct {
	path string
	opts YAMLOptions
}

var _ core.CaseSource = (*YAMLSource)(nil)

// LoadYAML creates a source for the suite file at path. The file is read
// when the run starts.
func LoadYAML(path string, optFns ...func(o *YAMLOptions)) *YAMLSource {
	opts := YAMLOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &YAMLSource{path: path, opts: opts}
}

// Path returns the suite file path.
func (s *YAMLSource) Path() string { return s.path }

func (s *YAMLSource) Load(context.Context) (core.Suite, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return core.Suite{}, fmt.Errorf("reading suite file: %w", err)
	}
	f, err := ParseYAML(data)
	if err != nil {
		return core.Suite{}, fmt.Errorf("%s: %w", s.path, err)
	}

	suite := f.Suite()
	if suite.Name == "" {
		suite.Name = s.path
	}
	suite.Work = s.opts.Work
	if suite.Work == nil && s.opts.Model != nil {
		suite.Work = ModelWork(s.opts.Model, f.Instructions)
	}
	suite.Setup = s.opts.Setup
	suite.Judge = s.opts.Judge
	return suite, nil
}
