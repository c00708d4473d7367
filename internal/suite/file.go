// Package suite runs YAML-described test suites against remote agents.
package suite

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/testagent/internal/config"
	"github.com/mattjoyce/testagent/internal/sequence"
)

// File is a suite file: an ordered list of suites.
type File struct {
	Suites []Suite `yaml:"suites"`
}

// Suite is one remote run: files to ship, setup commands, then the commands
// under test.
type Suite struct {
	Name    string        `yaml:"name"`
	Agent   string        `yaml:"agent"`
	Uploads []Upload      `yaml:"uploads"`
	Setup   []Step        `yaml:"setup"`
	Run     []Step        `yaml:"run"`
	Timeout time.Duration `yaml:"timeout"`
	Keep    bool          `yaml:"keep"`
}

// Upload copies Local on the controller to Remote inside the workspace.
type Upload struct {
	Local  string `yaml:"local"`
	Remote string `yaml:"remote"`
}

// Step is a command, written either as a plain string or as a mapping with
// command and cwd keys.
type Step sequence.Step

// UnmarshalYAML accepts both step forms.
func (s *Step) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		s.Command = node.Value
		s.Cwd = ""
		return nil
	}
	var raw struct {
		Command string `yaml:"command"`
		Cwd     string `yaml:"cwd"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	s.Command, s.Cwd = raw.Command, raw.Cwd
	return nil
}

func steps(in []Step) []sequence.Step {
	out := make([]sequence.Step, len(in))
	for i, s := range in {
		out[i] = sequence.Step(s)
	}
	return out
}

// Load reads and validates a suite file. ${VAR} references are expanded
// before parsing; defaultAgent fills suites that name no agent.
func Load(path, defaultAgent string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read suite file: %w", err)
	}
	return Parse(data, defaultAgent)
}

// Parse is Load for in-memory bytes.
func Parse(data []byte, defaultAgent string) (*File, error) {
	var f File
	if err := yaml.Unmarshal([]byte(config.ExpandEnv(string(data))), &f); err != nil {
		return nil, fmt.Errorf("failed to parse suite file: %w", err)
	}
	if err := f.normalize(defaultAgent); err != nil {
		return nil, fmt.Errorf("invalid suite file: %w", err)
	}
	return &f, nil
}

func (f *File) normalize(defaultAgent string) error {
	if len(f.Suites) == 0 {
		return errors.New("no suites defined")
	}
	var errs []error
	for i := range f.Suites {
		s := &f.Suites[i]
		if s.Name == "" {
			s.Name = fmt.Sprintf("suite-%d", i+1)
		}
		if s.Agent == "" {
			s.Agent = defaultAgent
		}
		if s.Agent == "" {
			errs = append(errs, fmt.Errorf("%s: agent is required", s.Name))
		}
		if len(s.Run) == 0 {
			errs = append(errs, fmt.Errorf("%s: at least one run command is required", s.Name))
		}
		if s.Timeout < 0 {
			errs = append(errs, fmt.Errorf("%s: timeout must not be negative", s.Name))
		}
		for j, u := range s.Uploads {
			if u.Local == "" || u.Remote == "" {
				errs = append(errs, fmt.Errorf("%s: upload %d needs local and remote", s.Name, j+1))
			}
			s.Uploads[j].Local = config.ExpandHome(u.Local)
		}
		for _, st := range append(append([]Step{}, s.Setup...), s.Run...) {
			if strings.TrimSpace(st.Command) == "" {
				errs = append(errs, fmt.Errorf("%s: empty command", s.Name))
				break
			}
		}
	}
	return errors.Join(errs...)
}
