package services

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/incidra/incidra/internal/database"
	"github.com/incidra/incidra/internal/errs"
	"github.com/incidra/incidra/internal/workflow"
)

// Playbook is a reusable workflow template loaded from a YAML file.
// Task parameter values may reference playbook variables as {{name}};
// the references are filled in at instantiation time.
type Playbook struct {
	Name        string         `yaml:"name" json:"name"`
	Description string         `yaml:"description" json:"description"`
	Variables   []string       `yaml:"variables" json:"variables"`
	Tasks       []PlaybookTask `yaml:"tasks" json:"tasks"`
}

// PlaybookTask mirrors a workflow task spec in template form.
type PlaybookTask struct {
	Name             string            `yaml:"name" json:"name"`
	Action           string            `yaml:"action" json:"action"`
	Parameters       map[string]string `yaml:"parameters" json:"parameters"`
	RequiresApproval bool              `yaml:"requires_approval" json:"requires_approval"`
	TimeoutSeconds   int               `yaml:"timeout_seconds" json:"timeout_seconds"`
	MaxRetries       int               `yaml:"max_retries" json:"max_retries"`
}

// PlaybookService loads playbook templates from a directory and turns them
// into concrete workflow task lists.
type PlaybookService struct {
	mu        sync.RWMutex
	playbooks map[string]*Playbook
}

// NewPlaybookService creates an empty playbook service. Call LoadDir to
// populate it.
func NewPlaybookService() *PlaybookService {
	return &PlaybookService{playbooks: make(map[string]*Playbook)}
}

// LoadDir reads every *.yaml and *.yml file in dir as a playbook. Files that
// fail to parse are skipped with a log line; one bad file does not take down
// the rest.
func (s *PlaybookService) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read playbook directory: %w", err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			log.Printf("Failed to read playbook %s: %v", entry.Name(), err)
			continue
		}
		pb, err := parsePlaybook(data)
		if err != nil {
			log.Printf("Failed to parse playbook %s: %v", entry.Name(), err)
			continue
		}
		s.register(pb)
		loaded++
	}

	log.Printf("Loaded %d playbooks from %s", loaded, dir)
	return nil
}

func parsePlaybook(data []byte) (*Playbook, error) {
	var pb Playbook
	if err := yaml.Unmarshal(data, &pb); err != nil {
		return nil, err
	}
	if pb.Name == "" {
		return nil, fmt.Errorf("playbook has no name")
	}
	if len(pb.Tasks) == 0 {
		return nil, fmt.Errorf("playbook %s has no tasks", pb.Name)
	}
	for i, task := range pb.Tasks {
		if task.Name == "" || task.Action == "" {
			return nil, fmt.Errorf("playbook %s task %d needs a name and an action", pb.Name, i)
		}
	}
	return &pb, nil
}

func (s *PlaybookService) register(pb *Playbook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playbooks[pb.Name] = pb
}

// List returns the loaded playbooks sorted by name.
func (s *PlaybookService) List() []*Playbook {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Playbook, 0, len(s.playbooks))
	for _, pb := range s.playbooks {
		out = append(out, pb)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Get returns a playbook by name.
func (s *PlaybookService) Get(name string) (*Playbook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pb, ok := s.playbooks[name]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return pb, nil
}

// Instantiate fills a playbook's variables and returns the concrete task
// specs ready for workflow creation. Every declared variable must be given
// a value.
func (s *PlaybookService) Instantiate(name string, vars map[string]string) ([]workflow.TaskSpec, error) {
	pb, err := s.Get(name)
	if err != nil {
		return nil, err
	}
	for _, v := range pb.Variables {
		if _, ok := vars[v]; !ok {
			return nil, errs.NewValidation(v, "playbook variable has no value")
		}
	}

	specs := make([]workflow.TaskSpec, len(pb.Tasks))
	for i, task := range pb.Tasks {
		params := make(database.JSONB, len(task.Parameters))
		for key, value := range task.Parameters {
			params[key] = substitute(value, vars)
		}
		specs[i] = workflow.TaskSpec{
			Name:             task.Name,
			Action:           task.Action,
			Parameters:       params,
			RequiresApproval: task.RequiresApproval,
			TimeoutSeconds:   task.TimeoutSeconds,
			MaxRetries:       task.MaxRetries,
		}
	}
	return specs, nil
}

// substitute replaces {{name}} references with their values.
func substitute(value string, vars map[string]string) string {
	for name, v := range vars {
		value = strings.ReplaceAll(value, "{{"+name+"}}", v)
	}
	return value
}
