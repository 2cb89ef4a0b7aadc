// Package routing maps raw requests to intents and intents to capabilities.
package routing

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// ErrNoRoute indicates no routing rule matches the classified intent and no
// default route is configured. This is a configuration defect, not a
// retryable condition.
var ErrNoRoute = errors.New("no route for intent")

// Route is the resolved plan for one intent.
type Route struct {
	// CapabilityID is the capability the job is assigned to.
	CapabilityID string `yaml:"capability"`
	// KnowledgeQuery is the query template; "{input}" expands to the raw request.
	KnowledgeQuery string `yaml:"knowledge_query"`
	// Integrations lists external productivity systems the route may touch.
	Integrations []string `yaml:"integrations"`
	// Steps, when set, makes the route composite: instead of one capability
	// call, the orchestrator runs these steps as a dependency-ordered plan.
	Steps []StepSpec `yaml:"steps"`
}

// StepSpec declares one step of a composite route.
type StepSpec struct {
	// Ordinal is the step's position in the authored plan; dependency
	// references use ordinals.
	Ordinal int `yaml:"ordinal"`
	// CapabilityID is the capability the step dispatches to.
	CapabilityID string `yaml:"capability"`
	// Input is the step input template; "{input}" expands to the raw request.
	Input string `yaml:"input"`
	// DependsOn lists ordinals of steps that must finish first.
	DependsOn []int `yaml:"depends_on"`
	// Critical stops the plan after the current batch if this step fails.
	Critical bool `yaml:"critical"`
}

// intentRule is one entry in the rules file.
type intentRule struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
	Route    `yaml:",inline"`
}

// rulesFile is the on-disk YAML shape of the routing rules.
type rulesFile struct {
	Intents []intentRule `yaml:"intents"`
	Default *Route       `yaml:"default"`
}

// Planner resolves intents to routes from a YAML rules file.
// It is safe for concurrent use; the rules file can be hot-reloaded.
type Planner struct {
	mu       sync.RWMutex
	rules    map[string]intentRule
	fallback *Route
	watcher  *fsnotify.Watcher
}

// NewPlanner loads the rules file at path.
func NewPlanner(path string) (*Planner, error) {
	p := &Planner{}
	if err := p.load(path); err != nil {
		return nil, err
	}
	return p, nil
}

// NewPlannerFromRules builds a planner directly from parsed rules (for tests
// and embedded defaults).
func NewPlannerFromRules(intents []Rule, fallback *Route) *Planner {
	p := &Planner{rules: make(map[string]intentRule), fallback: fallback}
	for _, r := range intents {
		p.rules[r.Name] = intentRule{Name: r.Name, Keywords: r.Keywords, Route: r.Route}
	}
	return p
}

// Rule is the exported shape of one routing rule.
type Rule struct {
	// Name is the intent this rule matches.
	Name string
	// Keywords trigger the keyword classifier for this intent.
	Keywords []string
	// Route is the resolved routing target.
	Route Route
}

// load reads and parses the rules file, replacing the current rule set.
func (p *Planner) load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read routing rules: %w", err)
	}

	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse routing rules: %w", err)
	}

	rules := make(map[string]intentRule, len(f.Intents))
	for _, r := range f.Intents {
		if r.Name == "" || r.CapabilityID == "" {
			return fmt.Errorf("routing rule missing name or capability: %+v", r)
		}
		rules[r.Name] = r
	}

	p.mu.Lock()
	p.rules = rules
	p.fallback = f.Default
	p.mu.Unlock()
	return nil
}

// Watch hot-reloads the rules file on change until stop is closed.
// Reload failures keep the previous rule set and are logged.
func (p *Planner) Watch(path string, stop <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return fmt.Errorf("watch routing rules: %w", err)
	}
	p.watcher = watcher

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-stop:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					if err := p.load(path); err != nil {
						log.Printf("[routing] reload failed, keeping previous rules: %v", err)
					} else {
						log.Printf("[routing] rules reloaded from %s", path)
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("[routing] watcher error: %v", err)
			}
		}
	}()
	return nil
}

// Resolve returns the route for a classified intent.
// Unknown intents fall back to the default route when one is configured.
func (p *Planner) Resolve(intent string) (Route, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if rule, ok := p.rules[intent]; ok {
		return rule.Route, nil
	}
	if p.fallback != nil {
		return *p.fallback, nil
	}
	return Route{}, fmt.Errorf("intent %q: %w", intent, ErrNoRoute)
}

// IntentNames returns the known intent names in stable order.
func (p *Planner) IntentNames() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	names := make([]string, 0, len(p.rules))
	for name := range p.rules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// KeywordsFor returns the keyword list of an intent, for the keyword classifier.
func (p *Planner) KeywordsFor(intent string) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.rules[intent].Keywords
}

// BuildQuery expands a route's query template against the raw request text.
// An empty template falls back to the raw input itself.
func BuildQuery(route Route, rawInput string) string {
	if route.KnowledgeQuery == "" {
		return rawInput
	}
	return strings.ReplaceAll(route.KnowledgeQuery, "{input}", rawInput)
}
