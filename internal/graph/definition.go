package graph

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

const (
	TypeTask     = "Task"
	TypePass     = "Pass"
	TypeChoice   = "Choice"
	TypeWait     = "Wait"
	TypeParallel = "Parallel"
	TypeSucceed  = "Succeed"
	TypeFail     = "Fail"
)

type Choice struct {
	Next string `json:"Next" yaml:"Next"`
}

type State struct {
	Type    string   `json:"Type" yaml:"Type"`
	Next    string   `json:"Next,omitempty" yaml:"Next,omitempty"`
	End     bool     `json:"End,omitempty" yaml:"End,omitempty"`
	Choices []Choice `json:"Choices,omitempty" yaml:"Choices,omitempty"`
	Default string   `json:"Default,omitempty" yaml:"Default,omitempty"`
}

// Terminal reports whether the state ends a path through the graph.
func (s State) Terminal() bool {
	return s.End || s.Type == TypeSucceed || s.Type == TypeFail
}

// Targets returns the transition targets in declaration order, without
// duplicates.
func (s State) Targets() []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(t string) {
		if t == "" {
			return
		}
		if _, ok := seen[t]; ok {
			return
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	add(s.Next)
	for _, c := range s.Choices {
		add(c.Next)
	}
	add(s.Default)
	return out
}

// Definition is a state machine: one start state and the named states it
// can reach.
type Definition struct {
	Comment string           `json:"Comment,omitempty" yaml:"Comment,omitempty"`
	StartAt string           `json:"StartAt" yaml:"StartAt"`
	States  map[string]State `json:"States" yaml:"States"`
}

// Parse decodes a definition from JSON, or from YAML when the document does
// not start with '{'.
func Parse(data []byte) (Definition, error) {
	var def Definition
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return def, &ValidationError{Problems: []string{"definition is empty"}}
	}
	if trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &def); err != nil {
			return def, &ValidationError{Problems: []string{fmt.Sprintf("invalid JSON definition: %v", err)}}
		}
		return def, nil
	}
	if err := yaml.Unmarshal(trimmed, &def); err != nil {
		return def, &ValidationError{Problems: []string{fmt.Sprintf("invalid YAML definition: %v", err)}}
	}
	return def, nil
}
