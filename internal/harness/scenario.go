package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/texgraph/internal/node"
)

// Scenario describes a graph, a sequence of edits applied to it and the
// assertions that must hold afterwards.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// AutoUpdate enables auto_update on the live graph.
	AutoUpdate bool `yaml:"auto_update,omitempty"`

	// Nodes are added in order, so ids follow list position.
	Nodes []NodeDef `yaml:"nodes"`

	// Edges use the form "producer.slot -> consumer.slot".
	Edges []string `yaml:"edges,omitempty"`

	// Steps run after the graph is built.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final graph state.
	// Supported types: state, uniform, size, error, changed
	Assertions []Assertion `yaml:"assertions,omitempty"`

	// dir resolves relative image paths.
	dir string
}

// NodeDef declares one node. Image paths are relative to the scenario file.
type NodeDef struct {
	Ref       string `yaml:"ref"`
	node.Spec `yaml:",inline"`

	// Resize, Slot and Size configure the resize policy.
	Resize string `yaml:"resize,omitempty"`
	Slot   int    `yaml:"slot,omitempty"`
	Size   []int  `yaml:"size,omitempty"`
	Filter string `yaml:"filter,omitempty"`

	// Watch adds the node to the watch set.
	Watch bool `yaml:"watch,omitempty"`
}

// Step is one edit or scheduling request.
type Step struct {
	// Action is one of: process, materialize, set_value, set_mix, connect,
	// disconnect, remove, watch, unwatch.
	Action string `yaml:"action"`

	// Node is the target ref, or "ref.slot" for disconnect.
	Node string `yaml:"node,omitempty"`

	Value *float64 `yaml:"value,omitempty"`
	Mix   string   `yaml:"mix,omitempty"`

	// Edge is used by connect.
	Edge string `yaml:"edge,omitempty"`

	// ExpectError names the error the step must fail with. Empty means the
	// step must succeed.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Assertion validates the graph after all steps have run.
type Assertion struct {
	// Type specifies the assertion type:
	// - "state": every listed node is in State
	// - "uniform": every channel of Node's slot equals Value
	// - "size": Node's slot has Width x Height
	// - "error": Node carries a compute error with Code
	// - "changed": the change set drained after Step equals Nodes
	Type string `yaml:"type"`

	Node  string   `yaml:"node,omitempty"`
	Nodes []string `yaml:"nodes,omitempty"`
	Slot  int      `yaml:"slot,omitempty"`

	State string   `yaml:"state,omitempty"`
	Value *float64 `yaml:"value,omitempty"`
	Size  []int    `yaml:"size,omitempty"`
	Code  string   `yaml:"code,omitempty"`

	// Step is the 1-based step index for "changed"; 0 means the last step.
	Step int `yaml:"step,omitempty"`
}

// Assertion type constants.
const (
	AssertState   = "state"
	AssertUniform = "uniform"
	AssertSize    = "size"
	AssertError   = "error"
	AssertChanged = "changed"
)

// Step actions.
const (
	ActionProcess     = "process"
	ActionMaterialize = "materialize"
	ActionSetValue    = "set_value"
	ActionSetMix      = "set_mix"
	ActionConnect     = "connect"
	ActionDisconnect  = "disconnect"
	ActionRemove      = "remove"
	ActionWatch       = "watch"
	ActionUnwatch     = "unwatch"
)

var (
	refPattern  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	edgePattern = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_]*)\.(\d+)\s*->\s*([A-Za-z_][A-Za-z0-9_]*)\.(\d+)\s*$`)
)

// LoadScenario reads and parses a scenario YAML file.
// The document is checked against the scenario schema first, then decoded
// with unknown fields rejected, then checked for dangling refs.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	s.dir = filepath.Dir(path)
	return s, nil
}

// ParseScenario parses scenario YAML. Image paths resolve against the
// working directory.
func ParseScenario(data []byte) (*Scenario, error) {
	if err := ValidateSchema(data); err != nil {
		return nil, err
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks the cross references the schema cannot express.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Nodes) == 0 {
		return fmt.Errorf("nodes list is required and must be non-empty")
	}

	refs := make(map[string]bool, len(s.Nodes))
	for i, n := range s.Nodes {
		if !refPattern.MatchString(n.Ref) {
			return fmt.Errorf("node %d: invalid ref %q", i, n.Ref)
		}
		if refs[n.Ref] {
			return fmt.Errorf("node %d: duplicate ref %q", i, n.Ref)
		}
		refs[n.Ref] = true
	}

	for i, e := range s.Edges {
		out, in, err := parseEdge(e)
		if err != nil {
			return fmt.Errorf("edge %d: %w", i, err)
		}
		for _, ref := range []string{out.ref, in.ref} {
			if !refs[ref] {
				return fmt.Errorf("edge %d: unknown node %q", i, ref)
			}
		}
	}

	for i, st := range s.Steps {
		if err := validateStep(st, refs); err != nil {
			return fmt.Errorf("step %d (%s): %w", i+1, st.Action, err)
		}
	}

	for i, a := range s.Assertions {
		for _, ref := range append([]string{a.Node}, a.Nodes...) {
			if ref != "" && !refs[ref] {
				return fmt.Errorf("assertion %d: unknown node %q", i, ref)
			}
		}
		if a.Type == AssertChanged && a.Step > len(s.Steps) {
			return fmt.Errorf("assertion %d: step %d out of range", i, a.Step)
		}
	}
	return nil
}

func validateStep(st Step, refs map[string]bool) error {
	switch st.Action {
	case ActionProcess:
		return nil
	case ActionConnect:
		out, in, err := parseEdge(st.Edge)
		if err != nil {
			return err
		}
		if !refs[out.ref] || !refs[in.ref] {
			return fmt.Errorf("unknown node in %q", st.Edge)
		}
		return nil
	case ActionDisconnect:
		ref, err := parseSlotRef(st.Node)
		if err != nil {
			return err
		}
		if !refs[ref.ref] {
			return fmt.Errorf("unknown node %q", ref.ref)
		}
		return nil
	case ActionSetValue:
		if st.Value == nil {
			return fmt.Errorf("value is required")
		}
	case ActionSetMix:
		if st.Mix == "" {
			return fmt.Errorf("mix is required")
		}
	}
	// Removed refs may legitimately be targeted again to check NotFound.
	if !refs[st.Node] {
		return fmt.Errorf("unknown node %q", st.Node)
	}
	return nil
}

// slotRef is a scenario-level "ref.slot".
type slotRef struct {
	ref  string
	slot int
}

func parseEdge(s string) (out, in slotRef, err error) {
	m := edgePattern.FindStringSubmatch(s)
	if m == nil {
		return out, in, fmt.Errorf("edge %q: want \"ref.slot -> ref.slot\"", s)
	}
	outSlot, _ := strconv.Atoi(m[2])
	inSlot, _ := strconv.Atoi(m[4])
	return slotRef{m[1], outSlot}, slotRef{m[3], inSlot}, nil
}

func parseSlotRef(s string) (slotRef, error) {
	ref, slot, ok := strings.Cut(strings.TrimSpace(s), ".")
	if !ok {
		return slotRef{}, fmt.Errorf("slot %q: want \"ref.slot\"", s)
	}
	n, err := strconv.Atoi(slot)
	if err != nil || n < 0 {
		return slotRef{}, fmt.Errorf("slot %q: bad slot number", s)
	}
	return slotRef{ref, n}, nil
}
