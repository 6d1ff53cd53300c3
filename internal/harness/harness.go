package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"

	"github.com/roach88/texgraph/internal/buffer"
	"github.com/roach88/texgraph/internal/engine"
	"github.com/roach88/texgraph/internal/graph"
	"github.com/roach88/texgraph/internal/node"
	"github.com/roach88/texgraph/internal/testutil"
)

// DefaultRequestToken stamps every request made by a scenario run.
const DefaultRequestToken = "test-request-default"

// Harness runs one scenario against a live graph without workers. Every
// step is followed by RunPending, so dispatch order is deterministic.
type Harness struct {
	lg   *engine.LiveGraph
	ids  map[string]node.ID
	refs map[node.ID]string
	dir  string
}

// Run executes a scenario and returns the result.
//
// Each scenario runs on a fresh live graph. extra options are applied after
// the harness defaults; a persistent store passed here is consulted when the
// caller also enables use_cache. The worker count is always forced to zero.
//
// Execution flow:
// 1. Build the nodes and edges (trace step 0)
// 2. Apply each step, then run pending jobs and drain the change set
// 3. Snapshot every node
// 4. Evaluate assertions
func Run(ctx context.Context, scenario *Scenario, extra ...engine.Option) (*Result, error) {
	opts := []engine.Option{
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		engine.WithTokenGenerator(testutil.NewFixedTokenGenerator(DefaultRequestToken)),
		engine.WithAutoUpdate(scenario.AutoUpdate),
	}
	opts = append(opts, extra...)
	opts = append(opts, engine.WithWorkers(0))

	lg := engine.New(opts...)
	if err := lg.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start live graph: %w", err)
	}
	defer lg.Close()

	h := &Harness{
		lg:   lg,
		ids:  make(map[string]node.ID, len(scenario.Nodes)),
		refs: make(map[node.ID]string, len(scenario.Nodes)),
		dir:  scenario.dir,
	}

	result := NewResult()
	if err := h.build(scenario); err != nil {
		return nil, fmt.Errorf("failed to build graph: %w", err)
	}
	ev, err := h.settle(ctx, TraceEvent{Step: 0, Action: "build"})
	if err != nil {
		return nil, err
	}
	result.AddEvent(ev)

	for i, step := range scenario.Steps {
		ev := TraceEvent{Step: i + 1, Action: step.Action, Target: stepTarget(step)}
		stepErr := h.apply(step)
		ev.Error = errorName(stepErr)

		switch {
		case step.ExpectError == "" && stepErr != nil:
			result.AddError(fmt.Sprintf("step %d (%s): unexpected error: %v", i+1, step.Action, stepErr))
		case step.ExpectError != "" && ev.Error != step.ExpectError:
			result.AddError(fmt.Sprintf("step %d (%s): expected error %s, got %v", i+1, step.Action, step.ExpectError, stepErr))
		}

		ev, err := h.settle(ctx, ev)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		result.AddEvent(ev)
	}

	h.snapshot(result)

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) build(s *Scenario) error {
	for _, def := range s.Nodes {
		t, err := nodeType(def, h.dir)
		if err != nil {
			return fmt.Errorf("node %s: %w", def.Ref, err)
		}
		id, err := h.lg.AddNode(t)
		if err != nil {
			return fmt.Errorf("node %s: %w", def.Ref, err)
		}
		h.ids[def.Ref] = id
		h.refs[id] = def.Ref

		policy, set, err := resizePolicy(def)
		if err != nil {
			return fmt.Errorf("node %s: %w", def.Ref, err)
		}
		if set {
			if err := h.lg.SetResizePolicy(id, policy); err != nil {
				return fmt.Errorf("node %s: %w", def.Ref, err)
			}
		}
		if def.Filter != "" {
			f, err := buffer.ParseFilter(def.Filter)
			if err != nil {
				return fmt.Errorf("node %s: %w", def.Ref, err)
			}
			if err := h.lg.SetResizeFilter(id, f); err != nil {
				return fmt.Errorf("node %s: %w", def.Ref, err)
			}
		}
		if def.Watch {
			if err := h.lg.Watch(id); err != nil {
				return fmt.Errorf("node %s: %w", def.Ref, err)
			}
		}
	}

	for _, e := range s.Edges {
		out, in, err := parseEdge(e)
		if err != nil {
			return err
		}
		if err := h.lg.Connect(h.ids[out.ref], node.SlotID(out.slot), h.ids[in.ref], node.SlotID(in.slot)); err != nil {
			return fmt.Errorf("edge %q: %w", e, err)
		}
	}
	return nil
}

// apply performs one step against the live graph.
func (h *Harness) apply(st Step) error {
	switch st.Action {
	case ActionProcess:
		return h.lg.Process()
	case ActionMaterialize:
		return h.lg.Materialize(h.ids[st.Node])
	case ActionSetValue:
		return h.lg.SetValue(h.ids[st.Node], float32(*st.Value))
	case ActionSetMix:
		op, err := node.ParseMixOp(st.Mix)
		if err != nil {
			return err
		}
		return h.lg.SetMixType(h.ids[st.Node], op)
	case ActionConnect:
		out, in, err := parseEdge(st.Edge)
		if err != nil {
			return err
		}
		return h.lg.Connect(h.ids[out.ref], node.SlotID(out.slot), h.ids[in.ref], node.SlotID(in.slot))
	case ActionDisconnect:
		in, err := parseSlotRef(st.Node)
		if err != nil {
			return err
		}
		return h.lg.Disconnect(h.ids[in.ref], node.SlotID(in.slot))
	case ActionRemove:
		return h.lg.RemoveNode(h.ids[st.Node])
	case ActionWatch:
		return h.lg.Watch(h.ids[st.Node])
	case ActionUnwatch:
		h.lg.Unwatch(h.ids[st.Node])
		return nil
	default:
		return fmt.Errorf("unknown step action %q", st.Action)
	}
}

// settle runs every eligible job and records the dispatch order and the
// drained change set on ev.
func (h *Harness) settle(ctx context.Context, ev TraceEvent) (TraceEvent, error) {
	order, err := h.lg.RunPending(ctx)
	if err != nil {
		return ev, fmt.Errorf("run pending: %w", err)
	}
	ev.Dispatched = h.refList(order, false)
	ev.Changed = h.refList(h.lg.ChangedConsume(), true)
	return ev, nil
}

// snapshot records the final state of every node still in the graph.
func (h *Harness) snapshot(result *Result) {
	for _, id := range h.lg.NodeIDs() {
		ref := h.refs[id]
		state, err := h.lg.NodeState(id)
		if err != nil {
			continue
		}
		nr := NodeResult{State: state.String()}
		if cerr := h.lg.NodeError(id); cerr != nil {
			nr.Error = string(node.ErrorCode(cerr))
		}
		if state == engine.Clean {
			n, _ := h.lg.Node(id)
			for slot := range n.Outputs() {
				b, ok := h.lg.Buffer(id, node.SlotID(slot))
				if !ok {
					continue
				}
				px := b.RGBA8()
				nr.Buffers = append(nr.Buffers, b)
				nr.Sizes = append(nr.Sizes, b.Size())
				nr.Pixels = append(nr.Pixels, []int{int(px[0]), int(px[1]), int(px[2]), int(px[3])})
			}
		}
		result.Nodes[ref] = nr
	}
}

// refList maps ids to scenario refs. Sorted lists are ordered by ref.
func (h *Harness) refList(ids []node.ID, sorted bool) []string {
	refs := make([]string, 0, len(ids))
	for _, id := range ids {
		ref, ok := h.refs[id]
		if !ok {
			ref = id.String()
		}
		refs = append(refs, ref)
	}
	if sorted {
		sort.Strings(refs)
	}
	return refs
}

func stepTarget(st Step) string {
	if st.Edge != "" {
		return st.Edge
	}
	return st.Node
}

// errorName maps a mutation error to the name scenarios use in expect_error.
func errorName(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, graph.ErrNotFound):
		return "not_found"
	case errors.Is(err, graph.ErrSlotTypeMismatch):
		return "slot_type_mismatch"
	case errors.Is(err, graph.ErrSlotOccupied):
		return "slot_occupied"
	case errors.Is(err, graph.ErrWouldCreateCycle):
		return "would_create_cycle"
	case errors.Is(err, graph.ErrSlotOutOfRange):
		return "slot_out_of_range"
	case errors.Is(err, graph.ErrKindChange):
		return "kind_change"
	default:
		return "error"
	}
}

// nodeType builds the node variant for a definition. Image paths are
// resolved against dir.
func nodeType(d NodeDef, dir string) (node.Type, error) {
	return d.Spec.Build(func(path string) (*buffer.Buffer, error) {
		if !filepath.IsAbs(path) && dir != "" {
			path = filepath.Join(dir, path)
		}
		return buffer.LoadPNG(path)
	})
}

// resizePolicy returns the policy a definition asks for and whether it set
// one at all. A bare size implies specific_size.
func resizePolicy(d NodeDef) (buffer.Policy, bool, error) {
	name := d.Resize
	if name == "" {
		if len(d.Size) == 0 {
			return buffer.MostPixels(), false, nil
		}
		name = "specific_size"
	}
	p, err := buffer.ParsePolicy(name, d.Slot, d.Size)
	if err != nil {
		return buffer.Policy{}, false, err
	}
	return p, true, nil
}
