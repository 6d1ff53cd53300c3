package server

import (
	"bytes"
	"context"
	"slices"
	"strconv"

	"github.com/gofiber/fiber/v3"

	"github.com/roach88/texgraph/internal/buffer"
	"github.com/roach88/texgraph/internal/graph"
	"github.com/roach88/texgraph/internal/node"
)

type slotView struct {
	Slot int    `json:"slot"`
	Name string `json:"name"`
	Type string `json:"type"`
	// Size is set for output slots holding a clean buffer.
	Size string `json:"size,omitempty"`
}

type nodeView struct {
	ID node.ID `json:"id"`
	node.Spec
	State   string     `json:"state"`
	Error   string     `json:"error,omitempty"`
	Code    string     `json:"code,omitempty"`
	Resize  string     `json:"resize"`
	Filter  string     `json:"filter"`
	Watched bool       `json:"watched"`
	Inputs  []slotView `json:"inputs"`
	Outputs []slotView `json:"outputs"`
}

type edgeView struct {
	From     node.ID `json:"from"`
	FromSlot int     `json:"from_slot"`
	To       node.ID `json:"to"`
	ToSlot   int     `json:"to_slot"`
}

type createNodeRequest struct {
	node.Spec
	Resize string `json:"resize,omitempty"`
	Slot   int    `json:"slot,omitempty"`
	Size   []int  `json:"size,omitempty"`
	Filter string `json:"filter,omitempty"`
	Watch  bool   `json:"watch,omitempty"`
}

type resizeRequest struct {
	Resize string `json:"resize"`
	Slot   int    `json:"slot,omitempty"`
	Size   []int  `json:"size,omitempty"`
	Filter string `json:"filter,omitempty"`
}

type numberRequest struct {
	Value *float64 `json:"value"`
}

type settingsRequest struct {
	AutoUpdate *bool `json:"auto_update,omitempty"`
	UseCache   *bool `json:"use_cache,omitempty"`
}

func (s *Server) view(id node.ID) (nodeView, error) {
	n, err := s.lg.Node(id)
	if err != nil {
		return nodeView{}, err
	}
	state, err := s.lg.NodeState(id)
	if err != nil {
		return nodeView{}, err
	}
	v := nodeView{
		ID:      id,
		Spec:    node.SpecOf(n.Type),
		State:   state.String(),
		Resize:  n.Resize.String(),
		Filter:  n.Filter.String(),
		Watched: slices.Contains(s.lg.Watched(), id),
	}
	if cerr := s.lg.NodeError(id); cerr != nil {
		v.Error = cerr.Error()
		v.Code = string(node.ErrorCode(cerr))
	}
	for _, sl := range n.Inputs() {
		v.Inputs = append(v.Inputs, slotView{Slot: int(sl.ID), Name: sl.Name, Type: sl.Type.String()})
	}
	for _, sl := range n.Outputs() {
		sv := slotView{Slot: int(sl.ID), Name: sl.Name, Type: sl.Type.String()}
		if size, ok := s.lg.SlotDataSize(id, sl.ID); ok {
			sv.Size = size.String()
		}
		v.Outputs = append(v.Outputs, sv)
	}
	return v, nil
}

func (s *Server) nodeID(c fiber.Ctx) (node.ID, error) {
	return node.ParseID(c.Params("id"))
}

func slotParam(c fiber.Ctx) (node.SlotID, error) {
	n, err := strconv.Atoi(c.Params("slot"))
	if err != nil || n < 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid slot "+c.Params("slot"))
	}
	return node.SlotID(n), nil
}

func (s *Server) listNodes(c fiber.Ctx) error {
	ids := s.lg.NodeIDs()
	views := make([]nodeView, 0, len(ids))
	for _, id := range ids {
		v, err := s.view(id)
		if err != nil {
			// removed between NodeIDs and view
			continue
		}
		views = append(views, v)
	}
	return c.JSON(views)
}

func (s *Server) getGraph(c fiber.Ctx) error {
	edges := s.lg.Edges()
	out := make([]edgeView, 0, len(edges))
	for _, e := range edges {
		out = append(out, edgeView{
			From:     e.Output.Node,
			FromSlot: int(e.Output.Slot),
			To:       e.Input.Node,
			ToSlot:   int(e.Input.Slot),
		})
	}
	return c.JSON(fiber.Map{
		"nodes":   s.lg.NodeIDs(),
		"outputs": s.lg.OutputIDs(),
		"watched": s.lg.Watched(),
		"edges":   out,
	})
}

func (s *Server) getNode(c fiber.Ctx) error {
	id, err := s.nodeID(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	v, err := s.view(id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(v)
}

func (s *Server) createNode(c fiber.Ctx) error {
	var req createNodeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	t, err := req.Spec.Build(s.loadImage)
	if err != nil {
		return badRequest(c, err.Error())
	}
	var policy *buffer.Policy
	if req.Resize != "" {
		p, err := buffer.ParsePolicy(req.Resize, req.Slot, req.Size)
		if err != nil {
			return badRequest(c, err.Error())
		}
		policy = &p
	}
	var filter *buffer.Filter
	if req.Filter != "" {
		f, err := buffer.ParseFilter(req.Filter)
		if err != nil {
			return badRequest(c, err.Error())
		}
		filter = &f
	}

	id, err := s.lg.AddNode(t)
	if err != nil {
		return s.fail(c, err)
	}
	if policy != nil {
		if err := s.lg.SetResizePolicy(id, *policy); err != nil {
			return s.fail(c, err)
		}
	}
	if filter != nil {
		if err := s.lg.SetResizeFilter(id, *filter); err != nil {
			return s.fail(c, err)
		}
	}
	if req.Watch {
		if err := s.lg.Watch(id); err != nil {
			return s.fail(c, err)
		}
	}
	s.logger.Debug("node created", "node", id, "kind", t.Kind)

	v, err := s.view(id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(v)
}

func (s *Server) deleteNode(c fiber.Ctx) error {
	id, err := s.nodeID(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	if err := s.lg.RemoveNode(id); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// number reads {"value": x} and applies set to the node in the path.
func (s *Server) number(c fiber.Ctx, set func(node.ID, float32) error) error {
	id, err := s.nodeID(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req numberRequest
	if err := c.Bind().JSON(&req); err != nil || req.Value == nil {
		return badRequest(c, "body must be {\"value\": number}")
	}
	if err := set(id, float32(*req.Value)); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) putValue(c fiber.Ctx) error {
	return s.number(c, s.lg.SetValue)
}

func (s *Server) putStrength(c fiber.Ctx) error {
	return s.number(c, s.lg.SetStrength)
}

func (s *Server) putMix(c fiber.Ctx) error {
	id, err := s.nodeID(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req struct {
		Mix string `json:"mix"`
	}
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	op, err := node.ParseMixOp(req.Mix)
	if err != nil {
		return badRequest(c, err.Error())
	}
	if err := s.lg.SetMixType(id, op); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) putResize(c fiber.Ctx) error {
	id, err := s.nodeID(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req resizeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if req.Resize != "" {
		p, err := buffer.ParsePolicy(req.Resize, req.Slot, req.Size)
		if err != nil {
			return badRequest(c, err.Error())
		}
		if err := s.lg.SetResizePolicy(id, p); err != nil {
			return s.fail(c, err)
		}
	}
	if req.Filter != "" {
		f, err := buffer.ParseFilter(req.Filter)
		if err != nil {
			return badRequest(c, err.Error())
		}
		if err := s.lg.SetResizeFilter(id, f); err != nil {
			return s.fail(c, err)
		}
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) watch(c fiber.Ctx) error {
	id, err := s.nodeID(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	if err := s.lg.Watch(id); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) unwatch(c fiber.Ctx) error {
	id, err := s.nodeID(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	s.lg.Unwatch(id)
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) createEdge(c fiber.Ctx) error {
	var req edgeView
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	err := s.lg.Connect(req.From, node.SlotID(req.FromSlot), req.To, node.SlotID(req.ToSlot))
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(req)
}

func (s *Server) disconnect(c fiber.Ctx) error {
	id, err := s.nodeID(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	slot, err := slotParam(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	if err := s.lg.Disconnect(id, slot); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) postProcess(c fiber.Ctx) error {
	if err := s.lg.Process(); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(fiber.StatusAccepted)
}

func (s *Server) postMaterialize(c fiber.Ctx) error {
	var req struct {
		Nodes []node.ID `json:"nodes"`
	}
	if err := c.Bind().JSON(&req); err != nil || len(req.Nodes) == 0 {
		return badRequest(c, "body must be {\"nodes\": [id, ...]}")
	}
	if err := s.lg.Materialize(req.Nodes...); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(fiber.StatusAccepted)
}

func (s *Server) putSettings(c fiber.Ctx) error {
	var req settingsRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if req.AutoUpdate != nil {
		s.lg.SetAutoUpdate(*req.AutoUpdate)
	}
	if req.UseCache != nil {
		s.lg.SetUseCache(*req.UseCache)
	}
	return c.JSON(fiber.Map{"auto_update": s.lg.AutoUpdate(), "use_cache": s.lg.UseCache()})
}

// getChanges drains the change set.
func (s *Server) getChanges(c fiber.Ctx) error {
	changed := s.lg.ChangedConsume()
	if changed == nil {
		changed = []node.ID{}
	}
	return c.JSON(fiber.Map{"changed": changed})
}

func (s *Server) getStats(c fiber.Ctx) error {
	body := fiber.Map{"engine": s.lg.Stats()}
	if s.cache != nil {
		st, err := s.cache.Stats(c.Context())
		if err != nil {
			return s.fail(c, err)
		}
		body["cache"] = st
	}
	return c.JSON(body)
}

// getSlot waits for the node to be Clean and returns one output as PNG.
func (s *Server) getSlot(c fiber.Ctx) error {
	id, err := s.nodeID(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	slot, err := slotParam(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	ctx, cancel := context.WithTimeout(c.Context(), s.readTimeout)
	defer cancel()
	snap, err := s.lg.AwaitCleanRead(ctx, id)
	if err != nil {
		return s.fail(c, err)
	}
	if int(slot) >= len(snap.Buffers) || snap.Buffers[slot] == nil {
		return s.fail(c, graph.ErrSlotOutOfRange)
	}

	var buf bytes.Buffer
	if err := snap.Buffers[slot].EncodePNG(&buf); err != nil {
		return s.fail(c, err)
	}
	c.Set(fiber.HeaderContentType, "image/png")
	return c.Send(buf.Bytes())
}
