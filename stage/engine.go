package stage

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	"github.com/cwsmith/redev/types"
)

// engine is one rank's session on a staged dataset.
type engine struct {
	t       *Transport
	name    string
	mode    types.Mode
	rank    int
	writers int
	gen     uint64

	step   int64 // -1 before the first step
	inStep bool
	closed bool

	// write side; definitions persist across steps
	defs map[string]types.Variable
	puts map[string]*block

	// read side, reset on every BeginStep
	vars  map[string]types.Variable
	infos map[string][]types.BlockInfo
	sel   map[string]int
	gets  []deferredGet
}

type deferredGet struct {
	name    string
	kind    types.Kind
	blockID int
	decode  func([]byte) error
}

// Compile-time assertion that engine implements types.Engine.
var _ types.Engine = (*engine)(nil)

func (e *engine) headerKey() string {
	return e.name + ".header"
}

func (e *engine) stepPrefix(step int64) string {
	return e.name + "." + strconv.FormatUint(e.gen, 10) + "." + strconv.FormatInt(step, 10)
}

func (e *engine) blockKey(step int64, name string, rank int) string {
	return e.stepPrefix(step) + ".var." + name + "." + strconv.Itoa(rank)
}

func (e *engine) commitKey(step int64, rank int) string {
	return e.stepPrefix(step) + ".commit." + strconv.Itoa(rank)
}

func (e *engine) Mode() types.Mode {
	return e.mode
}

func (e *engine) CurrentStep() int64 {
	return e.step
}

func (e *engine) checkOpen(op string) error {
	if e.closed {
		return fmt.Errorf("%w: %s on closed dataset %s", types.ErrTransport, op, e.name)
	}

	return nil
}

func (e *engine) checkStep(op string, mode types.Mode) error {
	if err := e.checkOpen(op); err != nil {
		return err
	}
	if e.mode != mode {
		return fmt.Errorf("%w: %s requires %s mode, dataset %s is open for %s",
			types.ErrConfiguration, op, mode, e.name, e.mode)
	}
	if !e.inStep {
		return fmt.Errorf("%w: %s outside a step", types.ErrConfiguration, op)
	}

	return nil
}

// BeginStep starts the next step. In read mode it blocks until every writer
// rank has committed the step, then merges their manifests.
func (e *engine) BeginStep(ctx context.Context) error {
	if err := e.checkOpen("begin step"); err != nil {
		return err
	}
	if e.inStep {
		return fmt.Errorf("%w: step %d already in progress", types.ErrConfiguration, e.step)
	}

	next := e.step + 1
	if e.mode == types.ModeRead {
		if err := e.collect(ctx, next); err != nil {
			return err
		}
	} else {
		clear(e.puts)
	}

	e.step, e.inStep = next, true

	return nil
}

// collect waits for and merges the commit manifests of step.
func (e *engine) collect(ctx context.Context, step int64) error {
	clear(e.vars)
	clear(e.infos)
	clear(e.sel)
	e.gets = e.gets[:0]

	for rank := range e.writers {
		key := e.commitKey(step, rank)
		raw, err := e.t.store.Wait(ctx, key)
		if err != nil {
			return fmt.Errorf("%w: step %d of %s: %w", types.ErrTransport, step, e.name, err)
		}

		var m manifest
		if _, err := m.UnmarshalMsg(raw); err != nil {
			return fmt.Errorf("%w: decode %s: %w", types.ErrTransport, key, err)
		}

		for _, v := range m.Vars {
			if prev, ok := e.vars[v.Name]; ok && prev.Kind != v.Kind {
				return fmt.Errorf("%w: variable %s is %s on one writer and %s on rank %d",
					types.ErrTransport, v.Name, prev.Kind, v.Kind, rank)
			}
			e.vars[v.Name] = v
			e.infos[v.Name] = append(e.infos[v.Name], types.BlockInfo{BlockID: rank, Count: v.Count})
		}
	}

	e.t.logger.Debug("step available", "dataset", e.name, "step", step, "variables", len(e.vars))

	return nil
}

// EndStep publishes buffered blocks and the commit manifest (write mode), or
// performs outstanding gets (read mode).
func (e *engine) EndStep(ctx context.Context) error {
	if err := e.checkOpen("end step"); err != nil {
		return err
	}
	if !e.inStep {
		return fmt.Errorf("%w: end step outside a step", types.ErrConfiguration)
	}

	var err error
	if e.mode == types.ModeWrite {
		err = e.commit(ctx)
	} else {
		err = e.PerformGets(ctx)
	}
	e.inStep = false

	return err
}

func (e *engine) commit(ctx context.Context) error {
	m := manifest{Rank: e.rank, Step: e.step}

	names := make([]string, 0, len(e.puts))
	for name := range e.puts {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		b := e.puts[name]
		raw := b.MarshalMsg(nil)
		if err := e.t.store.Put(ctx, e.blockKey(e.step, name, e.rank), raw); err != nil {
			return fmt.Errorf("%w: put %s: %w", types.ErrTransport, name, err)
		}
		e.t.metrics.RecordBlockBytes("put", len(raw))
		m.Vars = append(m.Vars, types.Variable{Name: name, Kind: b.Kind, Count: b.Count})
	}

	// The manifest goes last: readers treat it as the step barrier.
	if err := e.t.store.Put(ctx, e.commitKey(e.step, e.rank), m.MarshalMsg(nil)); err != nil {
		return fmt.Errorf("%w: commit step %d: %w", types.ErrTransport, e.step, err)
	}
	clear(e.puts)

	e.t.logger.Debug("step committed", "dataset", e.name, "step", e.step, "rank", e.rank, "blocks", len(names))

	return nil
}

// DefineVariable declares a variable. Redefining with the same shape is a no-op.
func (e *engine) DefineVariable(name string, kind types.Kind, count int) error {
	if err := e.checkOpen("define variable"); err != nil {
		return err
	}
	if e.mode != types.ModeWrite {
		return fmt.Errorf("%w: define %s on a dataset open for read", types.ErrConfiguration, name)
	}
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: invalid variable name %q", types.ErrConfiguration, name)
	}
	if kind == types.KindInvalid || kind > types.KindString {
		return fmt.Errorf("%w: variable %s has invalid kind %d", types.ErrConfiguration, name, kind)
	}
	if count < 0 {
		return fmt.Errorf("%w: variable %s has negative count %d", types.ErrConfiguration, name, count)
	}

	v := types.Variable{Name: name, Kind: kind, Count: count}
	if prev, ok := e.defs[name]; ok && prev != v {
		return fmt.Errorf("%w: variable %s redefined from %s[%d] to %s[%d]",
			types.ErrConfiguration, name, prev.Kind, prev.Count, kind, count)
	}
	e.defs[name] = v

	return nil
}

// InquireVariable looks up a variable: its definition in write mode, or its
// presence in the current step in read mode.
func (e *engine) InquireVariable(name string) (types.Variable, bool) {
	if e.mode == types.ModeWrite {
		v, ok := e.defs[name]
		return v, ok
	}
	v, ok := e.vars[name]

	return v, ok
}

// PutBlock buffers this rank's block of a defined variable until EndStep.
func (e *engine) PutBlock(name string, kind types.Kind, count int, payload []byte) error {
	if err := e.checkStep("put "+name, types.ModeWrite); err != nil {
		return err
	}

	def, ok := e.defs[name]
	if !ok {
		return fmt.Errorf("%w: put of undefined variable %s", types.ErrConfiguration, name)
	}
	if def.Kind != kind {
		return fmt.Errorf("%w: put %s elements into %s variable %s", types.ErrConfiguration, kind, def.Kind, name)
	}
	if def.Count != count {
		return fmt.Errorf("%w: put %d elements into variable %s of %d", types.ErrConfiguration, count, name, def.Count)
	}

	b, err := newBlock(kind, count, e.rank, payload, e.t.compress)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %w", types.ErrTransport, name, err)
	}
	e.puts[name] = b

	return nil
}

// BlocksInfo lists the blocks of name in the current step.
func (e *engine) BlocksInfo(name string) ([]types.BlockInfo, error) {
	if err := e.checkStep("blocks info "+name, types.ModeRead); err != nil {
		return nil, err
	}

	infos, ok := e.infos[name]
	if !ok {
		return nil, fmt.Errorf("%w: variable %s not in step %d", types.ErrTransport, name, e.step)
	}

	return slices.Clone(infos), nil
}

// SetBlockSelection selects the writer block read by the next GetBlock.
func (e *engine) SetBlockSelection(name string, blockID int) error {
	infos, err := e.BlocksInfo(name)
	if err != nil {
		return err
	}

	found := slices.ContainsFunc(infos, func(bi types.BlockInfo) bool { return bi.BlockID == blockID })
	if !found {
		return fmt.Errorf("%w: variable %s has no block %d", types.ErrTransport, name, blockID)
	}
	e.sel[name] = blockID

	return nil
}

// GetBlock schedules a read of the selected block. Without a selection, a
// variable with a single block reads that block.
func (e *engine) GetBlock(name string, kind types.Kind, decode func(payload []byte) error) error {
	infos, err := e.BlocksInfo(name)
	if err != nil {
		return err
	}
	if v := e.vars[name]; v.Kind != kind {
		return fmt.Errorf("%w: get %s elements from %s variable %s", types.ErrTransport, kind, v.Kind, name)
	}

	blockID, ok := e.sel[name]
	if !ok {
		if len(infos) != 1 {
			return fmt.Errorf("%w: variable %s has %d blocks and none selected", types.ErrConfiguration, name, len(infos))
		}
		blockID = infos[0].BlockID
	}

	e.gets = append(e.gets, deferredGet{name: name, kind: kind, blockID: blockID, decode: decode})

	return nil
}

// PerformGets fetches, verifies and decodes every scheduled block in order.
func (e *engine) PerformGets(ctx context.Context) error {
	if err := e.checkOpen("perform gets"); err != nil {
		return err
	}

	// A decode callback may schedule further gets; they start a fresh list.
	gets := e.gets
	e.gets = nil

	for _, g := range gets {
		key := e.blockKey(e.step, g.name, g.blockID)
		raw, err := e.t.store.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("%w: get %s: %w", types.ErrTransport, g.name, err)
		}
		e.t.metrics.RecordBlockBytes("get", len(raw))

		var b block
		if _, err := b.UnmarshalMsg(raw); err != nil {
			return fmt.Errorf("%w: decode %s: %w", types.ErrTransport, key, err)
		}
		if b.Kind != g.kind {
			return fmt.Errorf("%w: block %s holds %s, expected %s", types.ErrTransport, key, b.Kind, g.kind)
		}

		payload, err := b.payload()
		if err != nil {
			return fmt.Errorf("get %s: %w", g.name, err)
		}
		if err := g.decode(payload); err != nil {
			return fmt.Errorf("%w: decode %s: %w", types.ErrTransport, g.name, err)
		}
	}

	return nil
}

// Close ends an open write step and releases the session. Closing twice is a no-op.
func (e *engine) Close(ctx context.Context) error {
	if e.closed {
		return nil
	}

	var err error
	if e.inStep && e.mode == types.ModeWrite {
		err = e.EndStep(ctx)
	}
	e.closed, e.inStep = true, false
	e.gets = nil

	e.t.logger.Debug("dataset closed", "dataset", e.name, "mode", e.mode.String(), "rank", e.rank, "steps", e.step+1)

	return err
}
