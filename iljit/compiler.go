package iljit

import (
	"fmt"

	"github.com/ProtonOS/tier0/abi"
	"github.com/ProtonOS/tier0/codebuffer"
	amd64 "github.com/ProtonOS/tier0/emit/amd64"
	"github.com/ProtonOS/tier0/gcinfo"
	"github.com/ProtonOS/tier0/il"
	"github.com/ProtonOS/tier0/internal/log"
	"github.com/ProtonOS/tier0/unwind"
	"go.uber.org/zap"
)

// State is the per-method compilation state machine of spec.md §4.4:
// New -> Parsing -> Emitting -> PatchingFixups -> EncodingGCInfo ->
// RegisteringUnwind -> Committed. A failure in any state propagates as
// an error; the Tier-0 driver cancels the registry reservation on any
// non-nil error from Compile.
type State int

const (
	StateNew State = iota
	StateParsing
	StateEmitting
	StatePatchingFixups
	StateEncodingGCInfo
	StateRegisteringUnwind
	StateCommitted
)

// Result is everything the Tier-0 driver needs after a successful
// Compile: the emitted code's length, its GCInfo blob, and its unwind
// record, ready for registration (spec.md §4.7 steps 8-9).
type Result struct {
	CodeSize   int
	GCInfo     []byte
	UnwindInfo []byte
	Safepoints []uint32
}

// compiler holds the mutable state of one method's single-pass
// translation. It is never reused across methods (spec.md §5: "scoped
// to a single CompileMethod call; released unconditionally on exit").
type compiler struct {
	sig      Signature
	resolver CallResolver
	em       *amd64.Emitter
	frame    *Frame
	vs       *vstack
	fixups   fixupList
	safept   Safepoints
	state    State

	// frameSize is the prologue's total stack allocation, needed by
	// emitReturn to balance EmitEpilogue against EmitPrologue.
	frameSize int

	// ilOffsetToNative maps an IL body offset to the native offset the
	// instruction starting there was emitted at, for fixup resolution
	// and backward-branch targets.
	ilOffsetToNative map[int]int

	methodID abi.MethodID

	opts Options
}

// Options carries the handful of compile-time tunables the Tier-0
// driver's Config exposes (SPEC_FULL.md §10.3) down into a single
// compilation.
type Options struct {
	// ConservativeInteriorPointers marks every GC-tracked local as an
	// interior pointer in the emitted GCInfo rather than only the ones
	// provably interior, trading GC precision for a simpler, always-safe
	// encoder (spec.md §4.6 "interior" flag).
	ConservativeInteriorPointers bool
}

// Compile translates body (already stripped of its method header) into
// machine code written to buf, using resolver to turn call/newobj
// tokens into native addresses (spec.md §4.4).
func Compile(methodID abi.MethodID, sig Signature, body []byte, buf *codebuffer.Buffer, resolver CallResolver, opts Options) (Result, error) {
	insts, err := il.Decode(body)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInputFault, err)
	}

	c := &compiler{
		sig:              sig,
		resolver:         resolver,
		em:               amd64.New(buf),
		vs:               newVStack(),
		ilOffsetToNative: make(map[int]int),
		methodID:         methodID,
		state:            StateParsing,
		opts:             opts,
	}
	c.frame = NewFrame(len(sig.Locals), sig.ParamCount(), sig.HasThis, sig.NeedsHiddenReturnBuffer())

	c.state = StateEmitting
	frameInfo := c.em.EmitPrologue(c.frame.LocalBytes())
	c.frameSize = frameInfo.FrameSize
	c.em.HomeArguments(c.frame.EffectiveArgCount(), sig.FloatHomeKinds())

	if off, ok := c.frame.HiddenReturnLocalOffset(); ok {
		// The hidden buffer pointer arrives as integer arg 0 (RCX,
		// before this), still live in the physical register since
		// HomeArguments only just spilled it (spec.md §4.4 step 3).
		c.em.Store64(abi.FP, abi.R1, off)
	}

	if err := c.compileBody(insts, buf); err != nil {
		return Result{}, err
	}
	if buf.Overflowed() {
		return Result{}, fmt.Errorf("%w: method %d exceeded code buffer capacity", ErrResourceExhaustion, methodID.Token)
	}

	c.state = StatePatchingFixups
	for _, fx := range c.fixups.pending {
		target, ok := c.ilOffsetToNative[fx.ilTarget]
		if !ok {
			return Result{}, fmt.Errorf("%w: unresolved branch target %d", ErrInputFault, fx.ilTarget)
		}
		buf.PatchRel32To(fx.patchOffset, target)
	}

	c.state = StateEncodingGCInfo
	slots := c.gcSlots()
	gc := gcinfo.Build(buf.Position(), c.safept.Offsets(), slots, true /* hasFrameBase: every method frames through RBP */)

	c.state = StateRegisteringUnwind
	uw, err := c.buildUnwindInfo(frameInfo.FrameSize)
	if err != nil {
		return Result{}, err
	}

	c.state = StateCommitted
	log.L().Debug("iljit: compiled method",
		zap.Uint32("token", methodID.Token),
		zap.Int("codeSize", buf.Position()),
		zap.Int("safepoints", len(c.safept.Offsets())))

	return Result{
		CodeSize:   buf.Position(),
		GCInfo:     gc,
		UnwindInfo: uw,
		Safepoints: c.safept.Offsets(),
	}, nil
}

// gcSlots collects the frame offsets of GC-reference locals, normalized
// the way gcinfo.Build expects (raw byte offset from FP; gcinfo itself
// shifts by pointer size).
func (c *compiler) gcSlots() []gcinfo.Slot {
	var out []gcinfo.Slot
	for i, l := range c.sig.Locals {
		if l.IsGCRef {
			out = append(out, gcinfo.Slot{
				Offset:   LocalOffset(i),
				Interior: c.opts.ConservativeInteriorPointers,
			})
		}
	}
	return out
}

// buildUnwindInfo assembles the UNWIND_INFO this method's prologue
// needs: push rbp, mov rbp,rsp, sub rsp,frameSize (spec.md §4.3
// EmitPrologue, which subtracts the full frameSize).
func (c *compiler) buildUnwindInfo(frameSize int) ([]byte, error) {
	const pushRbpBytes = 1 // 0x55
	const movRbpRspBytes = 3 // REX.W 0x89 ModRM

	alloc := frameSize
	subBytes := 4 // REX.W + 0x83 + ModRM + imm8
	if alloc > 127 {
		subBytes = 7 // REX.W + 0x81 + ModRM + imm32
	}

	pushOff := byte(pushRbpBytes)
	setFPOff := byte(pushRbpBytes + movRbpRspBytes)
	allocOff := byte(int(setFPOff) + subBytes)

	codes := []unwind.Code{
		unwind.PushNonvolCode(pushOff, amd64.RBP),
		unwind.SetFPRegCode(setFPOff),
	}
	if alloc > 0 {
		codes = append(codes, unwind.AllocCode(allocOff, uint32(alloc)))
	}
	return unwind.Encode(unwind.Info{
		FrameRegister: amd64.RBP,
		FrameOffset:   0,
		PrologSize:    allocOff,
		Codes:         codes,
	})
}

