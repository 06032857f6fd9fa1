package il

import (
	"encoding/binary"
	"fmt"
)

// Header flag bits, mirroring the ECMA-335 tiny/fat method-header
// encoding spec.md §4.7 step 4 names.
const (
	headerFormatMask = 0x03
	tinyFormat       = 0x02
	fatFormat        = 0x03
	flagMoreSects    = 0x08
)

// MethodHeader is the decoded method-body header (spec.md §4.7 step 4):
// "extracting max_stack, code_size, local_var_sig_token, has_more_sections".
type MethodHeader struct {
	MaxStack         int
	CodeSize         int
	LocalVarSigToken Token
	HasMoreSections  bool

	// bodyOffset is where the instruction stream begins within the
	// buffer ParseHeader was given.
	bodyOffset int
}

// Body returns the raw instruction-stream bytes following the header,
// given the same buffer ParseHeader consumed.
func (h MethodHeader) Body(buf []byte) []byte {
	return buf[h.bodyOffset : h.bodyOffset+h.CodeSize]
}

// ParseHeader decodes a tiny or fat method header from the start of buf
// (spec.md §4.7 step 4). Tiny headers are a single byte encoding
// code-size <= 63 with no locals and no EH; fat headers are 12 bytes.
func ParseHeader(buf []byte) (MethodHeader, error) {
	if len(buf) == 0 {
		return MethodHeader{}, fmt.Errorf("il: empty method body")
	}
	first := buf[0]
	switch first & headerFormatMask {
	case tinyFormat:
		return MethodHeader{
			MaxStack:   8,
			CodeSize:   int(first >> 2),
			bodyOffset: 1,
		}, nil
	case fatFormat:
		if len(buf) < 12 {
			return MethodHeader{}, fmt.Errorf("il: truncated fat header")
		}
		// This core's own 12-byte fat layout (spec.md §4.7 step 4 names
		// the fields a fat header carries, not their exact byte
		// offsets): flags(1) | headerSize(1, reserved) | maxStack(2) |
		// codeSize(4) | localVarSigToken(4).
		flags := buf[0]
		maxStack := binary.LittleEndian.Uint16(buf[2:4])
		codeSize := binary.LittleEndian.Uint32(buf[4:8])
		localSig := binary.LittleEndian.Uint32(buf[8:12])
		return MethodHeader{
			MaxStack:         int(maxStack),
			CodeSize:         int(codeSize),
			LocalVarSigToken: DecodeToken(localSig),
			HasMoreSections:  flags&flagMoreSects != 0,
			bodyOffset:       12,
		}, nil
	default:
		return MethodHeader{}, fmt.Errorf("il: unrecognized method header format byte 0x%02x", first)
	}
}

// EHClauseKind classifies an exception-handling clause; funclet
// emission is outside this core's scope (spec.md §9). EHClauseKind and
// EHClause only describe a clause's shape: nothing parses EH sections,
// and the driver rejects any method whose header sets HasMoreSections
// rather than silently miscompiling it.
type EHClauseKind int

const (
	EHCatch EHClauseKind = iota
	EHFilter
	EHFinally
	EHFault
)

// EHClause is one entry of a method's exception-handling table.
type EHClause struct {
	Kind       EHClauseKind
	TryOffset  int
	TryLength  int
	HandlerOff int
	HandlerLen int
	CatchType  Token
}
