package il

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrTruncated is an InputFault (spec.md §7): the instruction stream
// ended mid-operand.
var ErrTruncated = errors.New("il: truncated instruction stream")

// operandKind classifies how many bytes follow an opcode byte and how
// to interpret them.
type operandKind int

const (
	operandNone operandKind = iota
	operandIndex            // uint16 local/arg slot
	operandI4               // int32 immediate
	operandI8               // int64 immediate
	operandR4               // float32 immediate
	operandR8               // float64 immediate
	operandToken            // uint8 table id + uint32 rid
	operandBranch           // int32 absolute byte offset
)

func kindOf(op Opcode) operandKind {
	switch op {
	case LdcI4:
		return operandI4
	case LdcI8:
		return operandI8
	case LdcR4:
		return operandR4
	case LdcR8:
		return operandR8
	case Ldloc, Stloc, Ldarg, Starg, Ldloca, Ldarga:
		return operandIndex
	case Ldflda, Ldfld, Stfld, Call, Callvirt, Newobj:
		return operandToken
	case Br, Brtrue, Brfalse, Beq, Bne, Blt, Ble, Bgt, Bge:
		return operandBranch
	default:
		return operandNone
	}
}

// Decode parses a flat instruction stream into a sequence of
// Instructions, each carrying its own byte offset for the branch-fixup
// pass (spec.md §4.4). The wire format is one opcode byte followed by a
// fixed-width operand selected by kindOf; ldflda/ldfld/stfld additionally
// carry a trailing uint16 ElemSize, the field's byte width.
func Decode(body []byte) ([]Instruction, error) {
	var out []Instruction
	pos := 0
	for pos < len(body) {
		start := pos
		op := Opcode(body[pos])
		pos++
		inst := Instruction{Opcode: op, Offset: start}

		switch kindOf(op) {
		case operandNone:
		case operandIndex:
			if pos+2 > len(body) {
				return nil, fmt.Errorf("%w: index operand at %d", ErrTruncated, start)
			}
			inst.Index = int(binary.LittleEndian.Uint16(body[pos:]))
			pos += 2
		case operandI4:
			if pos+4 > len(body) {
				return nil, fmt.Errorf("%w: i4 operand at %d", ErrTruncated, start)
			}
			inst.Int = int64(int32(binary.LittleEndian.Uint32(body[pos:])))
			pos += 4
		case operandI8:
			if pos+8 > len(body) {
				return nil, fmt.Errorf("%w: i8 operand at %d", ErrTruncated, start)
			}
			inst.Int = int64(binary.LittleEndian.Uint64(body[pos:]))
			pos += 8
		case operandR4:
			if pos+4 > len(body) {
				return nil, fmt.Errorf("%w: r4 operand at %d", ErrTruncated, start)
			}
			bits := binary.LittleEndian.Uint32(body[pos:])
			inst.Float = float64(math.Float32frombits(bits))
			pos += 4
		case operandR8:
			if pos+8 > len(body) {
				return nil, fmt.Errorf("%w: r8 operand at %d", ErrTruncated, start)
			}
			bits := binary.LittleEndian.Uint64(body[pos:])
			inst.Float = math.Float64frombits(bits)
			pos += 8
		case operandToken:
			if pos+5 > len(body) {
				return nil, fmt.Errorf("%w: token operand at %d", ErrTruncated, start)
			}
			inst.Tok = Token{Table: TableID(body[pos]), RID: binary.LittleEndian.Uint32(body[pos+1:])}
			pos += 5
			if op == Ldflda || op == Ldfld || op == Stfld {
				if pos+2 > len(body) {
					return nil, fmt.Errorf("%w: field size operand at %d", ErrTruncated, start)
				}
				inst.ElemSize = int(binary.LittleEndian.Uint16(body[pos:]))
				pos += 2
			}
		case operandBranch:
			if pos+4 > len(body) {
				return nil, fmt.Errorf("%w: branch operand at %d", ErrTruncated, start)
			}
			inst.Target = int(int32(binary.LittleEndian.Uint32(body[pos:])))
			pos += 4
		}
		out = append(out, inst)
	}
	return out, nil
}
