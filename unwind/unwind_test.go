package unwind

import "testing"

func TestEncodeStandardPrologue(t *testing.T) {
	// push rbp (offset 1); mov rbp, rsp (offset 4, set-fpreg); sub rsp, 48 (offset 8).
	info := Info{
		FrameRegister: 5, // RBP
		FrameOffset:   0,
		PrologSize:    8,
		Codes: []Code{
			PushNonvolCode(1, 5),
			SetFPRegCode(4),
			AllocCode(8, 48),
		},
	}
	blob, err := Encode(info)
	if err != nil {
		t.Fatal(err)
	}
	if blob[0] != versionFlagByte {
		t.Fatalf("version/flags byte = %#x, want %#x", blob[0], versionFlagByte)
	}
	if blob[1] != 8 {
		t.Fatalf("prolog size = %d, want 8", blob[1])
	}
	if int(blob[2]) != len(info.Codes) {
		t.Fatalf("count of codes = %d, want %d", blob[2], len(info.Codes))
	}
	if blob[3] != 5 {
		t.Fatalf("frame register nibble = %d, want 5", blob[3]&0xF)
	}
	// Codes are written in reverse prologue order: alloc, set-fpreg, push.
	codesStart := 4
	if Op(blob[codesStart+1]&0xF) != OpAllocSmall {
		t.Fatalf("first code op = %d, want AllocSmall", blob[codesStart+1]&0xF)
	}
}

func TestAllocSmallOpInfoRange(t *testing.T) {
	if _, ok := AllocSmallOpInfo(7); ok {
		t.Fatal("7 is not 8-byte aligned, should be rejected")
	}
	if _, ok := AllocSmallOpInfo(136); ok {
		t.Fatal("136 exceeds the small-alloc range, should be rejected")
	}
	opInfo, ok := AllocSmallOpInfo(128)
	if !ok || opInfo != 15 {
		t.Fatalf("AllocSmallOpInfo(128) = (%d, %v), want (15, true)", opInfo, ok)
	}
}

func TestAllocCodeChoosesLargeFormAboveSmallRange(t *testing.T) {
	c := AllocCode(0, 4096)
	if c.Op != OpAllocLarge {
		t.Fatalf("expected AllocLarge for a 4096-byte frame, got %v", c.Op)
	}
}

func TestEncodeRejectsOversizedFrameRegisterNibble(t *testing.T) {
	_, err := Encode(Info{FrameRegister: 0x10})
	if err == nil {
		t.Fatal("expected an error for an out-of-range frame register nibble")
	}
}

func TestEncodePadsOddCodeCountToEven(t *testing.T) {
	info := Info{Codes: []Code{PushNonvolCode(1, 5)}}
	blob, err := Encode(info)
	if err != nil {
		t.Fatal(err)
	}
	// 4-byte header + 1 real code (2 bytes) + 1 padding code (2 bytes).
	if len(blob) != 8 {
		t.Fatalf("len(blob) = %d, want 8", len(blob))
	}
}
