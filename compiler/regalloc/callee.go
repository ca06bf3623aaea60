package regalloc

import (
	"github.com/slowlang/tiler/compiler/asm"
)

// SaveCalleeSaved surrounds body with moves of callee-saved registers
// to and from their temps. The allocator removes the moves of registers
// nobody uses.
func SaveCalleeSaved(body []asm.Instr) []asm.Instr {
	l := make([]asm.Instr, 0, len(body)+2*len(asm.CalleeSaved)+1)

	for _, r := range asm.CalleeSaved {
		l = append(l, asm.Mov{Dst: asm.CalleeSavedTemp(r), Src: r})
	}

	l = append(l, body...)

	for _, r := range asm.CalleeSaved {
		l = append(l, asm.Mov{Dst: r, Src: asm.CalleeSavedTemp(r)})
	}

	return append(l, asm.Comment{Text: "Dummy end of program."})
}
