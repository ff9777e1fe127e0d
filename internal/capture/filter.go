package capture

import "golang.org/x/net/bpf"

const etherTypeARP = 0x0806

// arpFilter assembles a classic BPF program that accepts untagged ARP
// frames up to snapLen bytes.
func arpFilter(snapLen int) ([]bpf.RawInstruction, error) {
	return bpf.Assemble([]bpf.Instruction{
		bpf.LoadAbsolute{Off: 12, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: etherTypeARP, SkipFalse: 1},
		bpf.RetConstant{Val: uint32(snapLen)},
		bpf.RetConstant{Val: 0},
	})
}
