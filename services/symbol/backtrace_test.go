package symbol_test

import (
	"testing"

	"northport/services/symbol"
)

func TestBacktraceWithNilRepoUsesRawAddresses(t *testing.T) {
	p := symbol.Backtrace(nil, []symbol.Frame{{Addr: 0xdeadbeef}})

	if len(p.Sample) != 1 || len(p.Sample[0].Location) != 1 {
		t.Fatalf("Backtrace profile has %d samples, want 1 with 1 location", len(p.Sample))
	}
	fn := p.Sample[0].Location[0].Line[0].Function
	if fn.Name != "0xdeadbeef" {
		t.Fatalf("Backtrace with nil repo: function name = %q, want raw address", fn.Name)
	}
}

func TestBacktracePreservesFrameOrder(t *testing.T) {
	frames := []symbol.Frame{{Addr: 1}, {Addr: 2}, {Addr: 3}}
	p := symbol.Backtrace(nil, frames)

	if len(p.Sample[0].Location) != 3 {
		t.Fatalf("Backtrace location count = %d, want 3", len(p.Sample[0].Location))
	}
	for i, loc := range p.Sample[0].Location {
		if loc.Address != uint64(frames[i].Addr) {
			t.Fatalf("Backtrace location %d address = %d, want %d", i, loc.Address, frames[i].Addr)
		}
	}
}
