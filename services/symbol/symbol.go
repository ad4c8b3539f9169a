// Package symbol is the kernel image's symbol store, loading ELF symbol
// tables into a refcounted repo and powering panic back-traces. Grounded
// on original_source/kernel/include/services/SymbolStore.h's
// SymbolRepo/SymbolView (a refcounted, ranged symbol table), rendering a
// back-trace as a github.com/google/pprof/profile.Profile sample instead
// of inventing a bespoke text layout.
package symbol

import (
	"debug/elf"
	"fmt"
	"sort"
	"sync"

	"github.com/google/pprof/profile"
	"github.com/ianlancetaylor/demangle"
)

// Symbol is one named, ranged entry in a Repo.
type Symbol struct {
	Base   uintptr
	Length uint64
	Name   string // demangled where applicable
	Raw    string
}

// Repo is one loaded image's symbol table: a refcounted, name+address
// searchable set of function symbols. The
// kernel image's table is loaded by LoadKernelSymbols, which kernel.Boot
// does not call; driver images get their own Repo from Load.
type Repo struct {
	mu      sync.RWMutex
	name    string
	base    uintptr
	length  uint64
	byAddr  []Symbol // sorted by Base
	byName  map[string]*Symbol
	refs    int
}

// Load parses f's ELF symbol table (STT_FUNC entries only) into a new
// Repo named name.
func Load(name string, f *elf.File) (*Repo, error) {
	syms, err := f.Symbols()
	if err != nil && err != elf.ErrNoSymbols {
		return nil, err
	}
	return buildRepo(name, syms), nil
}

// buildRepo is Load's ELF-independent half, split out so tests can feed
// it hand-built elf.Symbol values instead of a real ELF file.
func buildRepo(name string, syms []elf.Symbol) *Repo {
	r := &Repo{name: name, refs: 1, byName: make(map[string]*Symbol)}
	for _, s := range syms {
		if elf.ST_TYPE(s.Info) != elf.STT_FUNC || s.Value == 0 {
			continue
		}
		demangled, err := demangle.ToString(s.Name, demangle.NoParams)
		if err != nil {
			demangled = s.Name
		}
		r.byAddr = append(r.byAddr, Symbol{Base: uintptr(s.Value), Length: s.Size, Name: demangled, Raw: s.Name})
	}
	sort.Slice(r.byAddr, func(i, j int) bool { return r.byAddr[i].Base < r.byAddr[j].Base })
	for i := range r.byAddr {
		r.byName[r.byAddr[i].Name] = &r.byAddr[i]
		r.byName[r.byAddr[i].Raw] = &r.byAddr[i]
	}
	if n := len(r.byAddr); n > 0 {
		last := r.byAddr[n-1]
		r.base = r.byAddr[0].Base
		r.length = uint64(last.Base-r.byAddr[0].Base) + last.Length
	}
	return r
}

// LoadKernelSymbols opens the kernel image at path and loads its symbol
// table into a refcounted repo.
func LoadKernelSymbols(path string) (*Repo, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(path, f)
}

// Ref bumps the repo's refcount; Unref drops it, reporting whether it
// reached zero -- a driver image's symbols outlive the driver only while
// another loaded driver still shares the same underlying image.
func (r *Repo) Ref() {
	r.mu.Lock()
	r.refs++
	r.mu.Unlock()
}

func (r *Repo) Unref() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refs--
	return r.refs <= 0
}

// FindByAddr returns the symbol containing addr, if any.
func (r *Repo) FindByAddr(addr uintptr) (Symbol, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := sort.Search(len(r.byAddr), func(i int) bool { return r.byAddr[i].Base > addr }) - 1
	if i < 0 {
		return Symbol{}, false
	}
	s := r.byAddr[i]
	if s.Length != 0 && addr >= s.Base+uintptr(s.Length) {
		return Symbol{}, false
	}
	return s, true
}

// FindByName returns the symbol named name, demangled or raw.
func (r *Repo) FindByName(name string) (Symbol, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byName[name]
	if !ok {
		return Symbol{}, false
	}
	return *s, true
}

// Frame is one return address captured in a panic back-trace.
type Frame struct {
	Addr uintptr
}

// Backtrace renders frames into a pprof profile containing a single
// sample whose stack is the back-trace, resolved against repo. Frames
// with no matching symbol are rendered with their raw address as the
// function name.
func Backtrace(repo *Repo, frames []Frame) *profile.Profile {
	p := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "panic", Unit: "count"}},
		PeriodType: &profile.ValueType{Type: "panic", Unit: "count"},
		Period:     1,
	}

	sample := &profile.Sample{Value: []int64{1}}
	nextID := uint64(1)
	for _, fr := range frames {
		name := formatAddr(fr.Addr)
		if repo != nil {
			if s, ok := repo.FindByAddr(fr.Addr); ok {
				name = s.Name
			}
		}
		fn := &profile.Function{ID: nextID, Name: name}
		loc := &profile.Location{ID: nextID, Address: uint64(fr.Addr), Line: []profile.Line{{Function: fn}}}
		p.Function = append(p.Function, fn)
		p.Location = append(p.Location, loc)
		sample.Location = append(sample.Location, loc)
		nextID++
	}
	p.Sample = append(p.Sample, sample)
	return p
}

func formatAddr(addr uintptr) string {
	return fmt.Sprintf("%#x", uint64(addr))
}
