package drivers

import (
	"debug/elf"
	"fmt"
	"sync"

	"github.com/ianlancetaylor/demangle"
)

// Image is a loaded driver module: its ELF symbol table (demangled, since
// the original Northport's driver ABI is consumed by drivers built from
// C++) plus the image's entry point address. Grounded on
// original_source/kernel/include/Loader.hpp's LoadState/GetEntryState
// pair and kernel/include/drivers/Loader.h's LoadModule, made into a
// concrete mechanism for invoking a manifest's entry point.
type Image struct {
	Path    string
	Entry   uintptr
	Symbols []ImageSymbol

	refs int
}

// ImageSymbol is one function symbol exported (or imported) by a loaded
// driver image, demangled if it carries an Itanium C++ mangled name.
type ImageSymbol struct {
	Name  string // demangled, or the raw name if demangling failed/didn't apply
	Raw   string
	Value uint64
	Size  uint64
}

// ImageStore loads driver images by path and refcounts them, so that
// unloading the last LoadedDriver referencing an image actually releases
// it, and not before.
type ImageStore struct {
	mu     sync.Mutex
	opener func(path string) (*elf.File, error)
	images map[string]*Image
}

// NewImageStore builds an ImageStore. opener is injected so tests can
// supply an in-memory ELF reader instead of a filesystem path; production
// callers pass elf.Open.
func NewImageStore(opener func(path string) (*elf.File, error)) *ImageStore {
	return &ImageStore{opener: opener, images: make(map[string]*Image)}
}

// LoadImage parses the ELF image at path, demangling its symbol table,
// and returns a refcounted Image. A second LoadImage of the same path
// returns the already-parsed Image with its refcount bumped, rather than
// re-parsing.
func (s *ImageStore) LoadImage(path string) (*Image, error) {
	s.mu.Lock()
	if img, ok := s.images[path]; ok {
		img.refs++
		s.mu.Unlock()
		return img, nil
	}
	s.mu.Unlock()

	f, err := s.opener(path)
	if err != nil {
		return nil, fmt.Errorf("drivers: open %s: %w", path, err)
	}
	defer f.Close()

	syms, err := f.Symbols()
	if err != nil && err != elf.ErrNoSymbols {
		return nil, fmt.Errorf("drivers: symbols %s: %w", path, err)
	}

	img := &Image{Path: path, Entry: uintptr(f.Entry), refs: 1}
	for _, sym := range syms {
		if elf.ST_TYPE(sym.Info) != elf.STT_FUNC {
			continue
		}
		img.Symbols = append(img.Symbols, ImageSymbol{
			Name:  demangleName(sym.Name),
			Raw:   sym.Name,
			Value: sym.Value,
			Size:  sym.Size,
		})
	}

	s.mu.Lock()
	s.images[path] = img
	s.mu.Unlock()
	return img, nil
}

// UnloadImage drops one reference to path's image, releasing it once the
// count reaches zero.
func (s *ImageStore) UnloadImage(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	img, ok := s.images[path]
	if !ok {
		return
	}
	img.refs--
	if img.refs <= 0 {
		delete(s.images, path)
	}
}

// demangleName attempts to Itanium-demangle name, falling back to the raw
// name when it isn't a mangled C++ symbol (e.g. a Go-exported shim, or a
// plain C symbol -- drivers can mix all three).
func demangleName(name string) string {
	out, err := demangle.ToString(name, demangle.NoParams)
	if err != nil {
		return name
	}
	return out
}
