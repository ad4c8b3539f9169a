package drivers_test

import (
	"debug/elf"
	"errors"
	"testing"

	"northport/drivers"
)

func TestLoadImagePropagatesOpenerError(t *testing.T) {
	wantErr := errors.New("no such driver image")
	store := drivers.NewImageStore(func(path string) (*elf.File, error) {
		return nil, wantErr
	})

	if _, err := store.LoadImage("/drivers/missing.drv"); err == nil {
		t.Fatalf("LoadImage with a failing opener returned no error")
	}
}

func TestUnloadImageOfUnknownPathIsANoOp(t *testing.T) {
	store := drivers.NewImageStore(func(path string) (*elf.File, error) {
		t.Fatalf("opener should not be called")
		return nil, nil
	})
	store.UnloadImage("/drivers/never-loaded.drv")
}
