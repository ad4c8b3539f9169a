package vfs_test

import (
	"testing"

	"northport/defs"
	"northport/vfs"
)

func TestLookupWalksNestedDirectories(t *testing.T) {
	c := vfs.NewCache(1)
	home := c.Insert(c.Root(), "home", vfs.KindDirectory, 1)
	c.Insert(home, "readme.txt", vfs.KindFile, 1)

	n, err := c.Lookup("/home/readme.txt", false)
	if err != defs.ErrNone {
		t.Fatalf("Lookup: %v", err)
	}
	if n.Kind != vfs.KindFile || n.Name != "readme.txt" {
		t.Fatalf("Lookup returned %+v, want the readme.txt file node", n)
	}
}

func TestLookupMissingSegmentReturnsNotFound(t *testing.T) {
	c := vfs.NewCache(1)
	c.Insert(c.Root(), "home", vfs.KindDirectory, 1)

	if _, err := c.Lookup("/home/nope", false); err != defs.ErrNotFound {
		t.Fatalf("Lookup(missing) = %v, want ErrNotFound", err)
	}
}

func TestLookupCrossesMountAtDirectoryBoundaryNotOnlyAtFinalSegment(t *testing.T) {
	c := vfs.NewCache(1)
	mnt := c.Insert(c.Root(), "mnt", vfs.KindDirectory, 1)

	otherCache := vfs.NewCache(2)
	data := otherCache.Insert(otherCache.Root(), "data.bin", vfs.KindFile, 2)

	if err := c.Mount(mnt, otherCache.Root()); err != defs.ErrNone {
		t.Fatalf("Mount: %v", err)
	}

	n, err := c.Lookup("/mnt/data.bin", false)
	if err != defs.ErrNone {
		t.Fatalf("Lookup across mount: %v", err)
	}
	if n.ID != data.ID {
		t.Fatalf("Lookup across mount returned node %+v, want the mounted filesystem's data.bin", n)
	}
}

func TestLookupWithTraverseLinksUnsetReturnsBondNodeUnfollowedAtFinalSegment(t *testing.T) {
	c := vfs.NewCache(1)
	target := c.Insert(c.Root(), "target.txt", vfs.KindFile, 1)
	link := c.Insert(c.Root(), "link.txt", vfs.KindBond, 1)
	link.Bond = target

	n, err := c.Lookup("/link.txt", false)
	if err != defs.ErrNone {
		t.Fatalf("Lookup: %v", err)
	}
	if n.Kind != vfs.KindBond {
		t.Fatalf("Lookup(traverseLinks=false) returned kind %v, want the un-followed bond node", n.Kind)
	}
}

func TestLookupWithTraverseLinksSetFollowsBondAtFinalSegment(t *testing.T) {
	c := vfs.NewCache(1)
	target := c.Insert(c.Root(), "target.txt", vfs.KindFile, 1)
	link := c.Insert(c.Root(), "link.txt", vfs.KindBond, 1)
	link.Bond = target

	n, err := c.Lookup("/link.txt", true)
	if err != defs.ErrNone {
		t.Fatalf("Lookup: %v", err)
	}
	if n.ID != target.ID {
		t.Fatalf("Lookup(traverseLinks=true) = %+v, want the bond's target", n)
	}
}

func TestLookupFollowsBondMidPathRegardlessOfTraverseLinks(t *testing.T) {
	c := vfs.NewCache(1)
	realDir := c.Insert(c.Root(), "realdir", vfs.KindDirectory, 1)
	c.Insert(realDir, "file.txt", vfs.KindFile, 1)

	link := c.Insert(c.Root(), "linkdir", vfs.KindBond, 1)
	link.Bond = realDir

	n, err := c.Lookup("/linkdir/file.txt", false)
	if err != defs.ErrNone {
		t.Fatalf("Lookup through mid-path bond: %v", err)
	}
	if n.Kind != vfs.KindFile || n.Name != "file.txt" {
		t.Fatalf("Lookup through mid-path bond = %+v, want file.txt", n)
	}
}

func TestUnmountRemovesTheBond(t *testing.T) {
	c := vfs.NewCache(1)
	mnt := c.Insert(c.Root(), "mnt", vfs.KindDirectory, 1)
	otherCache := vfs.NewCache(2)

	if err := c.Mount(mnt, otherCache.Root()); err != defs.ErrNone {
		t.Fatalf("Mount: %v", err)
	}
	if err := c.Unmount(mnt); err != defs.ErrNone {
		t.Fatalf("Unmount: %v", err)
	}
	if err := c.Unmount(mnt); err != defs.ErrNotFound {
		t.Fatalf("second Unmount = %v, want ErrNotFound", err)
	}
}

func TestInsertIntoFileNodePanics(t *testing.T) {
	c := vfs.NewCache(1)
	file := c.Insert(c.Root(), "f.txt", vfs.KindFile, 1)

	defer func() {
		if recover() == nil {
			t.Fatalf("Insert into a file node did not panic")
		}
	}()
	c.Insert(file, "child", vfs.KindFile, 1)
}
