// Package vfs is the VFS skeleton: a node cache keyed by
// VfsId, a mount table consulted at every path boundary, and a Lookup that
// walks one segment at a time, optionally following bond nodes (mounts or
// symlinks). Concrete filesystem logic lives in out-of-core drivers; this
// package only owns the tree shape and the traversal rules.
//
// Grounded on original_source/kernel/filesystem/FilesystemDriver.cpp and
// kernel/include/Loader.h's LoadElfFromFile (the two places the original
// names a path-resolution contract), reimplemented against biscuit's
// ufs.Ufs_t directory-by-directory walk style
// (biscuit/src/ufs/ufs.go) but against VfsNode.Bond rather than a concrete
// on-disk directory format.
package vfs

import (
	"strings"

	"northport/defs"
	"northport/lock"
)

// VfsId names a node in the cache. Zero is never a valid id.
type VfsId uint64

// NodeKind distinguishes what a VfsNode represents, independent of which
// driver backs it.
type NodeKind int

const (
	KindUnknown NodeKind = iota
	KindFile
	KindDirectory
	KindBond // a mount point or symlink: traversal may cross into another node
)

// DataCache is the opaque file-data cache handle a node carries.
// Concrete drivers fill in whatever
// backing store they use; the VFS core never looks inside it.
type DataCache any

// VfsNode is one cached entry. Metadata is protected by its own RwLock so
// concurrent lookups across unrelated parts of the tree don't serialize on
// a single tree-wide lock.
type VfsNode struct {
	meta lock.RwLock

	ID     VfsId
	Kind   NodeKind
	Name   string
	Driver DriverId
	Data   DataCache

	// Bond is the node this one resolves to when traversed with
	// traverse_links set: another node's root for a mount, or the link
	// target for a symlink. Nil for ordinary file/directory nodes.
	Bond *VfsNode

	parent   *VfsNode
	children map[string]*VfsNode
}

// DriverId identifies the out-of-core filesystem driver that owns a node's
// Data and children. The VFS core never dereferences it; it is handed back
// to the driver on operations the core itself doesn't implement (read,
// write, create).
type DriverId uint64

func newNode(id VfsId, kind NodeKind, name string, driver DriverId) *VfsNode {
	return &VfsNode{ID: id, Kind: kind, Name: name, Driver: driver}
}

// Metadata runs fn with the node's metadata lock held for reading. Use
// this instead of reaching into VfsNode fields directly so a concurrent
// rename/mount can't observe a torn read.
func (n *VfsNode) Metadata(fn func()) {
	n.meta.RLock()
	defer n.meta.RUnlock()
	fn()
}

// MutateMetadata runs fn with the node's metadata lock held for writing.
func (n *VfsNode) MutateMetadata(fn func()) {
	n.meta.Lock()
	defer n.meta.Unlock()
	fn()
}

// Cache is the node cache: a VfsId-addressed table of live VfsNodes plus
// the mount table consulted at each path boundary.
type Cache struct {
	mu     lock.RwLock
	nextID VfsId
	nodes  map[VfsId]*VfsNode
	root   *VfsNode

	// mounts maps a directory node's id to the node its subtree resolves
	// to -- consulted at every path boundary, not only the final segment.
	mounts map[VfsId]*VfsNode
}

// NewCache creates an empty cache with a synthetic root directory owned by
// driverId (the root filesystem driver).
func NewCache(driverId DriverId) *Cache {
	c := &Cache{nodes: make(map[VfsId]*VfsNode), mounts: make(map[VfsId]*VfsNode)}
	c.nextID = 1
	c.root = newNode(c.nextID, KindDirectory, "/", driverId)
	c.root.children = make(map[string]*VfsNode)
	c.nodes[c.root.ID] = c.root
	return c
}

// Root returns the cache's root directory node.
func (c *Cache) Root() *VfsNode {
	return c.root
}

// Insert adds a new node as a child of parent, returning the node's fresh
// id. parent must be a directory or bond node; Insert panics otherwise,
// since a driver inserting into a file node is a programmer error, not a
// recoverable condition.
func (c *Cache) Insert(parent *VfsNode, name string, kind NodeKind, driverId DriverId) *VfsNode {
	if parent.Kind != KindDirectory && parent.Kind != KindBond {
		panic("vfs: Insert into a non-directory node")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	n := newNode(c.nextID, kind, name, driverId)
	if kind == KindDirectory || kind == KindBond {
		n.children = make(map[string]*VfsNode)
	}
	n.parent = parent
	if parent.children == nil {
		parent.children = make(map[string]*VfsNode)
	}
	parent.children[name] = n
	c.nodes[n.ID] = n
	return n
}

// Remove evicts a node from the cache. It does not unlink it from its
// parent's children map; callers that are actually deleting a file do that
// separately once the underlying driver confirms the unlink.
func (c *Cache) Remove(id VfsId) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.nodes, id)
	delete(c.mounts, id)
}

// Get looks a node up by id.
func (c *Cache) Get(id VfsId) (*VfsNode, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.nodes[id]
	return n, ok
}

// Mount records that dir's subtree resolves to target, the bond used for
// mounts. dir must already be in the cache.
func (c *Cache) Mount(dir *VfsNode, target *VfsNode) defs.Err_t {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.nodes[dir.ID]; !ok {
		return defs.ErrNotFound
	}
	c.mounts[dir.ID] = target
	return defs.ErrNone
}

// Unmount drops a previously recorded mount.
func (c *Cache) Unmount(dir *VfsNode) defs.Err_t {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.mounts[dir.ID]; !ok {
		return defs.ErrNotFound
	}
	delete(c.mounts, dir.ID)
	return defs.ErrNone
}

func (c *Cache) mountedOn(n *VfsNode) (*VfsNode, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	target, ok := c.mounts[n.ID]
	// Ids are only unique within one cache, so a node of a mounted cache
	// can share an id with a mount point here; match the node itself.
	if ok && c.nodes[n.ID] != n {
		return nil, false
	}
	return target, ok
}

// crossMounts re-consults the mount table for n, following chained mounts
// (a mount target that is itself a mount point) until it settles. Called
// at every path boundary, not only at the final segment.
func (c *Cache) crossMounts(n *VfsNode) *VfsNode {
	for {
		target, ok := c.mountedOn(n)
		if !ok {
			return n
		}
		n = target
	}
}

// Lookup walks path (slash-separated, relative to the cache root) one
// segment at a time, re-consulting the mount table at every directory
// boundary. When traverseLinks is set, any KindBond node encountered along
// the way (not only at the final segment) is followed through its Bond
// before continuing; when unset, a bond node reached as the final segment
// is returned un-followed so callers such as an ELF loader's Stat can
// inspect the link itself.
func (c *Cache) Lookup(path string, traverseLinks bool) (*VfsNode, defs.Err_t) {
	segments := splitPath(path)
	cur := c.crossMounts(c.root)

	for i, seg := range segments {
		if seg == "" || seg == "." {
			continue
		}
		cur.meta.RLock()
		child, ok := cur.children[seg]
		cur.meta.RUnlock()
		if !ok {
			return nil, defs.ErrNotFound
		}

		last := i == len(segments)-1
		if child.Kind == KindBond && (traverseLinks || !last) {
			if child.Bond == nil {
				return nil, defs.ErrNotFound
			}
			child = child.Bond
		}
		cur = c.crossMounts(child)
	}
	return cur, defs.ErrNone
}

func splitPath(path string) []string {
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}
