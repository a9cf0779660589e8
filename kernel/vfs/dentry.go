// Package vfs defines the directory entries and filesystem context referenced
// by thread file tables.
package vfs

import "strings"

// DirectoryEntry links a name to an inode within the directory tree.
type DirectoryEntry struct {
	Name   string
	Inode  uint64
	Parent *DirectoryEntry
}

// NewDirectoryEntry creates an entry named name below parent. A nil parent
// creates a root entry.
func NewDirectoryEntry(name string, inode uint64, parent *DirectoryEntry) *DirectoryEntry {
	return &DirectoryEntry{Name: name, Inode: inode, Parent: parent}
}

// Path returns the absolute path of the entry.
func (d *DirectoryEntry) Path() string {
	if d.Parent == nil {
		return "/"
	}

	var parts []string
	for entry := d; entry.Parent != nil; entry = entry.Parent {
		parts = append(parts, entry.Name)
	}

	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return "/" + strings.Join(parts, "/")
}

// FSContext is the filesystem view of a thread.
type FSContext struct {
	Root *DirectoryEntry
	Cwd  *DirectoryEntry
}

// NewFSContext returns a context rooted at root whose working directory is
// root.
func NewFSContext(root *DirectoryEntry) *FSContext {
	return &FSContext{Root: root, Cwd: root}
}

// Clone returns an independent copy of the context.
func (c *FSContext) Clone() *FSContext {
	clone := *c
	return &clone
}
