package vfs

import "testing"

func TestDirectoryEntryPath(t *testing.T) {
	root := NewDirectoryEntry("", 1, nil)
	dev := NewDirectoryEntry("dev", 2, root)
	tty := NewDirectoryEntry("tty0", 3, dev)

	specs := []struct {
		entry *DirectoryEntry
		exp   string
	}{
		{root, "/"},
		{dev, "/dev"},
		{tty, "/dev/tty0"},
	}

	for specIndex, spec := range specs {
		if got := spec.entry.Path(); got != spec.exp {
			t.Errorf("[spec %d] expected path %q; got %q", specIndex, spec.exp, got)
		}
	}
}

func TestFSContextClone(t *testing.T) {
	root := NewDirectoryEntry("", 1, nil)
	home := NewDirectoryEntry("home", 2, root)

	ctx := NewFSContext(root)
	if ctx.Cwd != root {
		t.Fatal("expected the working directory to default to the root")
	}

	clone := ctx.Clone()
	clone.Cwd = home

	if ctx.Cwd != root {
		t.Fatal("expected changes to the clone not to affect the original context")
	}
	if clone.Root != root {
		t.Fatal("expected clone to keep the same root")
	}
}
