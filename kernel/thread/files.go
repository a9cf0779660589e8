package thread

import (
	"unsafe"

	"gopherkern/kernel"
	"gopherkern/kernel/kfmt"
	"gopherkern/kernel/kvector"
	"gopherkern/kernel/mem"
	"gopherkern/kernel/vfs"
)

const (
	// MaxOpenFiles is the capacity of a file descriptor table.
	MaxOpenFiles = 64

	// InvalidFD is returned by OpenFile on failure.
	InvalidFD = -1
)

var (
	errNilDentry = &kernel.Error{Module: "files", Message: "nil directory entry"}
	errBadFD     = &kernel.Error{Module: "files", Message: "bad file descriptor"}

	fdRecordSize = mem.Size(unsafe.Sizeof(FileDescriptor{}))
)

// FileDescriptor is an open file.
type FileDescriptor struct {
	Dentry *vfs.DirectoryEntry
	Pos    int64

	record uintptr
}

// FilesStruct is the open file table of one or more threads.
type FilesStruct struct {
	heap  Heap
	table *kvector.Vector[*FileDescriptor]
	refs  int32
}

func newFilesStruct(heap Heap) *FilesStruct {
	return &FilesStruct{
		heap:  heap,
		table: kvector.New[*FileDescriptor](MaxOpenFiles),
		refs:  1,
	}
}

// OpenFile adds a descriptor for dentry to the table and returns its index.
// On failure it returns InvalidFD and an error.
func (fs *FilesStruct) OpenFile(dentry *vfs.DirectoryEntry) (int, *kernel.Error) {
	if dentry == nil {
		kfmt.Printf("[files] file open failed: %s\n", errNilDentry.Message)
		return InvalidFD, errNilDentry
	}

	record, err := fs.heap.Alloc(fdRecordSize)
	if err != nil {
		kfmt.Printf("[files] file open failed: %s\n", err.Message)
		return InvalidFD, err
	}

	index, err := fs.table.Add(&FileDescriptor{Dentry: dentry, record: record})
	if err != nil {
		kfmt.Printf("[files] file open failed, cause add fd table failed: %s\n", err.Message)
		_ = fs.heap.Free(record)
		return InvalidFD, err
	}

	return index, nil
}

// Descriptor returns the open file with index fd.
func (fs *FilesStruct) Descriptor(fd int) (*FileDescriptor, *kernel.Error) {
	desc, err := fs.table.Get(fd)
	if err != nil {
		return nil, errBadFD
	}
	return desc, nil
}

// Close removes the descriptor with index fd from the table.
func (fs *FilesStruct) Close(fd int) *kernel.Error {
	desc, err := fs.table.Remove(fd)
	if err != nil {
		return errBadFD
	}
	return fs.heap.Free(desc.record)
}

// Count returns the number of open files.
func (fs *FilesStruct) Count() int {
	return fs.table.Len()
}

// Shared returns true if more than one thread references the table.
func (fs *FilesStruct) Shared() bool {
	return fs.refs > 1
}

func (fs *FilesStruct) acquire() *FilesStruct {
	fs.refs++
	return fs
}

// release drops a reference and closes every descriptor once the last
// reference is gone.
func (fs *FilesStruct) release() *kernel.Error {
	if fs.refs--; fs.refs > 0 {
		return nil
	}

	var firstErr *kernel.Error
	fs.table.Each(func(index int, _ *FileDescriptor) {
		if err := fs.Close(index); err != nil && firstErr == nil {
			firstErr = err
		}
	})
	return firstErr
}

// copyInto duplicates every descriptor of fs into the empty table dst.
// Duplicates keep the index, directory entry and position of the original.
func (fs *FilesStruct) copyInto(dst *FilesStruct) *kernel.Error {
	var firstErr *kernel.Error
	fs.table.Each(func(index int, desc *FileDescriptor) {
		if firstErr != nil {
			return
		}

		record, err := dst.heap.Alloc(fdRecordSize)
		if err != nil {
			firstErr = err
			return
		}

		if err = dst.table.Put(index, &FileDescriptor{Dentry: desc.Dentry, Pos: desc.Pos, record: record}); err != nil {
			_ = dst.heap.Free(record)
			firstErr = err
		}
	})
	return firstErr
}
