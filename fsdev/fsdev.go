// Package fsdev mirrors the external API shape of SPDK's filesystem
// device façade (include/spdk/fsdev.h): the set of FUSE-like operations
// a fsdev backend exposes to a filesystem frontend. A real backend is
// out of scope for this host-side NVMe-oF/TCP transport (spec.md §1/§9
// non-goals name "blob filesystems"); this package exists only so that
// a caller wiring against the wider SPDK-shaped API surface has
// something to compile against. Every method returns
// api.ErrNotSupported.
package fsdev

import (
	"context"

	"github.com/kvaster/nvmetcp/api"
)

// FileObject identifies a file/inode, mirroring struct
// spdk_fsdev_file_object (an opaque handle, not a kernel inode number).
type FileObject uint64

// FileHandle identifies an open file/directory instance, mirroring
// struct spdk_fsdev_file_handle.
type FileHandle uint64

// FileAttr mirrors the fields of struct spdk_fsdev_file_attr this
// façade's callers actually need; rarely-used fields (ctime, blocks,
// rdev) are omitted since nothing here ever populates them.
type FileAttr struct {
	Size  uint64
	Mode  uint32
	UID   uint32
	GID   uint32
	Nlink uint32
}

// FileSystemStat mirrors struct spdk_fsdev_file_statfs.
type FileSystemStat struct {
	BlockSize  uint64
	Blocks     uint64
	BlocksFree uint64
	Files      uint64
	FilesFree  uint64
}

// DirEntry is one entry returned by Readdir.
type DirEntry struct {
	Name       string
	FileObject FileObject
	Mode       uint32
}

// Fsdev is the operation surface struct spdk_fsdev_fn_table exposes,
// narrowed to Go signatures: context.Context replaces the C API's
// (spdk_io_channel, unique, completion-callback) triple, and each
// method returns its result directly instead of invoking a callback.
type Fsdev interface {
	Lookup(ctx context.Context, parent FileObject, name string) (FileObject, FileAttr, error)
	Forget(ctx context.Context, fobject FileObject, nlookup uint64) error
	GetAttr(ctx context.Context, fobject FileObject, fhandle FileHandle) (FileAttr, error)
	SetAttr(ctx context.Context, fobject FileObject, fhandle FileHandle, attr FileAttr, toSet uint32) (FileAttr, error)
	Access(ctx context.Context, fobject FileObject, fhandle FileHandle, mask, uid, gid uint32) error

	Open(ctx context.Context, fobject FileObject, flags uint32) (FileHandle, error)
	Create(ctx context.Context, parent FileObject, name string, mode, flags, euid, egid uint32) (FileObject, FileHandle, FileAttr, error)
	Release(ctx context.Context, fobject FileObject, fhandle FileHandle) error

	Read(ctx context.Context, fobject FileObject, fhandle FileHandle, offset uint64, dst [][]byte) (int, error)
	Write(ctx context.Context, fobject FileObject, fhandle FileHandle, offset uint64, src [][]byte) (int, error)
	Lseek(ctx context.Context, fobject FileObject, fhandle FileHandle, offset int64, whence int) (int64, error)
	Fsync(ctx context.Context, fobject FileObject, fhandle FileHandle, datasync bool) error
	Flush(ctx context.Context, fobject FileObject, fhandle FileHandle) error
	Fallocate(ctx context.Context, fobject FileObject, fhandle FileHandle, mode uint32, offset, length uint64) error
	CopyFileRange(ctx context.Context, srcObj FileObject, srcHandle FileHandle, srcOffset uint64, dstObj FileObject, dstHandle FileHandle, dstOffset, length uint64) (int64, error)

	Readlink(ctx context.Context, fobject FileObject) (string, error)
	Symlink(ctx context.Context, parent FileObject, name, target string, euid, egid uint32) (FileObject, FileAttr, error)
	Mknod(ctx context.Context, parent FileObject, name string, mode uint32, rdev uint64, euid, egid uint32) (FileObject, FileAttr, error)
	Mkdir(ctx context.Context, parent FileObject, name string, mode, euid, egid uint32) (FileObject, FileAttr, error)
	Unlink(ctx context.Context, parent FileObject, name string) error
	Rmdir(ctx context.Context, parent FileObject, name string) error
	Rename(ctx context.Context, parent FileObject, name string, newParent FileObject, newName string, flags uint32) error
	Link(ctx context.Context, fobject, newParent FileObject, newName string) (FileAttr, error)

	Opendir(ctx context.Context, fobject FileObject, flags uint32) (FileHandle, error)
	Readdir(ctx context.Context, fobject FileObject, fhandle FileHandle, offset uint64) ([]DirEntry, error)
	Releasedir(ctx context.Context, fobject FileObject, fhandle FileHandle) error
	Fsyncdir(ctx context.Context, fobject FileObject, fhandle FileHandle, datasync bool) error

	SetXAttr(ctx context.Context, fobject FileObject, name string, value []byte, flags uint32) error
	GetXAttr(ctx context.Context, fobject FileObject, name string, dst []byte) (int, error)
	ListXAttr(ctx context.Context, fobject FileObject, dst []byte) (int, error)
	RemoveXAttr(ctx context.Context, fobject FileObject, name string) error

	Flock(ctx context.Context, fobject FileObject, fhandle FileHandle, operation int) error
	Statfs(ctx context.Context, fobject FileObject) (FileSystemStat, error)
	Syncfs(ctx context.Context, fobject FileObject, fhandle FileHandle) error
	Ioctl(ctx context.Context, fobject FileObject, fhandle FileHandle, request uint32, arg []byte) ([]byte, error)
	Abort(ctx context.Context, unique uint64) error
}

// Unimplemented satisfies Fsdev with every method returning
// api.ErrNotSupported, the concrete stand-in for "a real filesystem
// device façade is out of scope" — callers that need the shape to
// compile against embed this rather than implementing all 30-odd
// methods themselves.
type Unimplemented struct{}

var _ Fsdev = Unimplemented{}

func (Unimplemented) Lookup(context.Context, FileObject, string) (FileObject, FileAttr, error) {
	return 0, FileAttr{}, api.ErrNotSupported
}
func (Unimplemented) Forget(context.Context, FileObject, uint64) error { return api.ErrNotSupported }
func (Unimplemented) GetAttr(context.Context, FileObject, FileHandle) (FileAttr, error) {
	return FileAttr{}, api.ErrNotSupported
}
func (Unimplemented) SetAttr(context.Context, FileObject, FileHandle, FileAttr, uint32) (FileAttr, error) {
	return FileAttr{}, api.ErrNotSupported
}
func (Unimplemented) Access(context.Context, FileObject, FileHandle, uint32, uint32, uint32) error {
	return api.ErrNotSupported
}

func (Unimplemented) Open(context.Context, FileObject, uint32) (FileHandle, error) {
	return 0, api.ErrNotSupported
}
func (Unimplemented) Create(context.Context, FileObject, string, uint32, uint32, uint32, uint32) (FileObject, FileHandle, FileAttr, error) {
	return 0, 0, FileAttr{}, api.ErrNotSupported
}
func (Unimplemented) Release(context.Context, FileObject, FileHandle) error {
	return api.ErrNotSupported
}

func (Unimplemented) Read(context.Context, FileObject, FileHandle, uint64, [][]byte) (int, error) {
	return 0, api.ErrNotSupported
}
func (Unimplemented) Write(context.Context, FileObject, FileHandle, uint64, [][]byte) (int, error) {
	return 0, api.ErrNotSupported
}
func (Unimplemented) Lseek(context.Context, FileObject, FileHandle, int64, int) (int64, error) {
	return 0, api.ErrNotSupported
}
func (Unimplemented) Fsync(context.Context, FileObject, FileHandle, bool) error {
	return api.ErrNotSupported
}
func (Unimplemented) Flush(context.Context, FileObject, FileHandle) error {
	return api.ErrNotSupported
}
func (Unimplemented) Fallocate(context.Context, FileObject, FileHandle, uint32, uint64, uint64) error {
	return api.ErrNotSupported
}
func (Unimplemented) CopyFileRange(context.Context, FileObject, FileHandle, uint64, FileObject, FileHandle, uint64, uint64) (int64, error) {
	return 0, api.ErrNotSupported
}

func (Unimplemented) Readlink(context.Context, FileObject) (string, error) {
	return "", api.ErrNotSupported
}
func (Unimplemented) Symlink(context.Context, FileObject, string, string, uint32, uint32) (FileObject, FileAttr, error) {
	return 0, FileAttr{}, api.ErrNotSupported
}
func (Unimplemented) Mknod(context.Context, FileObject, string, uint32, uint64, uint32, uint32) (FileObject, FileAttr, error) {
	return 0, FileAttr{}, api.ErrNotSupported
}
func (Unimplemented) Mkdir(context.Context, FileObject, string, uint32, uint32, uint32) (FileObject, FileAttr, error) {
	return 0, FileAttr{}, api.ErrNotSupported
}
func (Unimplemented) Unlink(context.Context, FileObject, string) error { return api.ErrNotSupported }
func (Unimplemented) Rmdir(context.Context, FileObject, string) error  { return api.ErrNotSupported }
func (Unimplemented) Rename(context.Context, FileObject, string, FileObject, string, uint32) error {
	return api.ErrNotSupported
}
func (Unimplemented) Link(context.Context, FileObject, FileObject, string) (FileAttr, error) {
	return FileAttr{}, api.ErrNotSupported
}

func (Unimplemented) Opendir(context.Context, FileObject, uint32) (FileHandle, error) {
	return 0, api.ErrNotSupported
}
func (Unimplemented) Readdir(context.Context, FileObject, FileHandle, uint64) ([]DirEntry, error) {
	return nil, api.ErrNotSupported
}
func (Unimplemented) Releasedir(context.Context, FileObject, FileHandle) error {
	return api.ErrNotSupported
}
func (Unimplemented) Fsyncdir(context.Context, FileObject, FileHandle, bool) error {
	return api.ErrNotSupported
}

func (Unimplemented) SetXAttr(context.Context, FileObject, string, []byte, uint32) error {
	return api.ErrNotSupported
}
func (Unimplemented) GetXAttr(context.Context, FileObject, string, []byte) (int, error) {
	return 0, api.ErrNotSupported
}
func (Unimplemented) ListXAttr(context.Context, FileObject, []byte) (int, error) {
	return 0, api.ErrNotSupported
}
func (Unimplemented) RemoveXAttr(context.Context, FileObject, string) error {
	return api.ErrNotSupported
}

func (Unimplemented) Flock(context.Context, FileObject, FileHandle, int) error {
	return api.ErrNotSupported
}
func (Unimplemented) Statfs(context.Context, FileObject) (FileSystemStat, error) {
	return FileSystemStat{}, api.ErrNotSupported
}
func (Unimplemented) Syncfs(context.Context, FileObject, FileHandle) error {
	return api.ErrNotSupported
}
func (Unimplemented) Ioctl(context.Context, FileObject, FileHandle, uint32, []byte) ([]byte, error) {
	return nil, api.ErrNotSupported
}
func (Unimplemented) Abort(context.Context, uint64) error { return api.ErrNotSupported }
