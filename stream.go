package dedisp

import (
	"bytes"
	"encoding/binary"

	tiledb "github.com/TileDB-Inc/TileDB-Go"
)

// Stream caters for a generic reader so that dispersed-input buffers can be
// sourced either from a TileDB VFS handle (local filesystem or an object
// store) or from an in-memory byte stream, without the rest of the package
// caring which.
type Stream interface {
	Read(p []byte) (int, error)
	Seek(offset int64, whence int) (int64, error)
}

// GenericStream chooses between an in-memory byte reader and the raw VFS
// handle: inmem pulls the entire buffer into memory up front, otherwise
// reads are passed straight through to the VFS handle.
func GenericStream(stream *tiledb.VFSfh, size uint64, inmem bool) (Stream, error) {
	if inmem {
		buffer := make([]byte, size)
		if err := binary.Read(stream, binary.BigEndian, &buffer); err != nil {
			return nil, err
		}
		return bytes.NewReader(buffer), nil
	}
	return stream, nil
}

// DispersedInputSource opens a dispersed-input file for streamed reading,
// local filesystem or object store, via the TileDB VFS.
type DispersedInputSource struct {
	vfs *tiledb.VFS
	handle *tiledb.VFSfh
	Stream
}

// OpenDispersedInputSource opens uri for reading through ctx's VFS and wraps
// it in a Stream: inMemory pulls the whole file into memory up front, as
// GenericStream does, which is appropriate for the batch-sized dispersed
// input this driver reads.
func OpenDispersedInputSource(ctx *tiledb.Context, config *tiledb.Config, uri string, inMemory bool) (*DispersedInputSource, error) {
	vfs, err := tiledb.NewVFS(ctx, config)
	if err != nil {
		return nil, err
	}

	handle, err := vfs.Open(uri, tiledb.TILEDB_VFS_READ)
	if err != nil {
		vfs.Free()
		return nil, err
	}

	size, err := vfs.FileSize(uri)
	if err != nil {
		handle.Close()
		vfs.Free()
		return nil, err
	}

	stream, err := GenericStream(handle, size, inMemory)
	if err != nil {
		handle.Close()
		vfs.Free()
		return nil, err
	}

	return &DispersedInputSource{vfs: vfs, handle: handle, Stream: stream}, nil
}

// Close closes the VFS file handle and frees the VFS backing the source.
func (s *DispersedInputSource) Close() error {
	err := s.handle.Close()
	s.vfs.Free()
	return err
}
