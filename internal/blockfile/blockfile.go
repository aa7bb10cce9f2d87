// Package blockfile reads raw block files: given a
// file number and byte offset from the canonical-chain resolver, it
// reads one block's on-disk framing and header directly out of the
// node's blkNNNNN.dat files.
package blockfile

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pivx-project/chainindex/pkg/block"
	"github.com/pivx-project/chainindex/pkg/types"
)

// NetworkMagic is the four-byte value every block in a blkNNNNN.dat
// file is framed with.
var NetworkMagic = [4]byte{0x90, 0xc4, 0xfd, 0xe9}

// Result is what ReadBlock hands back: the decoded header plus a
// cursor positioned immediately after it, where the transaction count
// the caller (the transaction parser) reads next begins.
type Result struct {
	Header *block.Header
	Size   uint32
	Reader *bufio.Reader

	file *os.File
}

// Close releases the underlying file handle. The caller must call
// this once it has finished reading transactions off Result.Reader.
func (r *Result) Close() error {
	return r.file.Close()
}

// fileName builds the blkNNNNN.dat name the node uses for a given
// file number.
func fileName(blkDir string, fileNumber uint32) string {
	return filepath.Join(blkDir, fmt.Sprintf("blk%05d.dat", fileNumber))
}

// ReadBlock opens blkNNNNN.dat under blkDir, seeks to offset, and reads
// the magic bytes, block size, and header. It verifies the magic
// against NetworkMagic and the header's double-SHA256 hash against
// expected (the hash the canonical-chain resolver already committed
// to for this position). On any mismatch the file handle is closed
// and an error is returned; on success the caller owns Result and must
// Close it once done reading transactions.
func ReadBlock(blkDir string, fileNumber uint32, offset uint64, expected types.Hash) (*Result, error) {
	return readBlock(blkDir, fileNumber, offset, &expected)
}

// ReadBlockFast is ReadBlock without the header-hash comparison, for
// sync.fast_sync: magic and structural framing are still
// validated, only the double-SHA256 check against an expected hash is
// skipped.
func ReadBlockFast(blkDir string, fileNumber uint32, offset uint64) (*Result, error) {
	return readBlock(blkDir, fileNumber, offset, nil)
}

func readBlock(blkDir string, fileNumber uint32, offset uint64, expected *types.Hash) (*Result, error) {
	f, err := os.Open(fileName(blkDir, fileNumber))
	if err != nil {
		return nil, fmt.Errorf("blockfile: open: %w", err)
	}

	if _, err := f.Seek(int64(offset), io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("blockfile: seek: %w", err)
	}

	r := bufio.NewReader(f)

	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrTruncatedInput, err)
	}
	if magic != NetworkMagic {
		f.Close()
		return nil, ErrMagicMismatch
	}

	var sizeBuf [4]byte
	if _, err := io.ReadFull(r, sizeBuf[:]); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrTruncatedInput, err)
	}
	size := binary.LittleEndian.Uint32(sizeBuf[:])

	var versionBuf [4]byte
	if _, err := io.ReadFull(r, versionBuf[:]); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrTruncatedInput, err)
	}
	version := binary.LittleEndian.Uint32(versionBuf[:])

	headerSize := block.HeaderSize(version)
	headerBuf := make([]byte, headerSize)
	copy(headerBuf[0:4], versionBuf[:])
	if _, err := io.ReadFull(r, headerBuf[4:]); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrTruncatedInput, err)
	}

	header, err := block.DecodeHeader(headerBuf)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("blockfile: decode header: %w", err)
	}

	if expected != nil {
		hash, err := header.Hash()
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("blockfile: hash header: %w", err)
		}
		if hash != *expected {
			f.Close()
			return nil, ErrHashMismatch
		}
	}

	return &Result{Header: header, Size: size, Reader: r, file: f}, nil
}
