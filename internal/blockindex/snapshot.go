package blockindex

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// SnapshotNodeData copies the node's block-index store and raw block
// files into scratchDir so the node can keep writing (and holding its
// LevelDB lock) while the indexer reads. blkDir names the directory of
// blkNNNNN.dat files; empty selects nodeDataDir/blocks. Returns the
// copied index path and block directory. Block files are hard-linked
// when the filesystem allows it, falling back to a byte copy.
func SnapshotNodeData(nodeDataDir, blkDir, scratchDir string) (indexPath, blkScratch string, err error) {
	if blkDir == "" {
		blkDir = filepath.Join(nodeDataDir, "blocks")
	}

	indexPath = filepath.Join(scratchDir, "index")
	if err := copyDir(filepath.Join(nodeDataDir, "blocks", "index"), indexPath, nil); err != nil {
		return "", "", fmt.Errorf("blockindex: snapshot index: %w", err)
	}

	blkScratch = filepath.Join(scratchDir, "blocks")
	keep := func(name string) bool {
		return strings.HasPrefix(name, "blk") && strings.HasSuffix(name, ".dat")
	}
	if err := copyDir(blkDir, blkScratch, keep); err != nil {
		return "", "", fmt.Errorf("blockindex: snapshot block files: %w", err)
	}
	return indexPath, blkScratch, nil
}

// copyDir copies the regular files directly under src into dst, creating
// dst as needed. keep filters by file name; nil keeps everything. A
// pre-existing destination file of the same size is left alone, so a
// rerun only transfers what changed.
func copyDir(src, dst string, keep func(name string) bool) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dst, 0755); err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if keep != nil && !keep(e.Name()) {
			continue
		}
		srcPath := filepath.Join(src, e.Name())
		dstPath := filepath.Join(dst, e.Name())

		si, err := e.Info()
		if err != nil {
			return err
		}
		if di, err := os.Stat(dstPath); err == nil && di.Size() == si.Size() {
			continue
		}

		if err := os.Remove(dstPath); err != nil && !os.IsNotExist(err) {
			return err
		}
		if err := os.Link(srcPath, dstPath); err == nil {
			continue
		}
		if err := copyFile(srcPath, dstPath); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
