// Package fsutil contains the file copy helpers shared by the sync and backup
// code. Every write goes to a temporary sibling that is flushed and renamed
// into place, so readers never observe a partially written file.
package fsutil

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"

	"github.com/sidkik/cacs/pkg/errors"
)

const compareChunkSize = 32 * 1024

// Exists returns whether path exists. Any error other than the path not
// existing is returned.
func Exists(fs afero.Fs, path string) (bool, error) {
	_, err := fs.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errors.IOError{Op: "stat", Path: path, Err: err}
}

// IsDir returns whether path exists and is a directory.
func IsDir(fs afero.Fs, path string) (bool, error) {
	fi, err := fs.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.IOError{Op: "stat", Path: path, Err: err}
	}
	return fi.IsDir(), nil
}

// Copy copies the file or directory tree at src to dst. An existing file at
// dst is replaced. An existing directory at dst is replaced as a whole, so
// files that aren't in src don't survive.
func Copy(fs afero.Fs, src, dst string) error {
	fi, err := fs.Stat(src)
	if err != nil {
		return errors.IOError{Op: "stat", Path: src, Err: err}
	}

	if fi.IsDir() {
		return ReplaceTree(fs, src, dst)
	}

	// A file can't be renamed over a directory.
	if isDir, err := IsDir(fs, dst); err != nil {
		return err
	} else if isDir {
		if err := fs.RemoveAll(dst); err != nil {
			return errors.IOError{Op: "remove", Path: dst, Err: err}
		}
	}
	return CopyFile(fs, src, dst)
}

// CopyFile copies the contents and modification time of src to dst. A file
// that already exists at dst keeps its mode. Otherwise dst gets the mode of
// src.
func CopyFile(fs afero.Fs, src, dst string) error {
	if err := copyFile(fs, src, dst); err != nil {
		return errors.IOError{Op: "copy", Path: src, Err: err}
	}
	return nil
}

func copyFile(fs afero.Fs, src, dst string) error {
	srcFile, err := fs.Open(src)
	if err != nil {
		return errors.WithContext(err, "open source")
	}
	defer srcFile.Close()

	fileInfo, err := srcFile.Stat()
	if err != nil {
		return errors.WithContext(err, "stat")
	}

	mode := fileInfo.Mode().Perm()
	if dstInfo, err := fs.Stat(dst); err == nil && dstInfo.Mode().IsRegular() {
		mode = dstInfo.Mode().Perm()
	}

	if err := writeAtomic(fs, dst, srcFile, mode); err != nil {
		return err
	}

	// Change the modification time as the last step so that it doesn't get
	// reset by other file operations.
	if err := fs.Chtimes(dst, fileInfo.ModTime(), fileInfo.ModTime()); err != nil {
		return errors.WithContext(err, "set file modtime")
	}
	return nil
}

// WriteFile atomically replaces the contents of path with data.
func WriteFile(fs afero.Fs, path string, data []byte, mode os.FileMode) error {
	if err := writeAtomic(fs, path, bytes.NewReader(data), mode); err != nil {
		return errors.IOError{Op: "write", Path: path, Err: err}
	}
	return nil
}

func writeAtomic(fs afero.Fs, dst string, contents io.Reader, mode os.FileMode) (err error) {
	dir := filepath.Dir(dst)
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return errors.WithContext(err, "make parent")
	}

	tmp, err := afero.TempFile(fs, dir, "."+filepath.Base(dst)+".cacs-*")
	if err != nil {
		return errors.WithContext(err, "create temp file")
	}

	defer func() {
		if err != nil {
			tmp.Close()
			fs.Remove(tmp.Name())
		}
	}()

	if _, err := io.Copy(tmp, contents); err != nil {
		return errors.WithContext(err, "write")
	}

	if err := tmp.Sync(); err != nil {
		return errors.WithContext(err, "flush")
	}

	if err := tmp.Close(); err != nil {
		return errors.WithContext(err, "close")
	}

	if err := fs.Chmod(tmp.Name(), mode); err != nil {
		return errors.WithContext(err, "set file mode")
	}

	if err := fs.Rename(tmp.Name(), dst); err != nil {
		return errors.WithContext(err, "rename")
	}
	return nil
}

// CopyTree copies every file under src into dst, creating directories as
// needed. Files already in dst that aren't in src are left alone.
func CopyTree(fs afero.Fs, src, dst string) error {
	return afero.Walk(fs, src, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return errors.IOError{Op: "walk", Path: path, Err: err}
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return errors.WithContext(err, "relative path")
		}
		target := filepath.Join(dst, rel)

		if fi.IsDir() {
			if err := fs.MkdirAll(target, fi.Mode().Perm()|0700); err != nil {
				return errors.IOError{Op: "mkdir", Path: target, Err: err}
			}
			return nil
		}
		return CopyFile(fs, path, target)
	})
}

// ReplaceTree makes dst an exact copy of the directory tree at src.
func ReplaceTree(fs afero.Fs, src, dst string) error {
	if err := fs.RemoveAll(dst); err != nil {
		return errors.IOError{Op: "remove", Path: dst, Err: err}
	}
	return CopyTree(fs, src, dst)
}

// ListFiles returns the paths of all files under root, relative to root, in
// sorted order. A missing root has no files.
func ListFiles(fs afero.Fs, root string) ([]string, error) {
	exists, err := Exists(fs, root)
	if err != nil || !exists {
		return nil, err
	}

	var files []string
	err = afero.Walk(fs, root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return errors.IOError{Op: "walk", Path: path, Err: err}
		}

		if fi.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return errors.WithContext(err, "relative path")
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

// FilesEqual returns whether the files at a and b have identical contents.
// The files are streamed rather than read into memory.
func FilesEqual(fs afero.Fs, a, b string) (bool, error) {
	aFile, err := fs.Open(a)
	if err != nil {
		return false, errors.IOError{Op: "open", Path: a, Err: err}
	}
	defer aFile.Close()

	bFile, err := fs.Open(b)
	if err != nil {
		return false, errors.IOError{Op: "open", Path: b, Err: err}
	}
	defer bFile.Close()

	aInfo, err := aFile.Stat()
	if err != nil {
		return false, errors.IOError{Op: "stat", Path: a, Err: err}
	}
	bInfo, err := bFile.Stat()
	if err != nil {
		return false, errors.IOError{Op: "stat", Path: b, Err: err}
	}
	if aInfo.Size() != bInfo.Size() {
		return false, nil
	}

	aBuf := make([]byte, compareChunkSize)
	bBuf := make([]byte, compareChunkSize)
	for {
		aN, aErr := io.ReadFull(aFile, aBuf)
		bN, bErr := io.ReadFull(bFile, bBuf)
		if !bytes.Equal(aBuf[:aN], bBuf[:bN]) {
			return false, nil
		}

		aDone := aErr == io.EOF || aErr == io.ErrUnexpectedEOF
		bDone := bErr == io.EOF || bErr == io.ErrUnexpectedEOF
		if aErr != nil && !aDone {
			return false, errors.IOError{Op: "read", Path: a, Err: aErr}
		}
		if bErr != nil && !bDone {
			return false, errors.IOError{Op: "read", Path: b, Err: bErr}
		}
		if aDone || bDone {
			return aDone && bDone, nil
		}
	}
}
