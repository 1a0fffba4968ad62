package diff

import (
	"crypto/sha512"
	"encoding/base64"
	"io"
	"path/filepath"

	"github.com/sidkik/cacs/pkg/config"
	"github.com/sidkik/cacs/pkg/errors"
	"github.com/sidkik/cacs/pkg/fsutil"
	"github.com/sidkik/cacs/pkg/jsondoc"
	"github.com/sidkik/cacs/pkg/mask"
)

// Digests returns the digest of every file of the item rooted at path, keyed
// the same way as a Baseline. A missing path has no digests.
func (e Engine) Digests(path string, item config.Item) (Baseline, error) {
	digests := Baseline{}
	if item.Type != config.Directory {
		exists, err := fsutil.Exists(e.fs, path)
		if err != nil || !exists {
			return digests, err
		}

		digest, err := e.digest(path, item)
		if err != nil {
			return nil, err
		}
		digests[FileKey] = digest
		return digests, nil
	}

	files, err := fsutil.ListFiles(e.fs, path)
	if err != nil {
		return nil, err
	}
	for _, rel := range files {
		digest, err := e.HashFile(filepath.Join(path, filepath.FromSlash(rel)))
		if err != nil {
			return nil, err
		}
		digests[rel] = digest
	}
	return digests, nil
}

// digest hashes the comparable form of a file. For JSON objects with ignored
// fields, that's the canonical encoding of the document without those fields,
// so that changes to ignored fields don't change the digest.
func (e Engine) digest(path string, item config.Item) (string, error) {
	if !item.HasIgnoreFields() {
		return e.HashFile(path)
	}

	doc, ok, err := e.readObject(path)
	if err != nil {
		return "", err
	}
	if !ok {
		return e.HashFile(path)
	}

	hasher := sha512.New()
	hasher.Write(jsondoc.Canonical(mask.Project(doc, item.IgnoreFields)))
	return base64.StdEncoding.EncodeToString(hasher.Sum(nil)), nil
}

// HashFile returns the sha512 hash of the file at the given path.
func (e Engine) HashFile(path string) (string, error) {
	f, err := e.fs.Open(path)
	if err != nil {
		return "", errors.IOError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()

	hasher := sha512.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", errors.IOError{Op: "read", Path: path, Err: err}
	}

	return base64.StdEncoding.EncodeToString(hasher.Sum(nil)), nil
}
