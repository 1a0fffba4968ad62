package sync

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/cacs/pkg/config"
	"github.com/sidkik/cacs/pkg/errors"
	"github.com/sidkik/cacs/pkg/fsutil"
	"github.com/sidkik/cacs/pkg/jsondoc"
	"github.com/sidkik/cacs/pkg/mask"
)

// mergeFunc combines the document being written with the document it
// replaces, which is nil if the destination doesn't exist or isn't a JSON
// object.
type mergeFunc func(src, dst *jsondoc.Object) *jsondoc.Object

// writeToRepo copies the local target of item into the repository. Ignored
// fields in the local copy are never written.
func (sess *session) writeToRepo(item config.Item) error {
	protect := func(local, repo *jsondoc.Object) *jsondoc.Object {
		return mask.Protect(local, repo, item.IgnoreFields)
	}
	return sess.write(item, item.TargetPath, sess.repoPath(item), protect)
}

// writeToTarget copies the repository version of item over its local target.
// Ignored fields keep their local values.
func (sess *session) writeToTarget(item config.Item) error {
	keepLocal := func(repo, local *jsondoc.Object) *jsondoc.Object {
		return mask.Merge(repo, local, item.IgnoreFields)
	}
	return sess.write(item, sess.repoPath(item), item.TargetPath, keepLocal)
}

func (sess *session) write(item config.Item, src, dst string, merge mergeFunc) error {
	if item.HasIgnoreFields() {
		ok, err := writeMerged(sess.fs, src, dst, merge)
		if err != nil {
			return errors.WithContext(err, "write "+item.Name)
		}
		if ok {
			return nil
		}
		log.WithField("item", item.Name).WithField("path", src).Warn(
			"File isn't a JSON object, so its ignore_fields can't be applied. Copying it as is.")
	}

	if err := fsutil.Copy(sess.fs, src, dst); err != nil {
		return errors.WithContext(err, "copy "+item.Name)
	}
	return nil
}

// writeMerged writes merge(src, dst) to dst. It returns false without writing
// anything if src isn't a JSON object.
func writeMerged(fs afero.Fs, src, dst string, merge mergeFunc) (bool, error) {
	srcDoc, srcInfo, err := readObject(fs, src)
	if err != nil {
		return false, err
	}
	if srcDoc == nil {
		return false, nil
	}

	dstDoc, dstInfo, err := readObject(fs, dst)
	if err != nil {
		return false, err
	}

	contents, err := jsondoc.Marshal(merge(srcDoc, dstDoc))
	if err != nil {
		return false, errors.WithContext(err, "marshal")
	}

	// Keep the permissions of the file being replaced.
	mode := srcInfo.Mode().Perm()
	if dstInfo != nil {
		mode = dstInfo.Mode().Perm()
	}
	return true, fsutil.WriteFile(fs, dst, contents, mode)
}

// readObject parses the JSON object at path. The document is nil if the file
// isn't a JSON object, and both results are nil if it doesn't exist.
func readObject(fs afero.Fs, path string) (*jsondoc.Object, os.FileInfo, error) {
	info, err := fs.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, errors.IOError{Op: "stat", Path: path, Err: err}
	}

	contents, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, nil, errors.IOError{Op: "read", Path: path, Err: err}
	}

	doc, ok := jsondoc.ParseObject(contents)
	if !ok {
		return nil, info, nil
	}
	return doc, info, nil
}
