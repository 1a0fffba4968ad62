// Package mask excludes JSON fields from synchronization. Fields are named by
// dot separated key paths, such as "env.ANTHROPIC_API_KEY". Only object keys
// are addressable; a path that runs into a non-object value is skipped.
//
// None of the functions in this package mutate their inputs.
package mask

import (
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/sidkik/cacs/pkg/errors"
	"github.com/sidkik/cacs/pkg/jsondoc"
)

// Project returns a copy of doc with the value at each path removed. The
// result is only meant to be compared, never written back.
func Project(doc *jsondoc.Object, paths []string) *jsondoc.Object {
	result := jsondoc.Clone(doc).(*jsondoc.Object)
	for _, path := range paths {
		parent, key, err := walk(result, path, false)
		if err != nil {
			logSkipped(err)
			continue
		}
		if parent != nil {
			parent.Delete(key)
		}
	}
	return result
}

// Merge returns a copy of incoming in which the value at each path is taken
// from existing. Paths that existing doesn't hold keep the incoming value.
// Intermediate objects that incoming lacks are created.
func Merge(incoming, existing *jsondoc.Object, paths []string) *jsondoc.Object {
	result := jsondoc.Clone(incoming).(*jsondoc.Object)
	if existing == nil {
		return result
	}

	for _, path := range paths {
		val, ok, err := lookup(existing, path)
		if err != nil {
			logSkipped(err)
			continue
		}
		if !ok {
			continue
		}

		parent, key, err := walk(result, path, true)
		if err != nil {
			logSkipped(err)
			continue
		}
		parent.Set(key, jsondoc.Clone(val))
	}
	return result
}

// Protect returns the version of local that may be written to the
// repository: ignored values already in repo are kept, and ignored values that
// repo doesn't hold are left out rather than published. repo may be nil if
// the repository has no copy yet.
func Protect(local, repo *jsondoc.Object, paths []string) *jsondoc.Object {
	return Merge(Project(local, paths), repo, paths)
}

// lookup returns the value at path in doc.
func lookup(doc *jsondoc.Object, path string) (jsondoc.Value, bool, error) {
	parent, key, err := walk(doc, path, false)
	if err != nil || parent == nil {
		return nil, false, err
	}
	val, ok := parent.Get(key)
	return val, ok, nil
}

// walk resolves every segment of path except the last, and returns the object
// that holds the final key. If create is false and an intermediate key is
// missing, walk returns a nil parent. If create is true, missing intermediate
// objects are added to doc. Walking through a value that isn't an object is
// an InvalidPath error.
func walk(doc *jsondoc.Object, path string, create bool) (*jsondoc.Object, string, error) {
	segments := strings.Split(path, ".")
	for _, seg := range segments {
		if seg == "" {
			return nil, "", errors.InvalidPath{Path: path, Segment: seg}
		}
	}

	curr := doc
	for _, seg := range segments[:len(segments)-1] {
		next, ok := curr.Get(seg)
		if !ok {
			if !create {
				return nil, "", nil
			}
			obj := jsondoc.NewObject()
			curr.Set(seg, obj)
			curr = obj
			continue
		}

		obj, ok := next.(*jsondoc.Object)
		if !ok {
			return nil, "", errors.InvalidPath{Path: path, Segment: seg}
		}
		curr = obj
	}
	return curr, segments[len(segments)-1], nil
}

func logSkipped(err error) {
	log.WithError(err).Debug("Skipping ignore field")
}
