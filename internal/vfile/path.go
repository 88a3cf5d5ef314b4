// Package vfile implements the path-based stream façade (spec.md §4.8): it
// walks a slash-separated path down through cryptofs.Filesystem's
// find_by_name and exposes a conventional Open/Read/Write/Seek file handle
// on top of the inode the path resolves to.
package vfile

import (
	"strings"

	"github.com/cryptofs/cryptfs/internal/apferrors"
)

// splitPath implements spec.md §4.8's path-parsing rule: strip "." segments,
// split on "/", drop empty segments (so "././a//b/" resolves to
// ["a", "b"]). A literal ".." segment is rejected with InvalidInput; only
// "."-stripping and empty-segment collapsing are supported.
func splitPath(path string) ([]string, error) {
	raw := strings.Split(path, "/")
	segments := make([]string, 0, len(raw))
	for _, seg := range raw {
		if seg == "" || seg == "." {
			continue
		}
		if seg == ".." {
			return nil, apferrors.InvalidInput("path segment \"..\" is not supported")
		}
		segments = append(segments, seg)
	}
	if len(segments) == 0 {
		return nil, apferrors.InvalidInput("empty path")
	}
	return segments, nil
}
