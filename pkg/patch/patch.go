// Package patch encodes section edits as diff-match-patch text so that only
// the changed region travels over the wire.
package patch

import (
	"errors"
	"fmt"

	"github.com/sergi/go-diff/diffmatchpatch"
)

var ErrMalformedPatch = errors.New("malformed patch")

func newDMP() *diffmatchpatch.DiffMatchPatch {
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0
	return dmp
}

// Make returns the textual patch turning prev into next. It is empty when
// the two contents are equal.
func Make(prev, next string) string {
	if prev == next {
		return ""
	}
	dmp := newDMP()
	diffs := dmp.DiffMain(prev, next, false)
	diffs = dmp.DiffCleanupEfficiency(diffs)
	patches := dmp.PatchMake(prev, diffs)
	return dmp.PatchToText(patches)
}

// Apply applies patchText to content. ok is false when at least one hunk
// could not be placed; the returned text then holds a partial result and
// callers should fall back to a full content replacement or a merge.
func Apply(patchText, content string) (result string, ok bool, err error) {
	if patchText == "" {
		return content, true, nil
	}

	dmp := newDMP()
	patches, err := dmp.PatchFromText(patchText)
	if err != nil {
		return content, false, fmt.Errorf("%w: %v", ErrMalformedPatch, err)
	}

	result, applied := dmp.PatchApply(patches, content)
	for _, hunkOK := range applied {
		if !hunkOK {
			return result, false, nil
		}
	}
	return result, true, nil
}
