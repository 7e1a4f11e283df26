// Package mention derives participant handles and extracts @mentions from
// comment text.
package mention

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxHandleLength caps normalized handles.
const MaxHandleLength = 24

const fallbackHandle = "user"

// The leading group stands in for a look-behind: '@' must start the text or
// follow a character that cannot belong to a word or an address.
var mentionPattern = regexp.MustCompile(`(?:^|[^\p{L}\p{N}_@.])@([A-Za-z0-9]+)`)

// NormalizeHandle lowercases raw and keeps only ASCII letters and digits.
func NormalizeHandle(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(raw) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			if b.Len() >= MaxHandleLength {
				break
			}
		}
	}
	return b.String()
}

// DeriveHandle builds a handle from the display name, then the e-mail local
// part, then a fixed fallback. Handles are not unique; two participants may
// end up sharing one.
func DeriveHandle(displayName, email string) string {
	if h := NormalizeHandle(displayName); h != "" {
		return h
	}
	if at := strings.IndexByte(email, '@'); at > 0 {
		if h := NormalizeHandle(email[:at]); h != "" {
			return h
		}
	} else if h := NormalizeHandle(email); h != "" {
		return h
	}
	return fallbackHandle
}

// Snapshot is an immutable set of known handles, taken when a comment is
// being composed so roster changes cannot alter the result.
type Snapshot struct {
	handles map[string]struct{}
}

func NewSnapshot(handles ...string) Snapshot {
	set := make(map[string]struct{}, len(handles))
	for _, h := range handles {
		if n := NormalizeHandle(h); n != "" {
			set[n] = struct{}{}
		}
	}
	return Snapshot{handles: set}
}

func (s Snapshot) Has(handle string) bool {
	_, ok := s.handles[NormalizeHandle(handle)]
	return ok
}

func (s Snapshot) Len() int {
	return len(s.handles)
}

// Extract returns the known handles mentioned in text, in order of first
// appearance and without duplicates.
func (s Snapshot) Extract(text string) []string {
	found := []string{}
	if len(s.handles) == 0 {
		return found
	}

	seen := make(map[string]struct{})
	for _, loc := range mentionPattern.FindAllStringSubmatchIndex(text, -1) {
		start, end := loc[2], loc[3]
		if end < len(text) {
			next, _ := utf8.DecodeRuneInString(text[end:])
			if next == '_' || next == '@' || unicode.IsLetter(next) || unicode.IsDigit(next) {
				continue
			}
		}

		handle := strings.ToLower(text[start:end])
		if _, ok := s.handles[handle]; !ok {
			continue
		}
		if _, dup := seen[handle]; dup {
			continue
		}
		seen[handle] = struct{}{}
		found = append(found, handle)
	}
	return found
}

// Filter keeps only the handles present in the snapshot, normalized.
func (s Snapshot) Filter(handles []string) []string {
	out := []string{}
	seen := make(map[string]struct{})
	for _, h := range handles {
		n := NormalizeHandle(h)
		if _, ok := s.handles[n]; !ok {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// Extract is a convenience wrapper over a one-off snapshot.
func Extract(text string, handles []string) []string {
	return NewSnapshot(handles...).Extract(text)
}
