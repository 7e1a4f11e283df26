// Package merge reconciles two divergent edits of a section against their
// common ancestor. Merging is word based so that reported conflicts stay
// readable for writers.
package merge

import (
	"github.com/sergi/go-diff/diffmatchpatch"
)

// MaxConflictTokens bounds how many tokens a single reported conflict span
// may hold on any side. Longer conflicting regions are reported as several
// consecutive spans.
const MaxConflictTokens = 50

// Policy decides which side a true conflict resolves to.
type Policy string

const (
	PreferLocal  Policy = "prefer_local"
	PreferRemote Policy = "prefer_remote"
)

// Conflict captures one region where base, local and remote all differ.
type Conflict struct {
	BaseText   string `json:"base_text"`
	LocalText  string `json:"local_text"`
	RemoteText string `json:"remote_text"`
	// Offset is the rune offset of the span within the merged output.
	Offset int `json:"offset"`
}

// Result is always a usable document, even when conflicts were recorded.
type Result struct {
	Merged       string     `json:"merged"`
	Conflicts    []Conflict `json:"conflicts"`
	HasConflicts bool       `json:"has_conflicts"`
	Policy       Policy     `json:"policy"`
}

// Merger performs three-way merges with a fixed conflict policy.
type Merger struct {
	policy Policy
	dmp    *diffmatchpatch.DiffMatchPatch
}

func NewMerger(policy Policy) *Merger {
	if policy == "" {
		policy = PreferLocal
	}
	dmp := diffmatchpatch.New()
	// Deterministic output matters more than speed here.
	dmp.DiffTimeout = 0
	return &Merger{policy: policy, dmp: dmp}
}

// ThreeWay merges with the default prefer-local policy.
func ThreeWay(base, local, remote string) Result {
	return NewMerger(PreferLocal).Merge(base, local, remote)
}

func (m *Merger) Merge(base, local, remote string) Result {
	switch {
	case base == local:
		return Result{Merged: remote, Policy: m.policy}
	case base == remote:
		return Result{Merged: local, Policy: m.policy}
	case local == remote:
		return Result{Merged: local, Policy: m.policy}
	}

	b := Tokenize(base)
	l := Tokenize(local)
	r := Tokenize(remote)

	codec := newTokenCodec()
	ml := align(m.dmp, codec, b, l)
	mr := align(m.dmp, codec, b, r)

	w := &writer{policy: m.policy}

	i, j, k := 0, 0, 0
	for {
		// Stable token: all three streams agree at the current position.
		if i < len(b) && ml[i] == j && mr[i] == k {
			w.write(b[i])
			i, j, k = i+1, j+1, k+1
			continue
		}

		next := i
		for next < len(b) && (ml[next] < 0 || mr[next] < 0) {
			next++
		}
		nj, nk := len(l), len(r)
		if next < len(b) {
			nj, nk = ml[next], mr[next]
		}

		w.chunk(b[i:next], l[j:nj], r[k:nk])

		if next >= len(b) {
			break
		}
		i, j, k = next, nj, nk
	}

	return Result{
		Merged:       w.String(),
		Conflicts:    w.conflicts,
		HasConflicts: len(w.conflicts) > 0,
		Policy:       m.policy,
	}
}

type writer struct {
	policy    Policy
	out       []string
	runes     int
	conflicts []Conflict
}

func (w *writer) write(tokens ...string) {
	for _, t := range tokens {
		w.out = append(w.out, t)
		w.runes += len([]rune(t))
	}
}

func (w *writer) String() string {
	return join(w.out)
}

// chunk resolves an unstable region between two stable tokens.
func (w *writer) chunk(base, local, remote []string) {
	bs, ls, rs := join(base), join(local), join(remote)

	switch {
	case ls == bs:
		w.write(remote...)
	case rs == bs:
		w.write(local...)
	case ls == rs:
		w.write(local...)
	default:
		w.conflict(base, local, remote)
	}
}

func (w *writer) conflict(base, local, remote []string) {
	winner := local
	if w.policy == PreferRemote {
		winner = remote
	}

	longest := max(len(base), len(local), len(remote))
	offset := w.runes
	for start := 0; start < longest; start += MaxConflictTokens {
		c := Conflict{
			BaseText:   join(window(base, start)),
			LocalText:  join(window(local, start)),
			RemoteText: join(window(remote, start)),
			Offset:     offset,
		}
		w.conflicts = append(w.conflicts, c)
		offset += len([]rune(join(window(winner, start))))
	}

	w.write(winner...)
}

func window(tokens []string, start int) []string {
	if start >= len(tokens) {
		return nil
	}
	end := start + MaxConflictTokens
	if end > len(tokens) {
		end = len(tokens)
	}
	return tokens[start:end]
}
