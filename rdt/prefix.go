package rdt

import "sort"

// LongestPrefix finds the longest run of items, sorted by key, that forms a
// gap-free byte range starting at exactly start: item[0].key == start,
// item[1].key == item[0].key + item[0].step, and so on. It returns the last
// item in that run. When pop is true, rest is the run's last item (the
// anchor) together with everything after the run — the run minus its
// already-consumed prefix, left to reconsider later; when pop is false,
// rest is the run itself, in order (the items now ready to act on).
//
// This is the Go rendering of the reference implementation's
// largest_contionus: the receiver uses it twice with different pop modes,
// once (pop=true) to compute the next cumulative ACK from the reorder set
// and discard the now-acknowledged entries, and once (pop=false) to find
// the next run of bytes ready for delivery while leaving the full pending
// set for the caller to prune itself.
//
// ok is false if no item's key equals start, meaning no progress is
// possible; last and rest are the zero value / nil in that case.
func LongestPrefix[T any](items []T, key func(T) Value, step func(T) Size, start Value, pop bool) (last T, rest []T, ok bool) {
	sorted := make([]T, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool { return key(sorted[i]) < key(sorted[j]) })

	runEnd := 0
	want := start
	for i, it := range sorted {
		if key(it) != want {
			break
		}
		want = key(it) + step(it)
		runEnd = i + 1
	}
	if runEnd == 0 {
		return last, nil, false
	}
	last = sorted[runEnd-1]
	ok = true
	if !pop {
		rest = make([]T, runEnd)
		copy(rest, sorted[:runEnd])
		return last, rest, ok
	}
	rest = make([]T, 0, len(sorted)-runEnd+1)
	rest = append(rest, sorted[runEnd-1:]...)
	return last, rest, ok
}
