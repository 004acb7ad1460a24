// Package statevector implements a range-based state vector: for each
// peer, the set of Lamport counters a replica has applied, kept as a
// sorted list of non-overlapping, non-adjacent ranges. A Diff between two
// state vectors is the input to a sync delta request.
package statevector

import (
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/cuemby/reptree/pkg/types"
)

// fanOutThreshold is the peer count above which Diff parallelizes the
// per-peer subtraction across goroutines instead of running it inline.
const fanOutThreshold = 8

// StateVector tracks, per peer, which Lamport counters have been applied.
type StateVector struct {
	ranges map[types.PeerId][]types.Range
}

// New returns an empty state vector.
func New() *StateVector {
	return &StateVector{ranges: make(map[types.PeerId][]types.Range)}
}

// FromRanges builds a state vector from an already-normalized range map,
// as received over the wire from a peer.
func FromRanges(ranges map[types.PeerId][]types.Range) *StateVector {
	if ranges == nil {
		ranges = make(map[types.PeerId][]types.Range)
	}
	return &StateVector{ranges: ranges}
}

// Add records that counter has been applied for peerID, extending or
// merging an existing range where possible.
func (sv *StateVector) Add(peerID types.PeerId, counter uint64) {
	ranges := sv.ranges[peerID]

	extended := false
	for i := range ranges {
		r := &ranges[i]
		switch {
		case r.End+1 == counter:
			r.End = counter
			extended = true
		case counter+1 == r.Start:
			r.Start = counter
			extended = true
		case counter >= r.Start && counter <= r.End:
			extended = true
		}
		if extended {
			break
		}
	}

	if !extended {
		ranges = append(ranges, types.Range{PeerID: peerID, Start: counter, End: counter})
	}

	sv.ranges[peerID] = ranges
	sv.normalize(peerID)
}

// normalize sorts a peer's ranges by start and merges any that overlap or
// are adjacent (current.End+1 >= next.Start).
func (sv *StateVector) normalize(peerID types.PeerId) {
	ranges, ok := sv.ranges[peerID]
	if !ok {
		return
	}

	sort.Slice(ranges, func(i, j int) bool { return ranges[i].Start < ranges[j].Start })

	i := 0
	for i < len(ranges)-1 {
		current := ranges[i]
		next := ranges[i+1]
		if current.End+1 >= next.Start {
			merged := types.Range{
				PeerID: peerID,
				Start:  current.Start,
				End:    max(current.End, next.End),
			}
			ranges[i] = merged
			ranges = append(ranges[:i+1], ranges[i+2:]...)
		} else {
			i++
		}
	}

	sv.ranges[peerID] = ranges
}

// GetRanges returns a copy of the full peer -> ranges map, suitable for
// sending over the wire.
func (sv *StateVector) GetRanges() map[types.PeerId][]types.Range {
	out := make(map[types.PeerId][]types.Range, len(sv.ranges))
	for peerID, ranges := range sv.ranges {
		cp := make([]types.Range, len(ranges))
		copy(cp, ranges)
		out[peerID] = cp
	}
	return out
}

// Contains reports whether counter has already been recorded for peerID —
// used by the replica engine to make re-applying an operation it has
// already seen a no-op rather than a duplicate log append.
func (sv *StateVector) Contains(peerID types.PeerId, counter uint64) bool {
	for _, r := range sv.ranges[peerID] {
		if counter >= r.Start && counter <= r.End {
			return true
		}
	}
	return false
}

// Diff returns the ranges this state vector has that other does not —
// the directional delta that tells a peer what to request in a sync round.
func (sv *StateVector) Diff(other *StateVector) []types.Range {
	if len(sv.ranges) > fanOutThreshold {
		return sv.diffConcurrent(other)
	}
	return sv.diffSequential(other)
}

func (sv *StateVector) diffSequential(other *StateVector) []types.Range {
	var result []types.Range
	for peerID, ourRanges := range sv.ranges {
		result = append(result, diffPeer(peerID, ourRanges, other.ranges[peerID])...)
	}
	return result
}

// diffConcurrent computes the same result as diffSequential but fans the
// per-peer subtraction out across goroutines via errgroup, each writing
// into its own slot so no lock is needed on the shared result.
func (sv *StateVector) diffConcurrent(other *StateVector) []types.Range {
	peers := make([]types.PeerId, 0, len(sv.ranges))
	for peerID := range sv.ranges {
		peers = append(peers, peerID)
	}

	perPeer := make([][]types.Range, len(peers))
	var g errgroup.Group
	for i, peerID := range peers {
		i, peerID := i, peerID
		g.Go(func() error {
			perPeer[i] = diffPeer(peerID, sv.ranges[peerID], other.ranges[peerID])
			return nil
		})
	}
	_ = g.Wait() // diffPeer never errors; Wait only for the barrier

	var result []types.Range
	for _, rs := range perPeer {
		result = append(result, rs...)
	}
	return result
}

// diffPeer returns the parts of ourRanges not covered by theirRanges,
// splitting each of our ranges against every one of theirs in turn.
func diffPeer(peerID types.PeerId, ourRanges, theirRanges []types.Range) []types.Range {
	var result []types.Range

	for _, ourRange := range ourRanges {
		remaining := []types.Range{ourRange}

		for _, theirRange := range theirRanges {
			var newRemaining []types.Range

			for _, r := range remaining {
				switch {
				case r.End < theirRange.Start:
					newRemaining = append(newRemaining, r)
				case r.Start > theirRange.End:
					newRemaining = append(newRemaining, r)
				default:
					if r.Start < theirRange.Start {
						newRemaining = append(newRemaining, types.Range{
							PeerID: peerID,
							Start:  r.Start,
							End:    theirRange.Start - 1,
						})
					}
					if r.End > theirRange.End {
						newRemaining = append(newRemaining, types.Range{
							PeerID: peerID,
							Start:  theirRange.End + 1,
							End:    r.End,
						})
					}
				}
			}

			remaining = newRemaining
		}

		result = append(result, remaining...)
	}

	return result
}
