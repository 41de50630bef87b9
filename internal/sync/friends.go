package sync

import (
	"sort"

	"github.com/chatterbox-im/chatterbox/internal/store"
)

// FriendView is one peer's friendship as seen by the local user, merged
// from both edge directions.
type FriendView struct {
	PeerID   string
	Status   string
	Outgoing bool // true if the local user initiated the request
}

// MergeFriends merges the two directed edge sets into one view per peer.
// An accepted edge in either direction wins over a pending one; a blocked
// edge wins over everything. Duplicate accepted edges are a server-side
// concern (the friends table's unique constraint rejects them with a
// conflict), so no further client dedup happens here.
func MergeFriends(selfID string, edges []store.FriendEdge) []FriendView {
	rank := map[string]int{"declined": 0, "pending": 1, "accepted": 2, "blocked": 3}

	byPeer := make(map[string]FriendView)
	for _, e := range edges {
		v := FriendView{Status: e.Status}
		if e.UserID == selfID {
			v.PeerID = e.FriendID
			v.Outgoing = true
		} else if e.FriendID == selfID {
			v.PeerID = e.UserID
		} else {
			continue
		}
		if kept, ok := byPeer[v.PeerID]; ok && rank[kept.Status] >= rank[v.Status] {
			continue
		}
		byPeer[v.PeerID] = v
	}

	out := make([]FriendView, 0, len(byPeer))
	for _, v := range byPeer {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PeerID < out[j].PeerID })
	return out
}
