package sync

import (
	"sort"

	"github.com/chatterbox-im/chatterbox/internal/store"
)

// DedupeChats collapses raw chat rows to one chat per peer. The backend can
// surface several rows for the same peer (historical duplicates, group-less
// re-creations); the visible list keeps the one with the newest last message
// and sums the unread counts so no unread is lost. On equal last-message
// times the later row in the input wins.
//
// The result is sorted pinned-first, then by last message descending.
func DedupeChats(raw []store.Chat) []store.Chat {
	byPeer := make(map[string]*store.Chat, len(raw))
	order := make([]string, 0, len(raw))

	for i := range raw {
		c := raw[i]
		kept, ok := byPeer[c.PeerID]
		if !ok {
			byPeer[c.PeerID] = &c
			order = append(order, c.PeerID)
			continue
		}
		// Pin and unread survive the merge no matter which row wins.
		pinned := kept.IsPinned || c.IsPinned
		unread := kept.UnreadCount + c.UnreadCount
		if c.LastMessageAt >= kept.LastMessageAt {
			*kept = c
		}
		kept.IsPinned = pinned
		kept.UnreadCount = unread
	}

	out := make([]store.Chat, 0, len(order))
	for _, peer := range order {
		out = append(out, *byPeer[peer])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IsPinned != out[j].IsPinned {
			return out[i].IsPinned
		}
		return out[i].LastMessageAt > out[j].LastMessageAt
	})
	return out
}
