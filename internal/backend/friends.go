package backend

import (
	"context"

	"github.com/chatterbox-im/chatterbox/internal/store"
)

// FetchFriendEdges reads both directions of the friendship graph for the
// current user. An edge is visible to a user only if they appear as either
// side; merging the two result sets is the sync layer's job.
func (c *Client) FetchFriendEdges(ctx context.Context) (outgoing, incoming []FriendRow, err error) {
	if err = c.Select(ctx, "friends", Query{Filter: Filter{"user_id": Eq(c.userID)}}, &outgoing); err != nil {
		return nil, nil, err
	}
	if err = c.Select(ctx, "friends", Query{Filter: Filter{"friend_id": Eq(c.userID)}}, &incoming); err != nil {
		return nil, nil, err
	}
	return outgoing, incoming, nil
}

// FetchFriends reads both directions of the friendship graph as cache edges.
func (c *Client) FetchFriends(ctx context.Context) ([]store.FriendEdge, error) {
	outgoing, incoming, err := c.FetchFriendEdges(ctx)
	if err != nil {
		return nil, err
	}
	edges := make([]store.FriendEdge, 0, len(outgoing)+len(incoming))
	for i := range outgoing {
		edges = append(edges, *outgoing[i].ToStoreEdge())
	}
	for i := range incoming {
		edges = append(edges, *incoming[i].ToStoreEdge())
	}
	return edges, nil
}

// SendFriendRequest creates a pending edge toward friendID. A duplicate
// request surfaces the store's uniqueness violation as a Conflict error.
func (c *Client) SendFriendRequest(ctx context.Context, friendID string) (*FriendRow, error) {
	if friendID == c.userID {
		return nil, validationError("POST friends", "cannot friend yourself")
	}
	var out []FriendRow
	row := FriendRow{UserID: c.userID, FriendID: friendID, Status: "pending"}
	if err := c.Insert(ctx, "friends", []FriendRow{row}, &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return &row, nil
	}
	return &out[0], nil
}

// RespondFriendRequest accepts, declines or blocks a pending request that
// was sent by requesterID to the current user.
func (c *Client) RespondFriendRequest(ctx context.Context, requesterID, status string) error {
	switch status {
	case "accepted", "declined", "blocked":
	default:
		return validationError("PATCH friends", "status must be accepted, declined or blocked")
	}
	return c.Update(ctx, "friends",
		Filter{"user_id": Eq(requesterID), "friend_id": Eq(c.userID)},
		map[string]string{"status": status}, nil)
}
