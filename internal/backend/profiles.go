package backend

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// Profiles guards profile creation with a keyed in-flight group: concurrent
// callers ensuring the same user id share one write instead of racing the
// store's uniqueness constraint. The group spans the process lifetime and
// forgets the key on completion regardless of outcome.
type Profiles struct {
	client *Client
	group  singleflight.Group
}

// NewProfiles creates the profile helper.
func NewProfiles(c *Client) *Profiles {
	return &Profiles{client: c}
}

// Fetch reads a profile by user id.
func (p *Profiles) Fetch(ctx context.Context, userID string) (*ProfileRow, error) {
	var rows []ProfileRow
	if err := p.client.Select(ctx, "profiles", Query{Filter: Filter{"id": Eq(userID)}, Limit: 1}, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &Error{Kind: KindNotFound, Op: "GET profiles", Message: "profile " + userID + " not found"}
	}
	return &rows[0], nil
}

// SetAvatar points a profile row at a newly uploaded avatar. The change
// propagates to other clients through the profiles feed scope.
func (p *Profiles) SetAvatar(ctx context.Context, userID, avatarURL string) error {
	return p.client.Update(ctx, "profiles",
		Filter{"id": Eq(userID)},
		map[string]string{"avatar_url": avatarURL}, nil)
}

// Ensure makes sure a profile row exists for userID, creating it if needed.
// A concurrent Ensure for the same id waits on the in-flight creation
// instead of issuing a duplicate insert.
func (p *Profiles) Ensure(ctx context.Context, userID, username string) error {
	_, err, _ := p.group.Do(userID, func() (any, error) {
		defer p.group.Forget(userID)

		_, err := p.Fetch(ctx, userID)
		if err == nil {
			return nil, nil
		}
		if !IsNotFound(err) {
			return nil, err
		}
		insertErr := p.client.Insert(ctx, "profiles", []ProfileRow{{ID: userID, Username: username}}, nil)
		if IsConflict(insertErr) {
			// Someone else created it between the read and the write.
			return nil, nil
		}
		return nil, insertErr
	})
	return err
}
