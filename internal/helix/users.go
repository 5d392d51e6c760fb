package helix

import (
	"context"
	"fmt"
	"net/url"
)

// User is a Twitch account as returned by the users endpoint.
type User struct {
	ID          string `json:"id"`
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`
}

type usersResponse struct {
	Data []User `json:"data"`
}

// UserByLogin resolves a login name to its account record.
func (c *Client) UserByLogin(ctx context.Context, login string) (User, error) {
	query := url.Values{}
	query.Set("login", login)

	var resp usersResponse
	if err := c.get(ctx, "/users", query, &resp); err != nil {
		return User{}, err
	}
	if len(resp.Data) == 0 {
		return User{}, fmt.Errorf("no such user: %s", login)
	}

	return resp.Data[0], nil
}
