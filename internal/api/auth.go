package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
)

// ErrBadToken indicates an sso_token cookie is present but undecodable.
var ErrBadToken = errors.New("api: invalid sso_token format")

// ssoToken is the decoded identity cookie set by the site's auth layer.
type ssoToken struct {
	UserID   string `json:"userId"`
	UserType string `json:"userType"`
}

// paying reports whether the token belongs to a paying subscriber.
func (t *ssoToken) paying() bool {
	return t != nil && t.UserType == "paying"
}

// ssoTokenFromRequest extracts and decodes the sso_token cookie.
// Returns (nil, nil) when the cookie is absent; ErrBadToken when it is
// present but not base64-wrapped JSON.
func ssoTokenFromRequest(r *http.Request) (*ssoToken, error) {
	c, err := r.Cookie("sso_token")
	if err != nil {
		return nil, nil
	}

	raw, err := base64.StdEncoding.DecodeString(c.Value)
	if err != nil {
		return nil, ErrBadToken
	}
	var token ssoToken
	if err := json.Unmarshal(raw, &token); err != nil {
		return nil, ErrBadToken
	}
	return &token, nil
}
