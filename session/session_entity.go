package session

import (
	"context"
	"sqlreview/authority"
	"time"

	"github.com/fundwit/go-commons/types"
)

type Session struct {
	Token          string                   `json:"token"`
	Identity       Identity                 `json:"identity"`
	Perms          authority.Permissions    `json:"perms"`
	AuthGroups     authority.AuthGroups     `json:"authGroups"`
	ResourceGroups authority.ResourceGroups `json:"resourceGroups"`

	SigningTime time.Time `json:"-"`

	Context context.Context `json:"-"`
}

type Identity struct {
	ID       types.ID `json:"id"`
	Name     string   `json:"name"`
	Nickname string   `json:"nickname"`
}

func (i Identity) DisplayName() string {
	if i.Nickname != "" {
		return i.Nickname
	}
	return i.Name
}

func (s *Session) Clone() Session {
	c := *s
	c.Perms = append(authority.Permissions{}, s.Perms...)
	c.AuthGroups = append(authority.AuthGroups{}, s.AuthGroups...)
	c.ResourceGroups = append(authority.ResourceGroups{}, s.ResourceGroups...)
	return c
}

// Ctx never returns nil, so it can be passed straight to blocking calls.
func (s *Session) Ctx() context.Context {
	if s == nil || s.Context == nil {
		return context.Background()
	}
	return s.Context
}
