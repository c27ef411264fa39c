package channel

import (
	"strings"

	"github.com/flemzord/omnihear/pkg/message"
)

// Wildcard in the user list admits every sender.
const Wildcard = "*"

// AllowList controls which users and groups may use a channel. An empty
// AllowList denies everyone; a public bot lists Wildcard explicitly.
type AllowList struct {
	all    bool
	users  map[string]struct{}
	groups map[string]struct{}
}

// NewAllowList builds an AllowList. Entries are trimmed and lowercased.
func NewAllowList(users, groups []string) *AllowList {
	a := &AllowList{
		users:  make(map[string]struct{}, len(users)),
		groups: make(map[string]struct{}, len(groups)),
	}
	for _, u := range users {
		key := normalize(u)
		if key == Wildcard {
			a.all = true
			continue
		}
		a.users[key] = struct{}{}
	}
	for _, g := range groups {
		a.groups[normalize(g)] = struct{}{}
	}
	return a
}

// IsAllowed reports whether the sender or the chat of msg is admitted.
func (a *AllowList) IsAllowed(msg message.InboundMessage) bool {
	switch {
	case a == nil:
		return false
	case a.all:
		return true
	}
	if _, ok := a.users[normalize(msg.Sender.ID)]; ok {
		return true
	}
	if msg.Sender.Username != "" {
		if _, ok := a.users[normalize("@"+msg.Sender.Username)]; ok {
			return true
		}
	}
	_, ok := a.groups[normalize(msg.Chat.ID)]
	return ok
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
