package telegrambot

import (
	"github.com/metroinfo/metrobot/accessibility"
)

type sessionKind int

const (
	sessionAddElement sessionKind = iota
	sessionEditField
	sessionReplace
)

// editSession is a multi-step edit waiting for the user's text input
type editSession struct {
	Kind     sessionKind
	Station  station
	Category accessibility.Category
	Field    string
}

func (b *Bot) setSession(c *conversation, s *editSession) {
	b.sessions.SetDefault(c.sessionKey(), s)
}

func (b *Bot) session(c *conversation) (*editSession, bool) {
	s, found := b.sessions.Get(c.sessionKey())
	if !found {
		return nil, false
	}
	return s.(*editSession), true
}

func (b *Bot) clearSession(c *conversation) {
	b.sessions.Delete(c.sessionKey())
}
