package client

import (
	"log/slog"
	"sync"

	"github.com/lightforgemedia/go-maxclient/pkg/types"
)

// cache holds the entities learned during sync and kept fresh by
// chat-update notifications.
type cache struct {
	mu       sync.RWMutex
	dialogs  []*types.Chat
	chats    []*types.Chat
	channels []*types.Chat
	contacts []*types.User
	me       *types.User
	byChat   map[int64]*types.Chat
	users    map[int64]*types.User
}

func (c *cache) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dialogs, c.chats, c.channels, c.contacts = nil, nil, nil, nil
	c.me = nil
	c.byChat = make(map[int64]*types.Chat)
	c.users = make(map[int64]*types.User)
}

// addChat files chat under its type. Unknown types are indexed but not listed.
func (c *cache) addChat(chat *types.Chat) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byChat[chat.ID] = chat
	switch chat.Type {
	case types.ChatDialog:
		c.dialogs = append(c.dialogs, chat)
	case types.ChatGroup:
		c.chats = append(c.chats, chat)
	case types.ChatChannel:
		c.channels = append(c.channels, chat)
	}
}

// upsertChat replaces a known chat in place or adds a new one.
func (c *cache) upsertChat(chat *types.Chat) {
	c.mu.Lock()
	old, ok := c.byChat[chat.ID]
	if ok {
		c.byChat[chat.ID] = chat
		for _, list := range [][]*types.Chat{c.dialogs, c.chats, c.channels} {
			for i := range list {
				if list[i] == old {
					list[i] = chat
				}
			}
		}
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.addChat(chat)
}

func (c *cache) addContact(u *types.User) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.contacts = append(c.contacts, u)
	c.users[u.ID] = u
}

func (c *cache) setMe(u *types.User) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.me = u
	c.users[u.ID] = u
}

func (c *cache) logValue() slog.Value {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slog.GroupValue(
		slog.Int("dialogs", len(c.dialogs)),
		slog.Int("chats", len(c.chats)),
		slog.Int("channels", len(c.channels)),
		slog.Int("contacts", len(c.contacts)),
	)
}

func cloneChats(in []*types.Chat) []*types.Chat {
	return append([]*types.Chat(nil), in...)
}

// Dialogs returns the one-to-one conversations from the last sync.
func (c *Client) Dialogs() []*types.Chat {
	c.cache.mu.RLock()
	defer c.cache.mu.RUnlock()
	return cloneChats(c.cache.dialogs)
}

// Chats returns the group chats from the last sync.
func (c *Client) Chats() []*types.Chat {
	c.cache.mu.RLock()
	defer c.cache.mu.RUnlock()
	return cloneChats(c.cache.chats)
}

// Channels returns the channels from the last sync.
func (c *Client) Channels() []*types.Chat {
	c.cache.mu.RLock()
	defer c.cache.mu.RUnlock()
	return cloneChats(c.cache.channels)
}

// Contacts returns the contacts from the last sync.
func (c *Client) Contacts() []*types.User {
	c.cache.mu.RLock()
	defer c.cache.mu.RUnlock()
	return append([]*types.User(nil), c.cache.contacts...)
}

// Me returns the session's own profile, or nil before sync.
func (c *Client) Me() *types.User {
	c.cache.mu.RLock()
	defer c.cache.mu.RUnlock()
	return c.cache.me
}

// Chat looks up a cached dialog, chat or channel by id.
func (c *Client) Chat(id int64) (*types.Chat, bool) {
	c.cache.mu.RLock()
	defer c.cache.mu.RUnlock()
	chat, ok := c.cache.byChat[id]
	return chat, ok
}

// User looks up a cached contact or the own profile by id.
func (c *Client) User(id int64) (*types.User, bool) {
	c.cache.mu.RLock()
	defer c.cache.mu.RUnlock()
	u, ok := c.cache.users[id]
	return u, ok
}
