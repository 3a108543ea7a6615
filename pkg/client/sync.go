package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lightforgemedia/go-maxclient/pkg/protocol"
	"github.com/lightforgemedia/go-maxclient/pkg/types"
)

type syncRequest struct {
	Interactive  bool      `json:"interactive"`
	Token        string    `json:"token"`
	ChatsSync    int64     `json:"chatsSync"`
	ContactsSync int64     `json:"contactsSync"`
	PresenceSync int64     `json:"presenceSync"`
	DraftsSync   int64     `json:"draftsSync"`
	ChatsCount   int       `json:"chatsCount"`
	UserAgent    UserAgent `json:"userAgent"`
}

type syncResponse struct {
	Chats    []json.RawMessage `json:"chats"`
	Contacts []json.RawMessage `json:"contacts"`
	Profile  struct {
		Contact json.RawMessage `json:"contact"`
	} `json:"profile"`
}

// Sync logs in with the token and fills the dialog, chat, channel, contact
// and profile caches. A broken entry is skipped. A failed request closes the
// session, since nothing cached can be trusted without it.
func (c *Client) Sync(ctx context.Context) error {
	sess, err := c.current()
	if err != nil || !c.advance(sess, StateSyncing) {
		return fmt.Errorf("client: sync: %w", protocol.ErrNotConnected)
	}
	log := c.config.logger.With("client_id", c.id)
	log.Info("Starting initial sync")

	resp, err := c.SendAndWait(ctx, protocol.OpLogin, syncRequest{
		Interactive: true,
		Token:       c.config.token,
		ChatsCount:  c.config.chatsCount,
		UserAgent:   c.config.userAgent,
	}, 0, c.config.requestTimeout)
	if err == nil {
		err = c.applySync(resp)
	}
	if err != nil {
		log.Error("Sync failed", "error", err)
		_ = c.teardown(sess, err)
		return fmt.Errorf("client: sync: %w", err)
	}

	if !c.advance(sess, StateConnected) {
		return fmt.Errorf("client: sync: %w", protocol.ErrNotConnected)
	}
	log.Info("Sync completed", "cache", c.cache.logValue())
	return nil
}

func (c *Client) applySync(resp *protocol.Frame) error {
	var payload syncResponse
	if err := resp.DecodePayload(&payload); err != nil {
		return err
	}

	c.cache.reset()
	for _, raw := range payload.Chats {
		chat, err := types.DecodeChat(raw)
		if err != nil {
			c.metrics.ParseError()
			c.config.logger.Warn("Skipping chat entry", "error", err)
			continue
		}
		c.cache.addChat(chat)
	}
	for _, raw := range payload.Contacts {
		u, err := types.DecodeUser(raw)
		if err != nil {
			c.metrics.ParseError()
			c.config.logger.Warn("Skipping contact entry", "error", err)
			continue
		}
		c.cache.addContact(u)
	}
	if len(payload.Profile.Contact) > 0 && string(payload.Profile.Contact) != "null" {
		me, err := types.DecodeUser(payload.Profile.Contact)
		if err != nil {
			c.config.logger.Warn("Skipping profile", "error", err)
		} else {
			c.cache.setMe(me)
		}
	}
	return nil
}
