package client

import "github.com/lightforgemedia/go-maxclient/pkg/dispatch"

// Registration is additive: handlers stay registered for the client's
// lifetime and run in registration order.

// OnMessage registers h for new messages.
func (c *Client) OnMessage(h dispatch.MessageHandler, opts ...dispatch.HandlerOption) {
	c.registry.OnMessage(h, opts...)
}

// OnMessageEdit registers h for edited messages.
func (c *Client) OnMessageEdit(h dispatch.MessageHandler, opts ...dispatch.HandlerOption) {
	c.registry.OnMessageEdit(h, opts...)
}

// OnMessageDelete registers h for removed messages.
func (c *Client) OnMessageDelete(h dispatch.MessageHandler, opts ...dispatch.HandlerOption) {
	c.registry.OnMessageDelete(h, opts...)
}

// OnReactionChange registers h for reaction updates.
func (c *Client) OnReactionChange(h dispatch.ReactionHandler, opts ...dispatch.HandlerOption) {
	c.registry.OnReactionChange(h, opts...)
}

// OnChatUpdate registers h for chat updates.
func (c *Client) OnChatUpdate(h dispatch.ChatHandler, opts ...dispatch.HandlerOption) {
	c.registry.OnChatUpdate(h, opts...)
}

// OnRawReceive registers h for every frame that is not a reply.
func (c *Client) OnRawReceive(h dispatch.RawHandler, opts ...dispatch.HandlerOption) {
	c.registry.OnRawReceive(h, opts...)
}
