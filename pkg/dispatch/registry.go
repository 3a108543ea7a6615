// Package dispatch routes unsolicited frames to registered handlers.
//
// Handlers are grouped by category and kept in registration order. A frame
// passes through a fixed pipeline: raw hooks, upload waiters, message
// notifications, reaction changes, chat updates. Each stage recovers from
// handler errors and panics on its own, so one failing handler never stops
// the frame from reaching the next stage.
package dispatch

import (
	"context"
	"sync"

	"github.com/lightforgemedia/go-maxclient/pkg/protocol"
	"github.com/lightforgemedia/go-maxclient/pkg/types"
)

// Category is a handler group.
type Category int

const (
	CategoryRaw Category = iota
	CategoryMessage
	CategoryMessageEdit
	CategoryMessageDelete
	CategoryReaction
	CategoryChatUpdate
)

func (c Category) String() string {
	switch c {
	case CategoryRaw:
		return "raw"
	case CategoryMessage:
		return "message"
	case CategoryMessageEdit:
		return "message_edit"
	case CategoryMessageDelete:
		return "message_delete"
	case CategoryReaction:
		return "reaction"
	case CategoryChatUpdate:
		return "chat_update"
	}
	return "unknown"
}

type (
	MessageHandler  func(ctx context.Context, m *types.Message) error
	ReactionHandler func(ctx context.Context, messageID types.ID, chatID int64, info types.ReactionInfo) error
	ChatHandler     func(ctx context.Context, c *types.Chat) error
	RawHandler      func(ctx context.Context, f *protocol.Frame) error
)

// MessageFilter selects which messages a handler sees. A nil filter accepts all.
type MessageFilter func(m *types.Message) bool

// HandlerOption modifies a single registration.
type HandlerOption func(*registration)

// WithFilter attaches a predicate to a message handler. It is ignored for
// other categories.
func WithFilter(f MessageFilter) HandlerOption {
	return func(r *registration) { r.filter = f }
}

// Detached runs the handler as a supervised background task instead of
// inline. The pipeline does not wait for it, so its completion order relative
// to later frames is not defined.
func Detached() HandlerOption {
	return func(r *registration) { r.detached = true }
}

// WithName labels the handler in logs and task names.
func WithName(name string) HandlerOption {
	return func(r *registration) { r.name = name }
}

type registration struct {
	name     string
	filter   MessageFilter
	detached bool
	call     func(ctx context.Context, arg any) error
}

// Registry holds handler registrations. It is append-only and safe for
// concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[Category][]*registration
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[Category][]*registration)}
}

func (r *Registry) add(c Category, call func(context.Context, any) error, opts []HandlerOption) {
	reg := &registration{call: call}
	for _, opt := range opts {
		opt(reg)
	}
	if reg.name == "" {
		reg.name = c.String()
	}
	r.mu.Lock()
	r.handlers[c] = append(r.handlers[c], reg)
	r.mu.Unlock()
}

func (r *Registry) snapshot(c Category) []*registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[c]
}

// Len reports how many handlers are registered for c.
func (r *Registry) Len(c Category) int {
	return len(r.snapshot(c))
}

func messageCall(h MessageHandler) func(context.Context, any) error {
	return func(ctx context.Context, arg any) error { return h(ctx, arg.(*types.Message)) }
}

// OnMessage registers h for new messages.
func (r *Registry) OnMessage(h MessageHandler, opts ...HandlerOption) {
	r.add(CategoryMessage, messageCall(h), opts)
}

// OnMessageEdit registers h for edited messages.
func (r *Registry) OnMessageEdit(h MessageHandler, opts ...HandlerOption) {
	r.add(CategoryMessageEdit, messageCall(h), opts)
}

// OnMessageDelete registers h for removed messages.
func (r *Registry) OnMessageDelete(h MessageHandler, opts ...HandlerOption) {
	r.add(CategoryMessageDelete, messageCall(h), opts)
}

// OnReactionChange registers h for reaction updates.
func (r *Registry) OnReactionChange(h ReactionHandler, opts ...HandlerOption) {
	r.add(CategoryReaction, func(ctx context.Context, arg any) error {
		u := arg.(*types.ReactionUpdate)
		return h(ctx, u.MessageID, u.ChatID, u.Info)
	}, opts)
}

// OnChatUpdate registers h for NOTIF_CHAT frames.
func (r *Registry) OnChatUpdate(h ChatHandler, opts ...HandlerOption) {
	r.add(CategoryChatUpdate, func(ctx context.Context, arg any) error {
		return h(ctx, arg.(*types.Chat))
	}, opts)
}

// OnRawReceive registers h for every unsolicited frame.
func (r *Registry) OnRawReceive(h RawHandler, opts ...HandlerOption) {
	r.add(CategoryRaw, func(ctx context.Context, arg any) error {
		return h(ctx, arg.(*protocol.Frame))
	}, opts)
}
