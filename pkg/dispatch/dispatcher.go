package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/lightforgemedia/go-maxclient/pkg/metrics"
	"github.com/lightforgemedia/go-maxclient/pkg/protocol"
	"github.com/lightforgemedia/go-maxclient/pkg/types"
)

// Spawner runs fn as a supervised background task.
type Spawner interface {
	Go(name string, fn func(ctx context.Context) error)
}

// Acker sends message receipts. RequiresAck reports whether the current
// transport expects them at all.
type Acker interface {
	RequiresAck() bool
	AckMessage(ctx context.Context, chatID int64, messageID types.ID) error
}

// UploadResolver completes a pending upload wait. correlation.Waiters
// satisfies it.
type UploadResolver interface {
	Resolve(id int64, f *protocol.Frame) bool
}

// Dispatcher runs the incoming pipeline for frames that are not replies.
type Dispatcher struct {
	registry *Registry
	uploads  UploadResolver
	acker    Acker
	spawner  Spawner
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

func WithUploads(u UploadResolver) Option { return func(d *Dispatcher) { d.uploads = u } }
func WithAcker(a Acker) Option            { return func(d *Dispatcher) { d.acker = a } }
func WithSpawner(s Spawner) Option        { return func(d *Dispatcher) { d.spawner = s } }
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// New returns a dispatcher over reg.
func New(reg *Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{registry: reg, logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch passes f through every pipeline stage in order.
func (d *Dispatcher) Dispatch(ctx context.Context, f *protocol.Frame) {
	for _, stage := range []struct {
		name string
		run  func(context.Context, *protocol.Frame)
	}{
		{"raw", d.handleRaw},
		{"upload", d.handleUpload},
		{"message", d.handleMessage},
		{"reaction", d.handleReaction},
		{"chat", d.handleChat},
	} {
		d.runStage(ctx, stage.name, stage.run, f)
	}
}

func (d *Dispatcher) runStage(ctx context.Context, name string, run func(context.Context, *protocol.Frame), f *protocol.Frame) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Panic in dispatch stage",
				"stage", name, "opcode", f.Opcode, "seq", f.Seq,
				"panic", r, "stack", string(debug.Stack()))
		}
	}()
	run(ctx, f)
}

func (d *Dispatcher) handleRaw(ctx context.Context, f *protocol.Frame) {
	for _, r := range d.registry.snapshot(CategoryRaw) {
		d.invoke(ctx, CategoryRaw, r, f)
	}
}

func (d *Dispatcher) handleUpload(_ context.Context, f *protocol.Frame) {
	if f.Opcode != protocol.OpNotifAttach || d.uploads == nil {
		return
	}
	var p map[string]json.RawMessage
	if err := f.DecodePayload(&p); err != nil {
		d.logger.Warn("Invalid attach notification", "seq", f.Seq, "error", err)
		return
	}
	for _, key := range []string{"fileId", "videoId"} {
		raw, ok := p[key]
		if !ok {
			continue
		}
		var id types.ID
		if err := json.Unmarshal(raw, &id); err != nil {
			d.logger.Debug("Ignoring attach id", "key", key, "seq", f.Seq, "error", err)
			continue
		}
		n, ok := id.Int64()
		if !ok {
			d.logger.Debug("Ignoring non-numeric attach id", "key", key, "id", id)
			continue
		}
		if d.uploads.Resolve(n, f) {
			d.logger.Debug("Fulfilled upload waiter", "id", n)
		}
	}
}

func (d *Dispatcher) handleMessage(ctx context.Context, f *protocol.Frame) {
	if f.Opcode != protocol.OpNotifMessage {
		return
	}
	msg, err := types.DecodeMessage(f.Payload)
	if err != nil {
		d.metrics.ParseError()
		d.logger.Warn("Dropping undecodable message notification", "seq", f.Seq, "error", err)
		return
	}

	if msg.ChatID != 0 && msg.ID != "" && d.acker != nil && d.acker.RequiresAck() {
		if err := d.acker.AckMessage(ctx, msg.ChatID, msg.ID); err != nil {
			d.logger.Warn("Failed to acknowledge message",
				"chat_id", msg.ChatID, "message_id", msg.ID, "error", err)
		}
	}

	var c Category
	switch msg.Status {
	case "":
		c = CategoryMessage
	case types.StatusEdited:
		c = CategoryMessageEdit
	case types.StatusRemoved:
		c = CategoryMessageDelete
	default:
		d.logger.Debug("Ignoring message with unknown status", "status", msg.Status, "message_id", msg.ID)
		return
	}
	for _, r := range d.registry.snapshot(c) {
		if r.filter != nil && !d.filterPasses(r, msg) {
			continue
		}
		d.invoke(ctx, c, r, msg)
	}
}

// filterPasses evaluates a filter; a panicking filter counts as a rejection.
func (d *Dispatcher) filterPasses(r *registration, msg *types.Message) (ok bool) {
	defer func() {
		if p := recover(); p != nil {
			d.logger.Error("Panic in message filter", "handler", r.name, "panic", p)
			ok = false
		}
	}()
	return r.filter(msg)
}

func (d *Dispatcher) handleReaction(ctx context.Context, f *protocol.Frame) {
	if f.Opcode != protocol.OpNotifMsgReactionsChanged {
		return
	}
	u, err := types.DecodeReactionUpdate(f.Payload)
	if err != nil {
		d.logger.Debug("Skipping reaction notification", "seq", f.Seq, "error", err)
		return
	}
	for _, r := range d.registry.snapshot(CategoryReaction) {
		d.invoke(ctx, CategoryReaction, r, u)
	}
}

func (d *Dispatcher) handleChat(ctx context.Context, f *protocol.Frame) {
	if f.Opcode != protocol.OpNotifChat {
		return
	}
	var p struct {
		Chat json.RawMessage `json:"chat"`
	}
	if err := f.DecodePayload(&p); err != nil || len(p.Chat) == 0 || string(p.Chat) == "null" {
		d.logger.Debug("Skipping chat notification without chat", "seq", f.Seq)
		return
	}
	chat, err := types.DecodeChat(p.Chat)
	if err != nil {
		d.metrics.ParseError()
		d.logger.Warn("Dropping undecodable chat notification", "seq", f.Seq, "error", err)
		return
	}
	for _, r := range d.registry.snapshot(CategoryChatUpdate) {
		d.invoke(ctx, CategoryChatUpdate, r, chat)
	}
}

func (d *Dispatcher) invoke(ctx context.Context, c Category, r *registration, arg any) {
	if r.detached && d.spawner != nil {
		d.spawner.Go("handler-"+r.name, func(ctx context.Context) error {
			d.call(ctx, c, r, arg)
			return nil
		})
		return
	}
	d.call(ctx, c, r, arg)
}

func (d *Dispatcher) call(ctx context.Context, c Category, r *registration, arg any) {
	defer func() {
		if p := recover(); p != nil {
			d.metrics.HandlerError(c.String())
			d.logger.Error("Panic in handler",
				"category", c, "handler", r.name,
				"panic", fmt.Sprint(p), "stack", string(debug.Stack()))
		}
	}()
	if err := r.call(ctx, arg); err != nil {
		d.metrics.HandlerError(c.String())
		d.logger.Error("Handler returned error", "category", c, "handler", r.name, "error", err)
	}
}
