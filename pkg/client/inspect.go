package client

import "time"

// Status is a point-in-time summary of the session.
type Status struct {
	State           State
	Connected       bool
	DeviceID        string
	Me              string
	MeID            int64
	Dialogs         int
	Chats           int
	Channels        int
	UsersCached     int
	BackgroundTasks int
	PendingRequests int
	OldestPending   time.Duration
	QueuedMessages  int
	BreakerOpen     bool
}

// Inspect logs and returns the session status.
func (c *Client) Inspect() Status {
	st := Status{
		State:           c.State(),
		DeviceID:        c.config.deviceID,
		PendingRequests: c.pending.Len(),
		OldestPending:   c.pending.Oldest(time.Now()),
		QueuedMessages:  c.queue.Len(),
		BreakerOpen:     c.worker.Breaker().State().Open,
	}
	st.Connected = st.State == StateConnected

	c.cache.mu.RLock()
	if me := c.cache.me; me != nil {
		st.Me, st.MeID = me.DisplayName(), me.ID
	}
	st.Dialogs = len(c.cache.dialogs)
	st.Chats = len(c.cache.chats)
	st.Channels = len(c.cache.channels)
	st.UsersCached = len(c.cache.users)
	c.cache.mu.RUnlock()

	c.mu.RLock()
	if c.sess != nil {
		st.BackgroundTasks = c.sess.tasks.Len()
	}
	c.mu.RUnlock()

	me := "N/A"
	if st.Me != "" {
		me = st.Me
	}
	c.config.logger.Info("Client status",
		"client_id", c.id,
		"state", st.State,
		"connected", st.Connected,
		"me", me,
		"me_id", st.MeID,
		"dialogs", st.Dialogs,
		"chats", st.Chats,
		"channels", st.Channels,
		"users_cached", st.UsersCached,
		"background_tasks", st.BackgroundTasks,
		"pending_requests", st.PendingRequests,
		"oldest_pending", st.OldestPending,
		"queued_messages", st.QueuedMessages,
		"breaker_open", st.BreakerOpen,
	)
	return st
}
