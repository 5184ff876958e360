package relay

import (
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"chat-sync/internal/models"
	"chat-sync/internal/observability"
)

const (
	PushSubject   = "chatsync.push"
	GroupSubject  = "chatsync.group"
	KickSubject   = "chatsync.kick"
	RevokeSubject = "chatsync.revoke"
)

// Conn is the subset of *nats.Conn used by the relay.
type Conn interface {
	Publish(subj string, data []byte) error
	Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// Local is the set of connections held by this node.
type Local interface {
	Push(handle string, frame models.OutboundFrame) bool
	Broadcast(groupID int64, frame models.OutboundFrame) int
	HasClient(handle string) bool
	Kick(handle string) bool
	RevokeMember(groupID int64, identity string) int
}

type envelope struct {
	Origin   string          `json:"origin"`
	Handle   string          `json:"handle,omitempty"`
	GroupID  int64           `json:"group_id,omitempty"`
	Identity string          `json:"identity,omitempty"`
	Event    string          `json:"event,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// Relay forwards pushes and kicks for connections held elsewhere and mirrors group broadcasts
// and channel revocations to every node.
type Relay struct {
	local  Local
	conn   Conn
	node   string
	logger *logrus.Logger
	subs   []*nats.Subscription
}

func New(local Local, conn Conn, node string, logger *logrus.Logger) *Relay {
	return &Relay{local: local, conn: conn, node: node, logger: logger}
}

// Start subscribes to the relay subjects.
func (r *Relay) Start() error {
	for subject, handler := range map[string]nats.MsgHandler{
		PushSubject:   r.onPush,
		GroupSubject:  r.onGroup,
		KickSubject:   r.onKick,
		RevokeSubject: r.onRevoke,
	} {
		sub, err := r.conn.Subscribe(subject, handler)
		if err != nil {
			r.Stop()
			return err
		}
		r.subs = append(r.subs, sub)
	}
	r.logger.WithField("node", r.node).Info("nats relay started")
	return nil
}

func (r *Relay) Stop() {
	for _, sub := range r.subs {
		if sub == nil {
			continue
		}
		if err := sub.Unsubscribe(); err != nil {
			r.logger.WithError(err).Debug("nats unsubscribe failed")
		}
	}
	r.subs = nil
}

// Push delivers locally when this node holds handle and otherwise hands the frame to the
// other nodes. A full local queue is a drop, not a relay.
func (r *Relay) Push(handle string, frame models.OutboundFrame) bool {
	if r.local.HasClient(handle) {
		return r.local.Push(handle, frame)
	}
	if err := r.publishFrame(PushSubject, envelope{Handle: handle}, frame); err != nil {
		r.logger.WithError(err).WithField("conn_id", handle).Warn("nats relay push failed")
		return false
	}
	observability.IncPush(observability.PushRelayed)
	return true
}

// Broadcast delivers to local subscribers and mirrors the frame to the other nodes.
// Only local deliveries are counted.
func (r *Relay) Broadcast(groupID int64, frame models.OutboundFrame) int {
	n := r.local.Broadcast(groupID, frame)
	if err := r.publishFrame(GroupSubject, envelope{GroupID: groupID}, frame); err != nil {
		r.logger.WithError(err).WithField("group_id", groupID).Warn("nats relay broadcast failed")
	}
	return n
}

// Kick closes a superseded connection here, or asks the other nodes to close it.
func (r *Relay) Kick(handle string) bool {
	if r.local.Kick(handle) {
		return true
	}
	if err := r.publish(KickSubject, envelope{Handle: handle}); err != nil {
		r.logger.WithError(err).WithField("conn_id", handle).Warn("nats relay kick failed")
		return false
	}
	return true
}

// RevokeMember drops identity from groupID's channel on every node. Only local revocations
// are counted.
func (r *Relay) RevokeMember(groupID int64, identity string) int {
	n := r.local.RevokeMember(groupID, identity)
	if err := r.publish(RevokeSubject, envelope{GroupID: groupID, Identity: identity}); err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{"group_id": groupID, "identity": identity}).Warn("nats relay revoke failed")
	}
	return n
}

func (r *Relay) publishFrame(subject string, env envelope, frame models.OutboundFrame) error {
	data, err := json.Marshal(frame.Data)
	if err != nil {
		return err
	}
	env.Event = frame.Event
	env.Data = data
	return r.publish(subject, env)
}

func (r *Relay) publish(subject string, env envelope) error {
	env.Origin = r.node
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return r.conn.Publish(subject, payload)
}

func (r *Relay) decode(msg *nats.Msg) (envelope, models.OutboundFrame, bool) {
	var env envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		r.logger.WithError(err).WithField("subject", msg.Subject).Warn("malformed relay message")
		return envelope{}, models.OutboundFrame{}, false
	}
	if env.Origin == r.node {
		return envelope{}, models.OutboundFrame{}, false
	}
	return env, models.OutboundFrame{Event: env.Event, Data: env.Data}, true
}

func (r *Relay) onPush(msg *nats.Msg) {
	env, frame, ok := r.decode(msg)
	if !ok {
		return
	}
	r.local.Push(env.Handle, frame)
}

func (r *Relay) onGroup(msg *nats.Msg) {
	env, frame, ok := r.decode(msg)
	if !ok {
		return
	}
	r.local.Broadcast(env.GroupID, frame)
}

func (r *Relay) onKick(msg *nats.Msg) {
	env, _, ok := r.decode(msg)
	if !ok || env.Handle == "" {
		return
	}
	r.local.Kick(env.Handle)
}

func (r *Relay) onRevoke(msg *nats.Msg) {
	env, _, ok := r.decode(msg)
	if !ok || env.Identity == "" {
		return
	}
	r.local.RevokeMember(env.GroupID, env.Identity)
}
