// Package signaling is the session registry and signaling core: it tracks
// who is broadcasting and who watches whom, relays negotiation messages
// between the right pair of peers, and fans out room events.
//
// All state is owned by a Coordinator and mutated only on its event loop
// goroutine (Serve). Transport goroutines talk to it through Connect,
// Dispatch and Disconnect, which enqueue and return.
package signaling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/mossy-p/livestream-signaling/internal/logging"
	"github.com/mossy-p/livestream-signaling/internal/metrics"
	"github.com/mossy-p/livestream-signaling/internal/models"
)

var (
	// ErrBroadcastNotFound is returned by queries naming an identity that is
	// not broadcasting.
	ErrBroadcastNotFound = errors.New("broadcast not found")
	// ErrStopped is returned once the coordinator has been closed.
	ErrStopped = errors.New("coordinator stopped")
)

// Mirror receives a copy of the live directory after every change. It must
// not block.
type Mirror interface {
	PublishBroadcasts(list []models.Broadcast)
	PublishViewerCount(broadcastID string, count int)
	RemoveBroadcast(broadcastID string)
}

type nopMirror struct{}

func (nopMirror) PublishBroadcasts([]models.Broadcast) {}
func (nopMirror) PublishViewerCount(string, int)       {}
func (nopMirror) RemoveBroadcast(string)               {}

// Config tunes the coordinator.
type Config struct {
	// QueueSize bounds the number of events waiting for the loop.
	QueueSize int
}

// Stats is a point-in-time size summary.
type Stats struct {
	Sessions   int `json:"sessions"`
	Broadcasts int `json:"broadcasts"`
	Viewers    int `json:"viewers"`
}

type task struct {
	name   string
	peerID string
	run    func()
	done   chan struct{}
}

// Coordinator owns the Directory, Registry, Viewership and peer table.
type Coordinator struct {
	tasks     chan task
	closed    chan struct{}
	closeOnce sync.Once

	peers     peerTable
	directory *Directory
	registry  *Registry
	viewers   *Viewership
	relay     *Relay
	fanout    *Fanout
	mirror    Mirror
	validate  *validator.Validate
}

// New builds a coordinator. A nil mirror disables mirroring.
func New(cfg Config, mirror Mirror) *Coordinator {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if mirror == nil {
		mirror = nopMirror{}
	}

	peers := make(peerTable)
	directory := NewDirectory()
	registry := NewRegistry()
	viewers := NewViewership(registry)

	return &Coordinator{
		tasks:     make(chan task, cfg.QueueSize),
		closed:    make(chan struct{}),
		peers:     peers,
		directory: directory,
		registry:  registry,
		viewers:   viewers,
		relay:     &Relay{peers: peers},
		fanout: &Fanout{
			peers:     peers,
			registry:  registry,
			viewers:   viewers,
			directory: directory,
			now:       time.Now,
			newID:     newChatID,
		},
		mirror:   mirror,
		validate: validator.New(),
	}
}

// Serve runs the event loop until ctx is canceled. It may be called again
// after returning; state survives between runs.
func (c *Coordinator) Serve(ctx context.Context) error {
	logging.Info().Str(logging.FieldComponent, "coordinator").Msg("coordinator started")
	for {
		select {
		case <-ctx.Done():
			logging.Info().
				Str(logging.FieldComponent, "coordinator").
				Int("sessions", len(c.peers)).
				Msg("coordinator stopped")
			return ctx.Err()
		case t := <-c.tasks:
			c.process(t)
		}
	}
}

func (c *Coordinator) String() string {
	return "signaling-coordinator"
}

// Close makes every pending and future submission fail fast.
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// process runs one task to completion. A panic is contained to the task.
func (c *Coordinator) process(t task) {
	defer func() {
		if r := recover(); r != nil {
			metrics.PanicsRecovered.Inc()
			logging.Error().
				Str(logging.FieldPeerID, t.peerID).
				Str(logging.FieldEvent, t.name).
				Interface("panic", r).
				Msg("recovered from panic while handling event")
		}
		if t.done != nil {
			close(t.done)
		}
		metrics.Sessions.Set(float64(len(c.peers)))
		metrics.Broadcasts.Set(float64(c.registry.Len()))
		metrics.Viewers.Set(float64(c.viewers.Len()))
	}()
	t.run()
}

func (c *Coordinator) enqueue(t task) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.tasks <- t:
		return true
	case <-c.closed:
		return false
	}
}

// call runs fn on the loop and waits for it.
func (c *Coordinator) call(ctx context.Context, name string, fn func()) error {
	done := make(chan struct{})
	if !c.enqueue(task{name: name, run: fn, done: done}) {
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.closed:
		return ErrStopped
	}
}

// Connect registers a newly connected peer. displayName may be empty.
func (c *Coordinator) Connect(peer Peer, displayName string) bool {
	return c.enqueue(task{
		name:   "connect",
		peerID: peer.ID(),
		run:    func() { c.handleConnect(peer, displayName) },
	})
}

// Dispatch queues an inbound event from peer id.
func (c *Coordinator) Dispatch(id string, msg *models.Inbound) bool {
	return c.enqueue(task{
		name:   string(msg.Type),
		peerID: id,
		run:    func() { c.handleInbound(id, msg) },
	})
}

// Disconnect queues the removal of peer id from every structure.
func (c *Coordinator) Disconnect(id string) bool {
	return c.enqueue(task{
		name:   "disconnect",
		peerID: id,
		run:    func() { c.handleDisconnect(id) },
	})
}

// Broadcasts returns the current broadcast list.
func (c *Coordinator) Broadcasts(ctx context.Context) ([]models.Broadcast, error) {
	var list []models.Broadcast
	err := c.call(ctx, "query-broadcasts", func() { list = c.registry.List() })
	return list, err
}

// Broadcast returns one broadcast and its audience size.
func (c *Coordinator) Broadcast(ctx context.Context, id string) (models.BroadcastDetail, error) {
	var (
		detail models.BroadcastDetail
		found  bool
	)
	err := c.call(ctx, "query-broadcast", func() {
		b, ok := c.registry.Get(id)
		if !ok {
			return
		}
		found = true
		detail = models.BroadcastDetail{Broadcast: b, ViewerCount: c.viewers.CountOf(id)}
	})
	if err != nil {
		return detail, err
	}
	if !found {
		return detail, ErrBroadcastNotFound
	}
	return detail, nil
}

// EndBroadcast terminates a broadcast on an operator's behalf, exactly as if
// its owner had sent end-broadcast.
func (c *Coordinator) EndBroadcast(ctx context.Context, id string) error {
	var found bool
	err := c.call(ctx, "admin-end-broadcast", func() {
		found = c.endBroadcast(id)
	})
	if err != nil {
		return err
	}
	if !found {
		return ErrBroadcastNotFound
	}
	return nil
}

// Stats reports the current sizes of the owned structures.
func (c *Coordinator) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := c.call(ctx, "query-stats", func() {
		s = Stats{Sessions: len(c.peers), Broadcasts: c.registry.Len(), Viewers: c.viewers.Len()}
	})
	return s, err
}

func (c *Coordinator) handleConnect(peer Peer, displayName string) {
	id := peer.ID()
	if _, exists := c.peers[id]; exists {
		logging.Warn().Str(logging.FieldPeerID, id).Msg("duplicate connect ignored")
		return
	}

	c.peers[id] = peer
	c.directory.Add(id)
	if strings.TrimSpace(displayName) != "" {
		c.directory.SetDisplayName(id, displayName)
	}

	c.peers.send(id, models.Message{
		Type:    models.EventWelcome,
		Payload: models.Welcome{ID: id, DisplayName: c.directory.DisplayNameOf(id)},
	})
	c.fanout.SendBroadcastList(id)

	logging.Info().Str(logging.FieldPeerID, id).Int("sessions", len(c.peers)).Msg("peer connected")
}

// handleDisconnect unwinds every role id holds, then announces its
// departure. Unknown ids are ignored, so repeated disconnects are harmless.
func (c *Coordinator) handleDisconnect(id string) {
	peer, ok := c.peers[id]
	if !ok {
		return
	}
	delete(c.peers, id)

	wasBroadcaster := c.endBroadcast(id)
	c.leaveAudience(id, "")
	c.directory.Remove(id)
	c.fanout.PublishPeerGone(id)
	peer.Close()

	logging.Info().
		Str(logging.FieldPeerID, id).
		Bool("was_broadcaster", wasBroadcaster).
		Int("sessions", len(c.peers)).
		Msg("peer disconnected")
}

func (c *Coordinator) handleInbound(id string, msg *models.Inbound) {
	if _, ok := c.peers[id]; !ok {
		logging.Debug().Str(logging.FieldPeerID, id).Str(logging.FieldEvent, string(msg.Type)).Msg("event from unknown peer")
		return
	}
	metrics.EventsTotal.WithLabelValues(string(msg.Type)).Inc()

	switch msg.Type {
	case models.EventDeclareName:
		req := declareNameRequest{Name: msg.Name}
		if c.check(id, msg.Type, &req) {
			c.directory.SetDisplayName(id, req.Name)
		}

	case models.EventStartBroadcast:
		req := startBroadcastRequest{Title: msg.Title, OwnerName: msg.OwnerName}
		if c.check(id, msg.Type, &req) {
			c.startBroadcast(id, req.Title, req.OwnerName)
		}

	case models.EventListBroadcasts:
		c.fanout.SendBroadcastList(id)

	case models.EventWatch:
		req := watchRequest{BroadcastID: msg.BroadcastID}
		if c.check(id, msg.Type, &req) {
			c.requestWatch(id, req.BroadcastID)
		}

	case models.EventOffer, models.EventAnswer, models.EventCandidate:
		req := relayRequest{To: msg.To, Payload: msg.Payload}
		if c.check(id, msg.Type, &req) {
			c.relay.Relay(msg.Type, req.To, id, req.Payload)
		}

	case models.EventChat:
		req := chatRequest{BroadcastID: msg.BroadcastID, Message: strings.TrimSpace(msg.Message)}
		if c.check(id, msg.Type, &req) && c.inRoom(id, req.BroadcastID, msg.Type) {
			c.fanout.PublishChat(req.BroadcastID, id, req.Message)
		}

	case models.EventMediaState:
		req := mediaStateRequest{BroadcastID: msg.BroadcastID, VideoEnabled: msg.VideoEnabled, AudioEnabled: msg.AudioEnabled}
		if c.check(id, msg.Type, &req) && c.ownsBroadcast(id, req.BroadcastID, msg.Type) {
			c.fanout.PublishMediaState(req.BroadcastID, *req.VideoEnabled, *req.AudioEnabled)
		}

	case models.EventModeChange:
		req := modeChangeRequest{BroadcastID: msg.BroadcastID, Mode: strings.TrimSpace(msg.Mode)}
		if c.check(id, msg.Type, &req) && c.ownsBroadcast(id, req.BroadcastID, msg.Type) {
			c.fanout.PublishModeChange(req.BroadcastID, req.Mode)
		}

	case models.EventEndBroadcast:
		target := msg.BroadcastID
		if target == "" {
			target = id
		}
		if c.ownsBroadcast(id, target, msg.Type) {
			c.endBroadcast(id)
		}

	case models.EventDetachViewer:
		c.leaveAudience(id, msg.BroadcastID)

	case models.EventPing:
		c.peers.send(id, models.Message{Type: models.EventPong})

	default:
		metrics.DroppedTotal.WithLabelValues(metrics.ReasonInvalid).Inc()
		c.peers.send(id, models.NewErrorMessage(models.ErrCodeUnknownType,
			fmt.Sprintf("unknown message type %q", msg.Type)))
	}
}

// check validates req and reports the failure to the sender.
func (c *Coordinator) check(id string, t models.EventType, req interface{}) bool {
	if err := c.validate.Struct(req); err != nil {
		metrics.DroppedTotal.WithLabelValues(metrics.ReasonInvalid).Inc()
		logging.Debug().Err(err).Str(logging.FieldPeerID, id).Str(logging.FieldEvent, string(t)).Msg("invalid event")
		c.peers.send(id, models.NewErrorMessage(models.ErrCodeBadRequest, fmt.Sprintf("invalid %s message", t)))
		return false
	}
	return true
}

// inRoom reports whether id is the broadcaster of, or attached to, broadcastID.
func (c *Coordinator) inRoom(id, broadcastID string, t models.EventType) bool {
	if c.registry.Has(broadcastID) {
		if id == broadcastID {
			return true
		}
		if watching, ok := c.viewers.BroadcastOf(id); ok && watching == broadcastID {
			return true
		}
	}
	c.dropNotMember(id, broadcastID, t)
	return false
}

// ownsBroadcast reports whether id is the live broadcaster broadcastID.
func (c *Coordinator) ownsBroadcast(id, broadcastID string, t models.EventType) bool {
	if id == broadcastID && c.registry.Has(id) {
		return true
	}
	c.dropNotMember(id, broadcastID, t)
	return false
}

func (c *Coordinator) dropNotMember(id, broadcastID string, t models.EventType) {
	metrics.DroppedTotal.WithLabelValues(metrics.ReasonNotMember).Inc()
	logging.Debug().
		Str(logging.FieldPeerID, id).
		Str(logging.FieldBroadcastID, broadcastID).
		Str(logging.FieldEvent, string(t)).
		Msg("event for a room the sender is not part of")
}

func (c *Coordinator) startBroadcast(id, title, ownerName string) {
	b, replaced := c.registry.Register(id, title, ownerName)
	c.directory.SetDisplayName(id, b.OwnerName)

	list := c.registry.List()
	c.mirror.PublishBroadcasts(list)
	c.fanout.PublishBroadcastList()
	if replaced {
		c.fanout.PublishViewerCount(id)
	}

	logging.Info().
		Str(logging.FieldBroadcastID, id).
		Str("title", b.Title).
		Bool("replaced", replaced).
		Msg("broadcast started")
}

func (c *Coordinator) requestWatch(viewerID, broadcastID string) {
	if viewerID == broadcastID {
		c.dropNotMember(viewerID, broadcastID, models.EventWatch)
		return
	}

	count, previous, ok := c.viewers.Attach(broadcastID, viewerID)
	if !ok {
		metrics.DroppedTotal.WithLabelValues(metrics.ReasonUnknownTarget).Inc()
		logging.Debug().
			Str(logging.FieldPeerID, viewerID).
			Str(logging.FieldBroadcastID, broadcastID).
			Msg("watch request for unknown broadcast")
		return
	}

	if previous != "" {
		c.fanout.PublishViewerCount(previous)
		c.mirror.PublishViewerCount(previous, c.viewers.CountOf(previous))
	}

	c.relay.NewViewer(broadcastID, viewerID, c.directory.DisplayNameOf(viewerID))
	c.fanout.PublishViewerCount(broadcastID)
	c.mirror.PublishViewerCount(broadcastID, count)
}

// leaveAudience detaches viewerID. A non-empty from restricts the detach to
// that broadcast.
func (c *Coordinator) leaveAudience(viewerID, from string) {
	current, ok := c.viewers.BroadcastOf(viewerID)
	if !ok || (from != "" && current != from) {
		return
	}

	broadcastID, count, _ := c.viewers.Detach(viewerID)
	c.fanout.PublishViewerCount(broadcastID)
	c.mirror.PublishViewerCount(broadcastID, count)
}

// endBroadcast notifies the audience, then removes the edges and the
// broadcast, then republishes the list. It reports whether id was live.
func (c *Coordinator) endBroadcast(id string) bool {
	if !c.registry.Has(id) {
		return false
	}

	c.fanout.PublishStreamEnded(id)
	former := c.viewers.DetachBroadcast(id)
	c.registry.Remove(id)

	c.mirror.RemoveBroadcast(id)
	c.mirror.PublishBroadcasts(c.registry.List())
	c.fanout.PublishBroadcastList()

	logging.Info().
		Str(logging.FieldBroadcastID, id).
		Int("viewers", len(former)).
		Msg("broadcast ended")
	return true
}
