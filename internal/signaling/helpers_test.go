package signaling

import (
	"io"
	"sync"
	"testing"

	"github.com/goccy/go-json"

	"github.com/mossy-p/livestream-signaling/internal/logging"
	"github.com/mossy-p/livestream-signaling/internal/models"
)

func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

// frame is a decoded server message as a client would see it.
type frame struct {
	Type        models.EventType `json:"type"`
	From        string           `json:"from"`
	BroadcastID string           `json:"broadcastId"`
	Payload     json.RawMessage  `json:"payload"`
}

// fakePeer records every frame delivered to it.
type fakePeer struct {
	id string

	mu     sync.Mutex
	frames []frame
	full   bool
	closed bool
}

func newFakePeer(id string) *fakePeer {
	return &fakePeer{id: id}
}

func (p *fakePeer) ID() string { return p.id }

func (p *fakePeer) Deliver(data []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.full || p.closed {
		return false
	}
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		panic(err)
	}
	p.frames = append(p.frames, f)
	return true
}

func (p *fakePeer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

func (p *fakePeer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// reset forgets frames received so far.
func (p *fakePeer) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames = nil
}

func (p *fakePeer) all() []frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]frame(nil), p.frames...)
}

func (p *fakePeer) ofType(t models.EventType) []frame {
	var out []frame
	for _, f := range p.all() {
		if f.Type == t {
			out = append(out, f)
		}
	}
	return out
}

// types lists the frame types in arrival order.
func (p *fakePeer) types() []models.EventType {
	var out []models.EventType
	for _, f := range p.all() {
		out = append(out, f.Type)
	}
	return out
}

// viewerCounts lists every viewer-count value received for broadcastID.
func (p *fakePeer) viewerCounts(t *testing.T, broadcastID string) []int {
	t.Helper()
	var out []int
	for _, f := range p.ofType(models.EventViewerCount) {
		if f.BroadcastID != broadcastID {
			continue
		}
		var vc models.ViewerCount
		decode(t, f.Payload, &vc)
		out = append(out, vc.Count)
	}
	return out
}

func (p *fakePeer) lastViewerCount(t *testing.T, broadcastID string) (int, bool) {
	t.Helper()
	counts := p.viewerCounts(t, broadcastID)
	if len(counts) == 0 {
		return 0, false
	}
	return counts[len(counts)-1], true
}

// decode leaves v untouched when the payload was omitted.
func decode(t *testing.T, raw json.RawMessage, v interface{}) {
	t.Helper()
	if len(raw) == 0 {
		return
	}
	if err := json.Unmarshal(raw, v); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
}

// harness drives a coordinator's handlers directly on the test goroutine.
type harness struct {
	t     *testing.T
	c     *Coordinator
	peers map[string]*fakePeer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return &harness{t: t, c: New(Config{}, nil), peers: make(map[string]*fakePeer)}
}

func (h *harness) connect(id string) *fakePeer {
	p := newFakePeer(id)
	h.peers[id] = p
	h.c.handleConnect(p, "")
	return p
}

func (h *harness) send(id string, msg models.Inbound) {
	h.c.handleInbound(id, &msg)
}

func (h *harness) disconnect(id string) {
	h.c.handleDisconnect(id)
}

func (h *harness) startBroadcast(id, title, owner string) {
	h.send(id, models.Inbound{Type: models.EventStartBroadcast, Title: title, OwnerName: owner})
}

func (h *harness) watch(viewer, broadcast string) {
	h.send(viewer, models.Inbound{Type: models.EventWatch, BroadcastID: broadcast})
}

func (h *harness) resetAll() {
	for _, p := range h.peers {
		p.reset()
	}
}

func boolPtr(b bool) *bool { return &b }
