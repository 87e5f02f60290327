package signaling

import (
	"github.com/mossy-p/livestream-signaling/internal/logging"
	"github.com/mossy-p/livestream-signaling/internal/metrics"
	"github.com/mossy-p/livestream-signaling/internal/models"
)

// Peer is the transport side of one connection. Deliver must not block; it
// reports false when the frame could not be queued. Close is called once,
// by the coordinator, after the peer has been removed from every structure.
type Peer interface {
	ID() string
	Deliver(frame []byte) bool
	Close()
}

// peerTable is the set of connected peers, owned by the coordinator loop.
type peerTable map[string]Peer

// send encodes msg and queues it for id. Unknown ids are skipped.
func (p peerTable) send(id string, msg models.Message) bool {
	peer, ok := p[id]
	if !ok {
		return false
	}
	frame, err := models.Encode(msg)
	if err != nil {
		logging.Error().Err(err).Str(logging.FieldEvent, string(msg.Type)).Msg("failed to encode message")
		return false
	}
	return deliver(peer, msg.Type, frame)
}

// multicast encodes msg once and queues it for every id in ids that is
// connected. It returns the number of peers the frame was queued for.
func (p peerTable) multicast(ids []string, msg models.Message) int {
	if len(ids) == 0 {
		return 0
	}
	frame, err := models.Encode(msg)
	if err != nil {
		logging.Error().Err(err).Str(logging.FieldEvent, string(msg.Type)).Msg("failed to encode message")
		return 0
	}

	sent := 0
	for _, id := range ids {
		if peer, ok := p[id]; ok && deliver(peer, msg.Type, frame) {
			sent++
		}
	}
	return sent
}

// ids returns every connected identity except the excluded one.
func (p peerTable) ids(exclude string) []string {
	out := make([]string, 0, len(p))
	for id := range p {
		if id != exclude {
			out = append(out, id)
		}
	}
	return out
}

func deliver(peer Peer, msgType models.EventType, frame []byte) bool {
	if peer.Deliver(frame) {
		return true
	}
	metrics.DroppedTotal.WithLabelValues(metrics.ReasonSendBuffer).Inc()
	logging.Warn().
		Str(logging.FieldPeerID, peer.ID()).
		Str(logging.FieldEvent, string(msgType)).
		Msg("send buffer full, dropping message")
	return false
}
