package signaling

import (
	"github.com/goccy/go-json"

	"github.com/mossy-p/livestream-signaling/internal/logging"
	"github.com/mossy-p/livestream-signaling/internal/metrics"
	"github.com/mossy-p/livestream-signaling/internal/models"
)

// Relay forwards point-to-point messages between connected peers. It keeps
// no state of its own.
type Relay struct {
	peers peerTable
}

// Relay delivers payload to target tagged with the true sender. It returns
// false, without error, when target is not connected.
func (r *Relay) Relay(kind models.EventType, target, sender string, payload json.RawMessage) bool {
	if _, ok := r.peers[target]; !ok {
		metrics.RelaysTotal.WithLabelValues(string(kind), "dropped").Inc()
		metrics.DroppedTotal.WithLabelValues(metrics.ReasonUnknownTarget).Inc()
		logging.Debug().
			Str(logging.FieldPeerID, sender).
			Str(logging.FieldTarget, target).
			Str(logging.FieldEvent, string(kind)).
			Msg("relay target not connected")
		return false
	}

	ok := r.peers.send(target, models.Message{
		Type:    kind,
		From:    sender,
		Payload: payload,
	})
	outcome := "delivered"
	if !ok {
		outcome = "dropped"
	}
	metrics.RelaysTotal.WithLabelValues(string(kind), outcome).Inc()
	return ok
}

// NewViewer tells a broadcaster that viewerID wants its stream, so the
// broadcaster can start negotiation.
func (r *Relay) NewViewer(broadcasterID, viewerID, displayName string) bool {
	return r.peers.send(broadcasterID, models.Message{
		Type:        models.EventNewViewer,
		From:        viewerID,
		BroadcastID: broadcasterID,
		Payload:     models.NewViewer{ViewerID: viewerID, DisplayName: displayName},
	})
}
