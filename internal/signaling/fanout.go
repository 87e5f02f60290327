package signaling

import (
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/mossy-p/livestream-signaling/internal/models"
)

// Fanout computes the audience of a room-scoped event and pushes it there.
type Fanout struct {
	peers     peerTable
	registry  *Registry
	viewers   *Viewership
	directory *Directory
	now       func() time.Time
	newID     func() string
}

// room is the broadcaster followed by its viewers.
func (f *Fanout) room(broadcastID string) []string {
	return append([]string{broadcastID}, f.viewers.Viewers(broadcastID)...)
}

// PublishBroadcastList pushes the full list to every connection.
func (f *Fanout) PublishBroadcastList() int {
	return f.peers.multicast(f.peers.ids(""), f.broadcastList())
}

// SendBroadcastList pushes the list to a single connection.
func (f *Fanout) SendBroadcastList(id string) bool {
	return f.peers.send(id, f.broadcastList())
}

func (f *Fanout) broadcastList() models.Message {
	return models.Message{Type: models.EventBroadcastList, Payload: f.registry.List()}
}

// PublishViewerCount pushes the current count to the broadcaster and every
// attached viewer.
func (f *Fanout) PublishViewerCount(broadcastID string) int {
	return f.peers.multicast(f.room(broadcastID), models.Message{
		Type:        models.EventViewerCount,
		BroadcastID: broadcastID,
		Payload:     models.ViewerCount{Count: f.viewers.CountOf(broadcastID)},
	})
}

// PublishChat pushes a chat line to the whole room, sender included.
func (f *Fanout) PublishChat(broadcastID, senderID, message string) int {
	return f.peers.multicast(f.room(broadcastID), models.Message{
		Type:        models.EventChat,
		From:        senderID,
		BroadcastID: broadcastID,
		Payload: models.ChatMessage{
			ID:          f.newID(),
			SenderID:    senderID,
			SenderName:  f.directory.DisplayNameOf(senderID),
			Message:     message,
			BroadcastID: broadcastID,
			SentAt:      f.now().UTC(),
		},
	})
}

// PublishMediaState pushes the broadcaster's advisory track flags to viewers.
func (f *Fanout) PublishMediaState(broadcastID string, videoEnabled, audioEnabled bool) int {
	return f.peers.multicast(f.viewers.Viewers(broadcastID), models.Message{
		Type:        models.EventMediaState,
		From:        broadcastID,
		BroadcastID: broadcastID,
		Payload:     models.MediaState{VideoEnabled: videoEnabled, AudioEnabled: audioEnabled},
	})
}

// PublishModeChange pushes an opaque mode label to viewers.
func (f *Fanout) PublishModeChange(broadcastID, mode string) int {
	return f.peers.multicast(f.viewers.Viewers(broadcastID), models.Message{
		Type:        models.EventModeUpdate,
		From:        broadcastID,
		BroadcastID: broadcastID,
		Payload:     models.ModeUpdate{Mode: mode},
	})
}

// PublishStreamEnded tells every viewer the stream is over and that the
// count is now zero. It must run while the edges still exist.
func (f *Fanout) PublishStreamEnded(broadcastID string) int {
	audience := f.viewers.Viewers(broadcastID)
	sent := f.peers.multicast(audience, models.Message{
		Type:        models.EventStreamEnded,
		From:        broadcastID,
		BroadcastID: broadcastID,
	})
	f.peers.multicast(audience, models.Message{
		Type:        models.EventViewerCount,
		BroadcastID: broadcastID,
		Payload:     models.ViewerCount{Count: 0},
	})
	return sent
}

// PublishPeerGone tells every other connection that id has left.
func (f *Fanout) PublishPeerGone(id string) int {
	return f.peers.multicast(f.peers.ids(id), models.Message{
		Type:    models.EventPeerGone,
		From:    id,
		Payload: models.PeerGone{ID: id},
	})
}

func newChatID() string {
	return ulid.Make().String()
}
