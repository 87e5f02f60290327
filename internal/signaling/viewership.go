package signaling

import (
	"slices"

	"github.com/mossy-p/livestream-signaling/internal/logging"
)

// Edge is one viewer attached to one broadcast.
type Edge struct {
	BroadcastID string
	ViewerID    string
}

// Viewership is the bidirectional broadcast <-> viewer index. The forward
// side keeps viewers in attach order; the reverse side gives each viewer at
// most one broadcast. Both sides are only changed by link and unlink.
type Viewership struct {
	registry *Registry
	audience map[string][]string // broadcastID -> viewerIDs
	watching map[string]string   // viewerID -> broadcastID
}

func NewViewership(registry *Registry) *Viewership {
	return &Viewership{
		registry: registry,
		audience: make(map[string][]string),
		watching: make(map[string]string),
	}
}

func (v *Viewership) link(broadcastID, viewerID string) {
	v.audience[broadcastID] = append(v.audience[broadcastID], viewerID)
	v.watching[viewerID] = broadcastID
}

func (v *Viewership) unlink(broadcastID, viewerID string) {
	viewers := v.audience[broadcastID]
	if i := slices.Index(viewers, viewerID); i >= 0 {
		viewers = slices.Delete(viewers, i, i+1)
	}
	if len(viewers) == 0 {
		delete(v.audience, broadcastID)
	} else {
		v.audience[broadcastID] = viewers
	}
	if v.watching[viewerID] == broadcastID {
		delete(v.watching, viewerID)
	}
}

// Attach adds the edge (broadcastID, viewerID). It is a no-op returning
// ok=false when broadcastID is not live. A viewer already watching another
// broadcast is moved; previous names the broadcast it left. Attaching an
// existing edge changes nothing.
func (v *Viewership) Attach(broadcastID, viewerID string) (count int, previous string, ok bool) {
	if !v.registry.Has(broadcastID) {
		return 0, "", false
	}

	if current, watching := v.watching[viewerID]; watching {
		if current == broadcastID {
			return len(v.audience[broadcastID]), "", true
		}
		v.unlink(current, viewerID)
		previous = current
	}

	v.link(broadcastID, viewerID)
	return len(v.audience[broadcastID]), previous, true
}

// Detach removes the viewer's edge, if any, and returns the broadcast it was
// attached to along with that broadcast's new count.
func (v *Viewership) Detach(viewerID string) (broadcastID string, count int, ok bool) {
	broadcastID, ok = v.watching[viewerID]
	if !ok {
		return "", 0, false
	}
	v.unlink(broadcastID, viewerID)
	return broadcastID, len(v.audience[broadcastID]), true
}

// DetachBroadcast removes every edge into broadcastID and returns the former
// viewers in attach order.
func (v *Viewership) DetachBroadcast(broadcastID string) []string {
	viewers := v.audience[broadcastID]
	delete(v.audience, broadcastID)
	for _, id := range viewers {
		if v.watching[id] == broadcastID {
			delete(v.watching, id)
		}
	}
	return viewers
}

// CountOf is derived from the edge set.
func (v *Viewership) CountOf(broadcastID string) int {
	v.reconcile(broadcastID)
	return len(v.audience[broadcastID])
}

// Viewers returns a copy of the audience of broadcastID in attach order.
func (v *Viewership) Viewers(broadcastID string) []string {
	v.reconcile(broadcastID)
	return slices.Clone(v.audience[broadcastID])
}

// BroadcastOf returns the broadcast viewerID is attached to.
func (v *Viewership) BroadcastOf(viewerID string) (string, bool) {
	id, ok := v.watching[viewerID]
	return id, ok
}

// Edges lists every edge, grouped by broadcast.
func (v *Viewership) Edges() []Edge {
	ids := make([]string, 0, len(v.audience))
	for id := range v.audience {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var edges []Edge
	for _, b := range ids {
		for _, viewer := range v.audience[b] {
			edges = append(edges, Edge{BroadcastID: b, ViewerID: viewer})
		}
	}
	return edges
}

// Len is the number of edges.
func (v *Viewership) Len() int {
	return len(v.watching)
}

// reconcile drops edges that point at a broadcast the registry no longer
// holds. Reaching it means a removal path skipped DetachBroadcast.
func (v *Viewership) reconcile(broadcastID string) {
	if len(v.audience[broadcastID]) == 0 || v.registry.Has(broadcastID) {
		return
	}
	orphans := v.DetachBroadcast(broadcastID)
	logging.Warn().
		Str(logging.FieldBroadcastID, broadcastID).
		Int("edges", len(orphans)).
		Msg("removed viewership edges for missing broadcast")
}
