package signaling

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/mossy-p/livestream-signaling/internal/models"
)

// DefaultOwnerName is used when a broadcaster registers without a name.
const DefaultOwnerName = "Streamer"

// Registry holds one Broadcast per live broadcaster identity, in the order
// they first registered.
type Registry struct {
	broadcasts map[string]*models.Broadcast
	order      []string
	seq        int
	now        func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		broadcasts: make(map[string]*models.Broadcast),
		now:        time.Now,
	}
}

// Register creates or replaces the broadcast for id. A replacement keeps the
// original creation time and list position, and keeps its title when the new
// one is blank. The second return value reports whether id was already live.
func (r *Registry) Register(id, title, ownerName string) (models.Broadcast, bool) {
	title = strings.TrimSpace(title)
	ownerName = strings.TrimSpace(ownerName)
	if ownerName == "" {
		ownerName = DefaultOwnerName
	}

	if b, ok := r.broadcasts[id]; ok {
		if title != "" {
			b.Title = title
		}
		b.OwnerName = ownerName
		return *b, true
	}

	if title == "" {
		title = r.placeholderTitle()
	}
	b := &models.Broadcast{
		ID:        id,
		Title:     title,
		OwnerName: ownerName,
		CreatedAt: r.now().UTC(),
	}
	r.broadcasts[id] = b
	r.order = append(r.order, id)
	return *b, false
}

// placeholderTitle draws from a sequence that lives as long as the registry,
// skipping numbers whose title is currently taken.
func (r *Registry) placeholderTitle() string {
	for {
		r.seq++
		title := fmt.Sprintf("Livestream %d", r.seq)
		if !r.titleInUse(title) {
			return title
		}
	}
}

func (r *Registry) titleInUse(title string) bool {
	for _, b := range r.broadcasts {
		if b.Title == title {
			return true
		}
	}
	return false
}

func (r *Registry) Get(id string) (models.Broadcast, bool) {
	b, ok := r.broadcasts[id]
	if !ok {
		return models.Broadcast{}, false
	}
	return *b, true
}

// Has reports whether id is a live broadcaster.
func (r *Registry) Has(id string) bool {
	_, ok := r.broadcasts[id]
	return ok
}

// List returns a copy of all live broadcasts in registration order.
func (r *Registry) List() []models.Broadcast {
	out := make([]models.Broadcast, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.broadcasts[id])
	}
	return out
}

// Remove deletes the broadcast for id and reports whether one existed.
func (r *Registry) Remove(id string) bool {
	if _, ok := r.broadcasts[id]; !ok {
		return false
	}
	delete(r.broadcasts, id)
	if i := slices.Index(r.order, id); i >= 0 {
		r.order = slices.Delete(r.order, i, i+1)
	}
	return true
}

func (r *Registry) Len() int {
	return len(r.broadcasts)
}
