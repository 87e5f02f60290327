package signaling

import "strings"

// DefaultDisplayName is reported for sessions that never declared a name.
const DefaultDisplayName = "Unknown"

// Directory maps connection identities to display names.
type Directory struct {
	names map[string]string
}

func NewDirectory() *Directory {
	return &Directory{names: make(map[string]string)}
}

// Add creates the session entry for a newly connected identity.
func (d *Directory) Add(id string) {
	if _, ok := d.names[id]; !ok {
		d.names[id] = DefaultDisplayName
	}
}

// SetDisplayName stores name for id, falling back to DefaultDisplayName
// when name is blank.
func (d *Directory) SetDisplayName(id, name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultDisplayName
	}
	d.names[id] = name
}

func (d *Directory) DisplayNameOf(id string) string {
	if name, ok := d.names[id]; ok {
		return name
	}
	return DefaultDisplayName
}

func (d *Directory) Remove(id string) {
	delete(d.names, id)
}

func (d *Directory) Len() int {
	return len(d.names)
}
