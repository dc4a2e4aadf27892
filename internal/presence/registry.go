// Package presence tracks which usernames currently have a live connection.
package presence

// Registry is an ordered set of usernames, ordered by first join.
//
// Registry is not safe for concurrent use; the owner serializes access.
type Registry struct {
	index map[string]int
	names []string
}

func NewRegistry() *Registry {
	return &Registry{
		index: make(map[string]int),
	}
}

// Join adds username to the set and returns the current roster.
// Joining twice is a no-op.
func (r *Registry) Join(username string) []string {
	if _, ok := r.index[username]; !ok {
		r.index[username] = len(r.names)
		r.names = append(r.names, username)
	}

	return r.Roster()
}

// Leave removes username from the set and returns the current roster.
func (r *Registry) Leave(username string) []string {
	i, ok := r.index[username]
	if !ok {
		return r.Roster()
	}

	delete(r.index, username)
	r.names = append(r.names[:i], r.names[i+1:]...)
	for j := i; j < len(r.names); j++ {
		r.index[r.names[j]] = j
	}

	return r.Roster()
}

func (r *Registry) Contains(username string) bool {
	_, ok := r.index[username]
	return ok
}

func (r *Registry) Len() int {
	return len(r.names)
}

// Roster returns a copy of the usernames in join order. It is never nil.
func (r *Registry) Roster() []string {
	roster := make([]string, len(r.names))
	copy(roster, r.names)
	return roster
}
