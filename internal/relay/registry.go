package relay

// Registry maps a user to the live connections it currently owns. A user may
// be connected from several devices at once; a connection belongs to at most
// one user.
type Registry struct {
	idx *index[UserID]
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{idx: newIndex[UserID]()}
}

// Register binds c to id. It is idempotent. If c was registered under a
// different identity it is moved: the last call wins. The identity itself is
// not checked here, that is the auth layer's job.
func (r *Registry) Register(id UserID, c Conn) {
	r.idx.mu.Lock()
	defer r.idx.mu.Unlock()

	for previous := range r.idx.byConn[c] {
		if previous != id {
			r.idx.removeLocked(previous, c)
		}
	}
	r.idx.addLocked(id, c)
}

// Unregister removes c from whichever identity holds it. No-op if absent.
func (r *Registry) Unregister(c Conn) {
	r.idx.removeConn(c)
}

// ConnectionsFor returns a snapshot of the connections owned by id. An
// unknown identity yields an empty slice.
func (r *Registry) ConnectionsFor(id UserID) []Conn {
	return r.idx.conns(id)
}

// IdentityOf returns the identity c is registered under.
func (r *Registry) IdentityOf(c Conn) (UserID, bool) {
	ids := r.idx.keys(c)
	if len(ids) == 0 {
		return "", false
	}
	return ids[0], true
}

// Users returns the number of identities with at least one live connection.
func (r *Registry) Users() int {
	return r.idx.len()
}

func (r *Registry) each(ids []UserID, fn func(id UserID, c Conn)) {
	r.idx.visit(ids, fn)
}
