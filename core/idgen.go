package core

// IDGenerator hands out user IDs that never collide with IDs it has
// observed. It is not internally synchronized; callers serialize access
// through the database write lock.
type IDGenerator struct {
	next UserID
}

// NewIDGenerator returns a generator whose first ID is 1.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{next: 1}
}

// Saw records an externally supplied ID so that later generated IDs do not
// collide with it.
func (g *IDGenerator) Saw(id UserID) {
	if id >= g.next {
		g.next = id + 1
	}
}

// Next returns a fresh user ID, strictly greater than every ID ever passed
// to Saw and every ID previously returned.
func (g *IDGenerator) Next() UserID {
	id := g.next
	g.next++
	return id
}
