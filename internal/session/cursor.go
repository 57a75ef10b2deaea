package session

// Cursor walks a looping instrumental track one frame at a time.
type Cursor struct {
	track []float64
	pos   int
}

// NewCursor returns a cursor at the start of track. The slice is not copied
// and must not be modified while the cursor is in use.
func NewCursor(track []float64) *Cursor {
	return &Cursor{track: track}
}

// Position returns the current index into the track, always in [0, Len()).
// It is 0 for an empty track.
func (c *Cursor) Position() int { return c.pos }

// Len returns the track length in samples.
func (c *Cursor) Len() int { return len(c.track) }

// Slice fills dst with the next len(dst) track samples starting at the
// cursor, wrapping to the track start as needed. It does not move the cursor.
// An empty track yields silence.
func (c *Cursor) Slice(dst []float64) {
	l := len(c.track)
	if l == 0 {
		clear(dst)
		return
	}
	idx := c.pos
	for i := range dst {
		dst[i] = c.track[idx]
		idx++
		if idx == l {
			idx = 0
		}
	}
}

// Advance moves the cursor forward by n samples modulo the track length.
func (c *Cursor) Advance(n int) {
	l := len(c.track)
	if l == 0 || n <= 0 {
		return
	}
	c.pos = (c.pos + n%l) % l
}

// Seek moves the cursor to sample index pos modulo the track length.
func (c *Cursor) Seek(pos int) {
	l := len(c.track)
	if l == 0 {
		return
	}
	c.pos = ((pos % l) + l) % l
}
