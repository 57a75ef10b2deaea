// Package melody loads the precomputed melody table for a song and answers
// "which pitch should the singer be on right now" for a playback time.
//
// A melody file is a comma-separated text table of (time_seconds,
// frequency_hz) rows. Leading lines starting with '#' are comments; blank
// lines are skipped anywhere. The table is sorted by time on load and is
// immutable afterwards, so a [Track] may be shared freely between goroutines.
package melody

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
)

// Window bounds the distance between the playback clock and a melody point
// for that point to be used as the target. A point exactly Window away is
// out of range.
const Window = 0.5

// ErrEmpty is returned when a melody file contains no data rows.
var ErrEmpty = errors.New("melody: no data rows")

// Point is a scheduled target pitch.
type Point struct {
	Time      float64 // seconds from song start
	Frequency float64 // Hz; 0 means no target (rest)
}

// Track is an immutable, time-sorted melody table.
type Track struct {
	points []Point
}

// NewTrack builds a Track from points. The input is copied and sorted by time.
func NewTrack(points []Point) *Track {
	p := slices.Clone(points)
	slices.SortStableFunc(p, func(a, b Point) int {
		switch {
		case a.Time < b.Time:
			return -1
		case a.Time > b.Time:
			return 1
		}
		return 0
	})
	return &Track{points: p}
}

// Len returns the number of melody points.
func (t *Track) Len() int {
	if t == nil {
		return 0
	}
	return len(t.points)
}

// Points returns a copy of the melody table.
func (t *Track) Points() []Point {
	if t == nil {
		return nil
	}
	return slices.Clone(t.points)
}

// Duration returns the timestamp of the last melody point.
func (t *Track) Duration() float64 {
	if t.Len() == 0 {
		return 0
	}
	return t.points[len(t.points)-1].Time
}

// Target returns the frequency of the point closest to clock within
// less than [Window] seconds, or 0 when no point qualifies. A nil Track has no target.
func (t *Track) Target(clock float64) float64 {
	if t.Len() == 0 || math.IsNaN(clock) {
		return 0
	}
	pts := t.points
	// First point with Time >= clock; the nearest is it or its predecessor.
	i, _ := slices.BinarySearchFunc(pts, clock, func(p Point, c float64) int {
		switch {
		case p.Time < c:
			return -1
		case p.Time > c:
			return 1
		}
		return 0
	})

	best := -1
	bestDist := math.Inf(1)
	for _, j := range [2]int{i - 1, i} {
		if j < 0 || j >= len(pts) {
			continue
		}
		if d := math.Abs(pts[j].Time - clock); d < bestDist {
			best, bestDist = j, d
		}
	}
	if best < 0 || bestDist >= Window {
		return 0
	}
	return pts[best].Frequency
}

// Load reads and parses the melody file at path.
func Load(path string) (*Track, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("melody: open %q: %w", path, err)
	}
	defer f.Close()

	t, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("melody: parse %q: %w", path, err)
	}
	return t, nil
}

// Parse decodes a melody table from r.
func Parse(r io.Reader) (*Track, error) {
	sc := bufio.NewScanner(r)
	var points []Point
	header := true
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if header && strings.HasPrefix(line, "#") {
			continue
		}
		header = false

		timeStr, freqStr, ok := strings.Cut(line, ",")
		if !ok {
			return nil, fmt.Errorf("line %d: expected \"time,frequency\", got %q", lineNo, line)
		}
		ts, err := strconv.ParseFloat(strings.TrimSpace(timeStr), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: time: %w", lineNo, err)
		}
		freq, err := strconv.ParseFloat(strings.TrimSpace(freqStr), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: frequency: %w", lineNo, err)
		}
		if math.IsNaN(ts) || math.IsInf(ts, 0) || ts < 0 {
			return nil, fmt.Errorf("line %d: time %v out of range", lineNo, ts)
		}
		if math.IsNaN(freq) || math.IsInf(freq, 0) || freq < 0 {
			return nil, fmt.Errorf("line %d: frequency %v out of range", lineNo, freq)
		}
		points = append(points, Point{Time: ts, Frequency: freq})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	if len(points) == 0 {
		return nil, ErrEmpty
	}
	return NewTrack(points), nil
}
