// Package songs locates prepared songs in the songs directory.
//
// A prepared song lives in its own directory:
//
//	<songs>/<dir>/<name>_melody.txt
//	<songs>/<dir>/<name>_separated/*instrumental*.wav
//
// Directory names produced by the preparation pipeline carry a hash and
// timestamp suffix (e.g. "Hello_Official_Video_f66263_20250811_202548"),
// which [CleanName] strips. [Finder.Find] resolves a free-form query against
// the available songs in three passes:
//
//  1. exact match on the directory name or its cleaned name,
//  2. substring match on the normalised name (shortest name wins),
//  3. Double Metaphone candidate filtering ranked by Jaro-Winkler similarity,
//     falling back to pure Jaro-Winkler above the fuzzy threshold.
package songs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85

	// preferredInstrumental marks the stem produced by the separation model
	// the preparation pipeline uses. Any other "instrumental" file is a
	// fallback.
	preferredInstrumental = "instrumental model_bs_roformer_ep_317_sdr_1"
)

// ErrNotFound is returned when no song matches a query or a song directory
// lacks a melody or instrumental file.
var ErrNotFound = errors.New("songs: not found")

var (
	timestampSuffix = regexp.MustCompile(`_[a-f0-9]+_\d{8}_\d{6}$`)
	officialSuffix  = regexp.MustCompile(`_Official_Video$`)
	separators      = strings.NewReplacer("_", " ", "-", " ", ".", " ")
)

// Song is a resolved, playable song.
type Song struct {
	// Name is the cleaned song name.
	Name string

	// Dir is the song's directory.
	Dir string

	// Melody is the melody table path.
	Melody string

	// Instrumental is the backing track path.
	Instrumental string
}

// CleanName strips the preparation pipeline's suffixes from a directory name.
func CleanName(dir string) string {
	name := timestampSuffix.ReplaceAllString(dir, "")
	return officialSuffix.ReplaceAllString(name, "")
}

// normalize lowercases s and turns separators into single spaces.
func normalize(s string) string {
	return strings.Join(strings.Fields(separators.Replace(strings.ToLower(s))), " ")
}

// Option is a functional option for configuring a [Finder].
type Option func(*Finder)

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for a match without
// phonetic overlap. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(f *Finder) { f.fuzzyThreshold = threshold }
}

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a
// phonetically matching candidate. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(f *Finder) { f.phoneticThreshold = threshold }
}

// Finder searches one songs directory. It is read-only after construction
// and safe for concurrent use.
type Finder struct {
	dir               string
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// NewFinder returns a Finder over dir.
func NewFinder(dir string, opts ...Option) *Finder {
	f := &Finder{
		dir:               dir,
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Dir returns the songs directory.
func (f *Finder) Dir() string { return f.dir }

// List returns every complete song, sorted by name. Incomplete directories
// are skipped.
func (f *Finder) List() ([]Song, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("songs: list %s: %w", f.dir, err)
	}
	var out []Song
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		s, err := Resolve(filepath.Join(f.dir, e.Name()))
		if err != nil {
			continue
		}
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b Song) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

// Find returns the song best matching query.
func (f *Finder) Find(query string) (Song, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Song{}, fmt.Errorf("%w: empty query", ErrNotFound)
	}

	// Exact directory name.
	if fi, err := os.Stat(filepath.Join(f.dir, query)); err == nil && fi.IsDir() && filepath.Base(query) == query {
		return Resolve(filepath.Join(f.dir, query))
	}

	all, err := f.List()
	if err != nil {
		return Song{}, err
	}
	if s, ok := f.match(query, all); ok {
		return s, nil
	}
	return Song{}, fmt.Errorf("%w: %q", ErrNotFound, query)
}

func (f *Finder) match(query string, all []Song) (Song, bool) {
	q := normalize(CleanName(query))
	if q == "" {
		return Song{}, false
	}

	// Exact on cleaned names.
	for _, s := range all {
		if normalize(s.Name) == q {
			return s, true
		}
	}

	// Substring, shortest name first.
	var sub []Song
	for _, s := range all {
		if strings.Contains(normalize(s.Name), q) {
			sub = append(sub, s)
		}
	}
	if len(sub) > 0 {
		return slices.MinFunc(sub, func(a, b Song) int { return len(a.Name) - len(b.Name) }), true
	}

	// Phonetic candidates ranked by Jaro-Winkler, then pure fuzzy fallback.
	qTokens := strings.Fields(q)
	qCodes := codesForTokens(qTokens)
	var best Song
	bestScore := 0.0
	for _, s := range all {
		name := normalize(s.Name)
		tokens := strings.Fields(name)
		score := bestJWScore(qTokens, tokens, q, name)
		threshold := f.fuzzyThreshold
		if codesOverlap(qCodes, codesForTokens(tokens)) {
			threshold = f.phoneticThreshold
		}
		if score >= threshold && score > bestScore {
			best, bestScore = s, score
		}
	}
	return best, bestScore > 0
}

// Resolve builds a [Song] from a song directory, locating the melody table
// and the instrumental track.
func Resolve(songDir string) (Song, error) {
	name := CleanName(filepath.Base(songDir))
	s := Song{Name: name, Dir: songDir}

	melodies, _ := filepath.Glob(filepath.Join(songDir, "*melody.txt"))
	if len(melodies) == 0 {
		return Song{}, fmt.Errorf("%w: no melody file in %s", ErrNotFound, songDir)
	}
	slices.Sort(melodies)
	s.Melody = melodies[0]

	sepDir := filepath.Join(songDir, name+"_separated")
	if fi, err := os.Stat(sepDir); err != nil || !fi.IsDir() {
		sepDir = ""
		entries, _ := os.ReadDir(songDir)
		for _, e := range entries {
			if e.IsDir() && strings.Contains(strings.ToLower(e.Name()), "separated") {
				sepDir = filepath.Join(songDir, e.Name())
				break
			}
		}
	}
	if sepDir == "" {
		return Song{}, fmt.Errorf("%w: no separated directory in %s", ErrNotFound, songDir)
	}

	entries, err := os.ReadDir(sepDir)
	if err != nil {
		return Song{}, fmt.Errorf("songs: read %s: %w", sepDir, err)
	}
	for _, e := range entries {
		lower := strings.ToLower(e.Name())
		if e.IsDir() || !strings.HasSuffix(lower, ".wav") || !strings.Contains(lower, "instrumental") {
			continue
		}
		if strings.Contains(lower, preferredInstrumental) {
			s.Instrumental = filepath.Join(sepDir, e.Name())
			break
		}
		if s.Instrumental == "" {
			s.Instrumental = filepath.Join(sepDir, e.Name())
		}
	}
	if s.Instrumental == "" {
		return Song{}, fmt.Errorf("%w: no instrumental file in %s", ErrNotFound, sepDir)
	}
	return s, nil
}

// codesForTokens returns the union of all Double Metaphone codes for the
// given tokens.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// minPairToken is the shortest token considered for pairwise scoring, so
// filler words like "the" do not match on their own.
const minPairToken = 4

// bestJWScore is the highest Jaro-Winkler similarity across the full
// strings, the space-stripped strings and every pair of significant tokens.
func bestJWScore(qTokens, nTokens []string, q, name string) float64 {
	score := matchr.JaroWinkler(q, name, false)
	if len(qTokens) > 1 || len(nTokens) > 1 {
		if s := matchr.JaroWinkler(strings.Join(qTokens, ""), strings.Join(nTokens, ""), false); s > score {
			score = s
		}
	}
	for _, a := range qTokens {
		if len(a) < minPairToken {
			continue
		}
		for _, b := range nTokens {
			if len(b) < minPairToken {
				continue
			}
			if s := matchr.JaroWinkler(a, b, false); s > score {
				score = s
			}
		}
	}
	return score
}
