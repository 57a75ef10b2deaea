package params

import (
	"bufio"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
)

// Parse reads a key=value document. Blank lines and lines starting with '#'
// are ignored. Keys are not validated here; later lines win.
func Parse(r io.Reader) (map[string]string, error) {
	kv := make(map[string]string)
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		key, value, ok := strings.Cut(text, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("params: line %d: expected key=value, got %q", line, text)
		}
		kv[key] = strings.TrimSpace(value)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("params: read: %w", err)
	}
	return kv, nil
}

// Format writes e as a key=value document in [Keys] order.
func Format(w io.Writer, e Effects) error {
	bw := bufio.NewWriter(w)
	for _, key := range Keys {
		var value string
		switch key {
		case KeyEnableChorus:
			value = formatBool(e.EnableChorus)
		case KeyEnableReverb:
			value = formatBool(e.EnableReverb)
		default:
			f, _ := e.number(key)
			value = strconv.FormatFloat(f, 'g', -1, 64)
		}
		if _, err := fmt.Fprintf(bw, "%s=%s\n", key, value); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func sortedKeys(kv map[string]string) []string {
	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
