// Package configfile reads and rewrites single assignments in service config
// files while leaving every other line, comment and section in place.
package configfile

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/moby/sys/atomicwriter"
)

// Format selects the assignment syntax of a config file.
type Format string

const (
	// FormatINI is "key = value", as in php.ini, my.cnf and postgresql.conf.
	FormatINI Format = "ini"
	// FormatSpace is "key value", as in redis.conf.
	FormatSpace Format = "space"
	// FormatNginx is "key value;".
	FormatNginx Format = "nginx"
)

// Valid reports whether f is a known format. The empty format means INI.
func (f Format) Valid() bool {
	switch f {
	case "", FormatINI, FormatSpace, FormatNginx:
		return true
	}
	return false
}

// Files is the storage behind file-backed config options.
type Files interface {
	// Read returns every assignment in the file. A missing file reads as
	// empty.
	Read(path string, format Format) (map[string]string, error)
	// Write sets each key in place, appending keys the file does not have.
	Write(path string, format Format, values map[string]string) error
}

// Host reads and writes files on the local filesystem. Writes replace the
// file atomically and keep its mode.
type Host struct{}

func (Host) Read(path string, format Format) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return Parse(data, format), nil
}

func (Host) Write(path string, format Format, values map[string]string) error {
	perm := fs.FileMode(0o644)
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return fmt.Errorf("read %s: %w", path, err)
	default:
		if st, err := os.Stat(path); err == nil {
			perm = st.Mode().Perm()
		}
	}

	if err := atomicwriter.WriteFile(path, Set(data, format, values), perm); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Parse returns the assignments in data. The first assignment of a key wins.
func Parse(data []byte, format Format) map[string]string {
	out := make(map[string]string)
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		k, v, _, ok := parseLine(sc.Text(), format)
		if !ok {
			continue
		}
		if _, seen := out[k]; !seen {
			out[k] = v
		}
	}
	return out
}

// Set rewrites the first assignment of each key in data and appends the rest
// in key order. Indentation and quoting of rewritten lines are kept.
func Set(data []byte, format Format, values map[string]string) []byte {
	lines := strings.Split(string(data), "\n")
	trailing := len(lines) > 0 && lines[len(lines)-1] == ""
	if trailing {
		lines = lines[:len(lines)-1]
	}

	done := make(map[string]bool, len(values))
	for i, line := range lines {
		k, _, quote, ok := parseLine(line, format)
		if !ok || done[k] {
			continue
		}
		v, want := values[k]
		if !want {
			continue
		}
		indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
		lines[i] = indent + render(format, k, quote+v+quote)
		done[k] = true
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		if !done[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		lines = append(lines, render(format, k, values[k]))
	}

	return []byte(strings.Join(lines, "\n") + "\n")
}

func render(format Format, key, value string) string {
	switch format {
	case FormatSpace:
		return key + " " + value
	case FormatNginx:
		return key + " " + value + ";"
	default:
		return key + " = " + value
	}
}

// parseLine splits an assignment line. quote is the quote character the
// value was wrapped in, if any.
func parseLine(line string, format Format) (key, value, quote string, ok bool) {
	s := strings.TrimSpace(line)
	if s == "" || s[0] == '#' || s[0] == ';' || s[0] == '[' {
		return "", "", "", false
	}

	switch format {
	case FormatSpace, FormatNginx:
		if format == FormatNginx {
			if !strings.HasSuffix(s, ";") {
				return "", "", "", false
			}
			s = strings.TrimSpace(strings.TrimSuffix(s, ";"))
		}
		fields := strings.Fields(s)
		if len(fields) < 2 {
			return "", "", "", false
		}
		key, value = fields[0], strings.Join(fields[1:], " ")
	default:
		k, v, found := strings.Cut(s, "=")
		if !found {
			return "", "", "", false
		}
		key, value = strings.TrimSpace(k), strings.TrimSpace(v)
		if i := strings.Index(value, " #"); i >= 0 {
			value = strings.TrimSpace(value[:i])
		}
	}
	if key == "" {
		return "", "", "", false
	}

	if n := len(value); n >= 2 && (value[0] == '\'' || value[0] == '"') && value[n-1] == value[0] {
		quote = value[:1]
		value = value[1 : n-1]
	}
	return key, value, quote, true
}
