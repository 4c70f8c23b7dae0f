// Package migrations embeds the database schema.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed *.sql
var files embed.FS

const (
	upMarker   = "-- +migrate Up"
	downMarker = "-- +migrate Down"
)

// Migration is one schema step.
type Migration struct {
	Name string
	Up   string
	Down string
}

// All returns the embedded migrations ordered by file name.
func All() ([]Migration, error) {
	names, err := fs.Glob(files, "*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	out := make([]Migration, 0, len(names))
	for _, name := range names {
		data, err := files.ReadFile(name)
		if err != nil {
			return nil, err
		}
		m, err := parse(name, string(data))
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func parse(name, body string) (Migration, error) {
	up := strings.Index(body, upMarker)
	if up < 0 {
		return Migration{}, fmt.Errorf("migrations: %s has no up section", name)
	}
	m := Migration{Name: name}
	rest := body[up+len(upMarker):]
	if down := strings.Index(rest, downMarker); down >= 0 {
		m.Up = strings.TrimSpace(rest[:down])
		m.Down = strings.TrimSpace(rest[down+len(downMarker):])
	} else {
		m.Up = strings.TrimSpace(rest)
	}
	return m, nil
}
