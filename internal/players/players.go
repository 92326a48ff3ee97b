// Package players resolves Sleeper player ids to names, positions and teams.
//
// The table is static reference data: the full dump synced from Sleeper and
// cached on disk, or an embedded sample when no sync has succeeded. It is
// loaded once and never mutated.
package players

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// Fallbacks for ids missing from the table.
const (
	UnknownName     = "Unknown Player"
	UnknownPosition = "Unknown Position"
	FreeAgent       = "Free Agent"
)

//go:embed players.json
var embedded []byte

// Player is one entry of the reference table. The full dump carries many more
// fields; only these are kept.
type Player struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Position  string `json:"position"`
	Team      string `json:"team"`
}

// Resolved is a player id mapped to display values, with fallbacks applied.
type Resolved struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Position string `json:"position"`
	Team     string `json:"team"`
}

// Table is a read-only id -> Player map.
type Table struct {
	byID map[string]Player
}

var defaultTable = sync.OnceValue(func() *Table {
	t, err := parse(embedded)
	if err != nil {
		panic(fmt.Sprintf("players: embedded table: %v", err))
	}
	return t
})

// Default returns the embedded table.
func Default() *Table { return defaultTable() }

// Load reads a table from path, or returns the embedded one when path is empty.
func Load(path string) (*Table, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open players file: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Read parses a JSON object keyed by player id.
func Read(r io.Reader) (*Table, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read players: %w", err)
	}
	return parse(b)
}

func parse(b []byte) (*Table, error) {
	var m map[string]*Player
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode players: %w", err)
	}
	byID := make(map[string]Player, len(m))
	for id, p := range m {
		if p != nil {
			byID[id] = *p
		}
	}
	return &Table{byID: byID}, nil
}

// Lookup returns the raw entry for id.
func (t *Table) Lookup(id string) (Player, bool) {
	p, ok := t.byID[id]
	return p, ok
}

// Resolve maps id to display values. Unknown ids get the fallback strings;
// a known player without a team is a free agent.
func (t *Table) Resolve(id string) Resolved {
	p, ok := t.byID[id]
	if !ok {
		return Resolved{ID: id, Name: UnknownName, Position: UnknownPosition, Team: FreeAgent}
	}
	r := Resolved{ID: id, Name: p.FirstName + " " + p.LastName, Position: p.Position, Team: p.Team}
	if r.Team == "" {
		r.Team = FreeAgent
	}
	return r
}

// ResolveAll maps every id in order.
func (t *Table) ResolveAll(ids []string) []Resolved {
	out := make([]Resolved, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.Resolve(id))
	}
	return out
}

// Len returns the number of players in the table.
func (t *Table) Len() int { return len(t.byID) }
