package sleeper

import (
	"strconv"
	"sync"
)

type rosterKey struct {
	leagueID string
	rosterID string
}

// OwnerIndex caches (league_id, roster_id) -> owner_id for one chat session.
// It is filled from league roster lists and read when a roster is requested
// by id. Safe for concurrent use.
type OwnerIndex struct {
	mu     sync.RWMutex
	owners map[rosterKey]string
}

func NewOwnerIndex() *OwnerIndex {
	return &OwnerIndex{owners: make(map[rosterKey]string)}
}

// Record stores the owner of every roster in the list.
func (x *OwnerIndex) Record(leagueID string, rosters []Roster) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, r := range rosters {
		x.owners[rosterKey{leagueID, strconv.Itoa(r.RosterID)}] = r.OwnerID
	}
}

// Owner returns the cached owner of a roster.
func (x *OwnerIndex) Owner(leagueID, rosterID string) (string, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	owner, ok := x.owners[rosterKey{leagueID, rosterID}]
	return owner, ok
}

// Len returns the number of cached rosters.
func (x *OwnerIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.owners)
}
