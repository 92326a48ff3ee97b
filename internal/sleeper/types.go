package sleeper

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// User is a Sleeper account. Nullable upstream fields decode to "".
type User struct {
	UserID         string `json:"user_id"`
	Username       string `json:"username"`
	DisplayName    string `json:"display_name"`
	Avatar         string `json:"avatar"`
	Email          string `json:"email"`
	IsBot          bool   `json:"is_bot"`
	SummonerName   string `json:"summoner_name"`
	SummonerRegion string `json:"summoner_region"`
}

// Exists reports whether the upstream returned a real account.
func (u User) Exists() bool { return u.UserID != "" }

// League is a Sleeper league. Settings and ScoringSettings are flat numeric
// maps whose keys are defined by the platform (waiver_type, pass_yd, ...).
type League struct {
	LeagueID        string         `json:"league_id"`
	Name            string         `json:"name"`
	Sport           string         `json:"sport"`
	Season          string         `json:"season"`
	SeasonType      string         `json:"season_type"`
	Status          string         `json:"status"`
	Avatar          string         `json:"avatar"`
	TotalRosters    int            `json:"total_rosters"`
	RosterPositions []string       `json:"roster_positions"`
	Settings        Numbers        `json:"settings"`
	ScoringSettings Numbers        `json:"scoring_settings"`
	Metadata        map[string]any `json:"metadata"`
}

// Setting returns settings[key] and whether it was present.
func (l League) Setting(key string) (float64, bool) {
	v, ok := l.Settings[key]
	return v, ok
}

// WaiverType returns settings.waiver_type, or -1 when absent.
func (l League) WaiverType() int {
	if v, ok := l.Settings["waiver_type"]; ok {
		return int(v)
	}
	return -1
}

// NumTeams returns settings.num_teams, or 0 when absent.
func (l League) NumTeams() int {
	return int(l.Settings["num_teams"])
}

// Roster is one team's player list within a league.
type Roster struct {
	RosterID int      `json:"roster_id"`
	OwnerID  string   `json:"owner_id"`
	LeagueID string   `json:"league_id"`
	Players  []string `json:"players"`
	Starters []string `json:"starters"`
}

// Numbers is a string->number map that skips null and non-numeric values
// instead of failing the whole league decode.
type Numbers map[string]float64

func (n *Numbers) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*n = nil
		return nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make(Numbers, len(raw))
	for k, v := range raw {
		f, err := strconv.ParseFloat(string(bytes.TrimSpace(v)), 64)
		if err != nil {
			continue
		}
		out[k] = f
	}
	*n = out
	return nil
}

// ownerString accepts owner_id as string, number or null.
type ownerString string

func (o *ownerString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*o = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*o = ownerString(s)
		return nil
	}
	*o = ownerString(b)
	return nil
}

func (r *Roster) UnmarshalJSON(b []byte) error {
	var wire struct {
		RosterID int         `json:"roster_id"`
		OwnerID  ownerString `json:"owner_id"`
		LeagueID string      `json:"league_id"`
		Players  []string    `json:"players"`
		Starters []string    `json:"starters"`
	}
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}
	*r = Roster{
		RosterID: wire.RosterID,
		OwnerID:  string(wire.OwnerID),
		LeagueID: wire.LeagueID,
		Players:  wire.Players,
		Starters: wire.Starters,
	}
	return nil
}
