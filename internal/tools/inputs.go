package tools

// --- MCP tool input structs ---

type UserInfoInput struct {
	Username string `json:"username" jsonschema:"Sleeper username of the user"`
}

type UserLeaguesInput struct {
	UserID string `json:"user_id" jsonschema:"Sleeper user id"`
	Sport  string `json:"sport,omitempty" jsonschema:"Sport, defaults to nfl"`
	Season string `json:"season,omitempty" jsonschema:"Season year, defaults to the configured season"`
}

type LeagueInput struct {
	LeagueID string `json:"league_id" jsonschema:"Sleeper league id"`
}

type RosterInput struct {
	LeagueID string `json:"league_id" jsonschema:"League the roster belongs to"`
	RosterID string `json:"roster_id" jsonschema:"Roster id within the league"`
	OwnerID  string `json:"owner_id" jsonschema:"User id of the roster owner"`
}

// Output is what every tool returns: the rendered answer plus the Sleeper
// JSON it was built from.
type Output struct {
	Text string `json:"text"`
	Data string `json:"data" jsonschema:"Raw JSON the answer was built from"`
}
