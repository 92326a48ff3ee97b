// Package fantasy holds the Sleeper lookups the assistant can call: user
// profile, league list, league detail and a single roster.
package fantasy

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/anatolykoptev/huddle/internal/config"
	"github.com/anatolykoptev/huddle/internal/players"
	"github.com/anatolykoptev/huddle/internal/session"
	"github.com/anatolykoptev/huddle/internal/sleeper"
	"github.com/anatolykoptev/huddle/internal/toolreg"
)

// Function names as advertised to the model.
const (
	ToolUserInfo      = "getUserInfo"
	ToolUserLeagues   = "getAllUserLeaguesAndDetails"
	ToolLeagueDetails = "getIndividualLeagueDetails"
	ToolRoster        = "getUserRosterByRosterId"
)

// Sleeper is the subset of *sleeper.Client the tools use.
type Sleeper interface {
	User(ctx context.Context, username string) (sleeper.User, json.RawMessage, error)
	UserLeagues(ctx context.Context, userID, sport, season string) ([]sleeper.League, json.RawMessage, error)
	League(ctx context.Context, leagueID string) (sleeper.League, json.RawMessage, error)
	Rosters(ctx context.Context, leagueID string) ([]sleeper.Roster, json.RawMessage, error)
}

// Deps is shared by all four tools.
type Deps struct {
	Sleeper   Sleeper
	Players   *players.Table
	AvatarURL string
	Sport     string
	Season    string
}

// DepsFromConfig fills the defaults from the Sleeper config.
func DepsFromConfig(cfg config.SleeperConfig, client Sleeper, table *players.Table) Deps {
	return Deps{
		Sleeper:   client,
		Players:   table,
		AvatarURL: cfg.AvatarURL,
		Sport:     cfg.DefaultSport,
		Season:    cfg.DefaultSeason,
	}
}

// Tools returns the four tools in a fixed order.
func Tools(d Deps) []toolreg.Tool {
	if d.Players == nil {
		d.Players = players.Default()
	}
	return []toolreg.Tool{
		&userInfoTool{d: d},
		&userLeaguesTool{d: d},
		&leagueDetailsTool{d: d},
		&rosterTool{d: d},
	}
}

// Register adds every tool to r.
func Register(r *toolreg.Registry, d Deps) error {
	for _, t := range Tools(d) {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// owners returns the session's owner index, or a throw-away one outside a chat.
func owners(ctx context.Context) *sleeper.OwnerIndex {
	if s := session.FromContext(ctx); s != nil {
		return s.Owners()
	}
	return sleeper.NewOwnerIndex()
}

func avatarURL(base, avatar string) string {
	if avatar == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/" + avatar
}

// decodeArgs reads replayed model arguments. Broken input yields an empty map.
func decodeArgs(raw string) map[string]any {
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil || args == nil {
		return map[string]any{}
	}
	return args
}

func marshal(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
