package fantasy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anatolykoptev/huddle/internal/players"
	"github.com/anatolykoptev/huddle/internal/render"
	"github.com/anatolykoptev/huddle/internal/sleeper"
	"github.com/anatolykoptev/huddle/internal/toolreg"
)

// MsgRosterNotFound is shown and committed when no roster matches the owner.
const MsgRosterNotFound = "Roster not found for the provided ID."

type rosterContent struct {
	LeagueID string             `json:"league_id"`
	RosterID int                `json:"roster_id"`
	OwnerID  string             `json:"owner_id"`
	Players  []players.Resolved `json:"players"`
}

type rosterTool struct{ d Deps }

func (t *rosterTool) Name() string { return ToolRoster }

func (t *rosterTool) Description() string {
	return "Retrieve one team's roster in a league. The roster is matched by the owner's user ID; " +
		"pass the roster ID too when known."
}

func (t *rosterTool) Parameters() map[string]any {
	return toolreg.Object(map[string]any{
		"league_id": toolreg.StringParam("League ID of the specific league"),
		"roster_id": map[string]any{"type": "string", "description": "Roster ID of the specific roster"},
		"owner_id":  map[string]any{"type": "string", "description": "User ID of the owner of the roster"},
	}, "league_id", "roster_id", "owner_id")
}

func (t *rosterTool) Execute(ctx context.Context, args map[string]any) (*toolreg.Result, error) {
	leagueID := strings.TrimSpace(toolreg.String(args, "league_id"))
	rosterID := strings.TrimSpace(toolreg.String(args, "roster_id"))
	ownerID := strings.TrimSpace(toolreg.String(args, "owner_id"))

	rosters, _, err := t.d.Sleeper.Rosters(ctx, leagueID)
	if err != nil {
		return nil, fmt.Errorf("get rosters of %s: %w", leagueID, err)
	}

	idx := owners(ctx)
	if cached, ok := idx.Owner(leagueID, rosterID); ok && cached != ownerID {
		slog.Warn("roster id and owner id disagree",
			slog.String("league_id", leagueID),
			slog.String("roster_id", rosterID),
			slog.String("owner_id", ownerID),
			slog.String("cached_owner", cached))
	}
	idx.Record(leagueID, rosters)

	match, ok := findByOwner(rosters, ownerID)
	if !ok {
		slog.Info("no roster for owner",
			slog.String("league_id", leagueID),
			slog.String("roster_id", rosterID),
			slog.String("owner_id", ownerID))
		content, err := marshal(map[string]string{"error": MsgRosterNotFound})
		if err != nil {
			return nil, err
		}
		return &toolreg.Result{Content: content, View: notFound()}, nil
	}

	rc := rosterContent{
		LeagueID: leagueID,
		RosterID: match.RosterID,
		OwnerID:  match.OwnerID,
		Players:  t.d.Players.ResolveAll(match.Players),
	}
	content, err := marshal(rc)
	if err != nil {
		return nil, fmt.Errorf("encode roster: %w", err)
	}
	return &toolreg.Result{Content: content, View: rosterView(rc)}, nil
}

func (t *rosterTool) Replay(_, content string) (render.View, error) {
	var wire struct {
		rosterContent
		Error string `json:"error"`
	}
	if err := json.Unmarshal([]byte(content), &wire); err != nil {
		return nil, fmt.Errorf("decode roster: %w", err)
	}
	if wire.Error != "" {
		return render.Error{Title: "Error", Message: wire.Error}, nil
	}
	return rosterView(wire.rosterContent), nil
}

// findByOwner returns the first roster owned by ownerID. An empty owner never
// matches, so orphaned rosters are not picked up by accident.
func findByOwner(rosters []sleeper.Roster, ownerID string) (sleeper.Roster, bool) {
	if ownerID == "" {
		return sleeper.Roster{}, false
	}
	for _, r := range rosters {
		if r.OwnerID == ownerID {
			return r, true
		}
	}
	return sleeper.Roster{}, false
}

func notFound() render.Error {
	return render.Error{Title: "Error", Message: MsgRosterNotFound}
}

func rosterView(rc rosterContent) render.Roster {
	return render.Roster{
		LeagueID: rc.LeagueID,
		RosterID: rc.RosterID,
		OwnerID:  rc.OwnerID,
		Players:  rc.Players,
	}
}

