package fantasy

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anatolykoptev/huddle/internal/render"
	"github.com/anatolykoptev/huddle/internal/sleeper"
	"github.com/anatolykoptev/huddle/internal/toolreg"
)

type userLeaguesTool struct{ d Deps }

func (t *userLeaguesTool) Name() string { return ToolUserLeagues }

func (t *userLeaguesTool) Description() string {
	return "List every league a user is in for one sport and season, given the user's ID. " +
		"The user ID is mostly numbers. Sport and season default to " +
		strings.ToUpper(t.d.Sport) + " " + t.d.Season + "."
}

func (t *userLeaguesTool) Parameters() map[string]any {
	return toolreg.Object(map[string]any{
		"user_id": toolreg.StringParam("User ID of the user"),
		"sport":   map[string]any{"type": "string", "description": "Type of sport, e.g., NFL"},
		"season":  map[string]any{"type": "string", "description": "Year of the season"},
	}, "user_id")
}

// scope resolves sport and season, lower-casing the sport and applying defaults.
func (t *userLeaguesTool) scope(args map[string]any) (sport, season string) {
	sport = strings.ToLower(strings.TrimSpace(toolreg.String(args, "sport")))
	if sport == "" {
		sport = t.d.Sport
	}
	season = strings.TrimSpace(toolreg.String(args, "season"))
	if season == "" {
		season = t.d.Season
	}
	return sport, season
}

func (t *userLeaguesTool) Execute(ctx context.Context, args map[string]any) (*toolreg.Result, error) {
	userID := strings.TrimSpace(toolreg.String(args, "user_id"))
	sport, season := t.scope(args)

	leagues, raw, err := t.d.Sleeper.UserLeagues(ctx, userID, sport, season)
	if err != nil {
		return nil, fmt.Errorf("get leagues of %s: %w", userID, err)
	}
	return &toolreg.Result{Content: string(raw), View: leagueList(sport, season, leagues)}, nil
}

func (t *userLeaguesTool) Replay(arguments, content string) (render.View, error) {
	var leagues []sleeper.League
	if err := json.Unmarshal([]byte(content), &leagues); err != nil {
		return nil, fmt.Errorf("decode leagues: %w", err)
	}
	sport, season := t.scope(decodeArgs(arguments))
	return leagueList(sport, season, leagues), nil
}

func leagueList(sport, season string, leagues []sleeper.League) render.LeagueList {
	list := render.LeagueList{Sport: sport, Season: season, Leagues: make([]render.LeagueSummary, 0, len(leagues))}
	for _, l := range leagues {
		list.Leagues = append(list.Leagues, render.LeagueSummary{
			ID:     l.LeagueID,
			Name:   l.Name,
			Sport:  l.Sport,
			Season: l.Season,
			Status: l.Status,
		})
	}
	return list
}
