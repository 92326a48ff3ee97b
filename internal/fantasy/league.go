package fantasy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anatolykoptev/huddle/internal/render"
	"github.com/anatolykoptev/huddle/internal/sleeper"
	"github.com/anatolykoptev/huddle/internal/toolreg"
)

// Scoring type labels. Sleeper's waiver_type 1 marks a standard league.
const (
	ScoringStandard = "Standard"
	ScoringPPR      = "PPR"
)

const (
	unitYard  = "per yard"
	unitPoint = "points"
)

// scoringKeys are the scoring_settings shown on the league card, in order.
var scoringKeys = []struct {
	key, label, unit string
}{
	{"pass_yd", "Passing Yards", unitYard},
	{"rush_yd", "Rushing Yards", unitYard},
	{"rec_yd", "Receiving Yards", unitYard},
	{"pass_td", "Passing TDs", unitPoint},
	{"rush_td", "Rushing TDs", unitPoint},
	{"rec_td", "Receiving TDs", unitPoint},
	{"int", "Interceptions", unitPoint},
	{"fum_lost", "Fumbles Lost", unitPoint},
}

var leagueTypes = map[int]string{0: "Redraft", 1: "Keeper", 2: "Dynasty"}

// ScoringType maps a league's waiver type to its scoring label.
func ScoringType(l sleeper.League) string {
	if l.WaiverType() == 1 {
		return ScoringStandard
	}
	return ScoringPPR
}

type leagueDetailsTool struct{ d Deps }

func (t *leagueDetailsTool) Name() string { return ToolLeagueDetails }

func (t *leagueDetailsTool) Description() string {
	return "Retrieve detailed information of an individual league using its league ID. " +
		"The league ID is almost always numbers."
}

func (t *leagueDetailsTool) Parameters() map[string]any {
	return toolreg.Object(map[string]any{
		"league_id": toolreg.StringParam("League ID of the specific league"),
	}, "league_id")
}

func (t *leagueDetailsTool) Execute(ctx context.Context, args map[string]any) (*toolreg.Result, error) {
	leagueID := strings.TrimSpace(toolreg.String(args, "league_id"))

	league, raw, err := t.d.Sleeper.League(ctx, leagueID)
	switch {
	case sleeper.IsNotFound(err):
		league, raw = sleeper.League{}, json.RawMessage("null")
	case err != nil:
		return nil, fmt.Errorf("get league %s: %w", leagueID, err)
	}

	if league.LeagueID != "" {
		rosters, _, err := t.d.Sleeper.Rosters(ctx, leagueID)
		if err != nil {
			return nil, fmt.Errorf("get rosters of %s: %w", leagueID, err)
		}
		idx := owners(ctx)
		idx.Record(leagueID, rosters)
		slog.Debug("owner index updated",
			slog.String("league_id", leagueID),
			slog.Int("rosters", len(rosters)),
			slog.Int("cached", idx.Len()))
	}

	return &toolreg.Result{Content: string(raw), View: t.detail(league)}, nil
}

func (t *leagueDetailsTool) Replay(_, content string) (render.View, error) {
	var league *sleeper.League
	if err := json.Unmarshal([]byte(content), &league); err != nil {
		return nil, fmt.Errorf("decode league: %w", err)
	}
	if league == nil {
		return t.detail(sleeper.League{}), nil
	}
	return t.detail(*league), nil
}

func (t *leagueDetailsTool) detail(l sleeper.League) render.LeagueDetail {
	d := render.LeagueDetail{
		LeagueID:    l.LeagueID,
		Name:        l.Name,
		AvatarURL:   avatarURL(t.d.AvatarURL, l.Avatar),
		Status:      l.Status,
		Sport:       l.Sport,
		Season:      l.Season,
		NumTeams:    l.NumTeams(),
		ScoringType: ScoringType(l),
		Positions:   l.RosterPositions,
	}
	if v, ok := l.Setting("type"); ok {
		d.Type = leagueTypes[int(v)]
	}
	for _, k := range scoringKeys {
		v, ok := l.ScoringSettings[k.key]
		d.Scoring = append(d.Scoring, render.ScoringLine{Label: k.label, Value: v, Present: ok, Unit: k.unit})
	}
	return d
}
