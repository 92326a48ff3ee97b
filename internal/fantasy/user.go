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

type userInfoTool struct{ d Deps }

// userInfoContent is committed as the function message.
type userInfoContent struct {
	UserInfo    json.RawMessage `json:"userInfo"`
	UserLeagues json.RawMessage `json:"userLeagues"`
}

func (t *userInfoTool) Name() string { return ToolUserInfo }

func (t *userInfoTool) Description() string {
	return "Retrieve the user information and their leagues. The username is a string, mostly letters and numbers."
}

func (t *userInfoTool) Parameters() map[string]any {
	return toolreg.Object(map[string]any{
		"username": toolreg.StringParam("Username of the user"),
	}, "username")
}

func (t *userInfoTool) Execute(ctx context.Context, args map[string]any) (*toolreg.Result, error) {
	username := strings.TrimSpace(toolreg.String(args, "username"))

	user, rawUser, err := t.d.Sleeper.User(ctx, username)
	switch {
	case sleeper.IsNotFound(err):
		user, rawUser = sleeper.User{}, json.RawMessage("null")
	case err != nil:
		return nil, fmt.Errorf("get user %q: %w", username, err)
	}

	leagues := []sleeper.League{}
	rawLeagues := json.RawMessage("[]")
	if user.Exists() {
		leagues, rawLeagues, err = t.d.Sleeper.UserLeagues(ctx, user.UserID, t.d.Sport, t.d.Season)
		if err != nil {
			return nil, fmt.Errorf("get leagues of %s: %w", user.UserID, err)
		}
	} else {
		slog.Info("sleeper user not found", slog.String("username", username))
	}

	content, err := marshal(userInfoContent{UserInfo: rawUser, UserLeagues: rawLeagues})
	if err != nil {
		return nil, fmt.Errorf("encode user info: %w", err)
	}
	return &toolreg.Result{Content: content, View: t.card(username, user, leagues)}, nil
}

func (t *userInfoTool) Replay(arguments, content string) (render.View, error) {
	var wire struct {
		UserInfo    *sleeper.User    `json:"userInfo"`
		UserLeagues []sleeper.League `json:"userLeagues"`
	}
	if err := json.Unmarshal([]byte(content), &wire); err != nil {
		return nil, fmt.Errorf("decode user info: %w", err)
	}
	var user sleeper.User
	if wire.UserInfo != nil {
		user = *wire.UserInfo
	}
	requested := toolreg.String(decodeArgs(arguments), "username")
	return t.card(requested, user, wire.UserLeagues), nil
}

func (t *userInfoTool) card(requested string, u sleeper.User, leagues []sleeper.League) render.UserCard {
	card := render.UserCard{
		Requested:      requested,
		UserID:         u.UserID,
		Username:       u.Username,
		DisplayName:    u.DisplayName,
		AvatarURL:      avatarURL(t.d.AvatarURL, u.Avatar),
		Email:          u.Email,
		IsBot:          u.IsBot,
		SummonerName:   u.SummonerName,
		SummonerRegion: u.SummonerRegion,
		Leagues:        make([]render.LeagueLine, 0, len(leagues)),
	}
	for _, l := range leagues {
		card.Leagues = append(card.Leagues, render.LeagueLine{ID: l.LeagueID, Name: l.Name, Season: l.Season})
	}
	return card
}
