package render

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/anatolykoptev/huddle/internal/players"
)

// Spinner is the loading placeholder shown while a turn is in flight.
type Spinner struct {
	Label string `json:"label"`
}

func (Spinner) Kind() Kind { return KindSpinner }

func (s Spinner) label() string {
	if s.Label == "" {
		return "Loading..."
	}
	return s.Label
}

func (s Spinner) Markdown() string { return "_" + s.label() + "_" }
func (s Spinner) HTML() string     { return "<i>" + html.EscapeString(s.label()) + "</i>" }

// Text is free-form assistant output. Content is already Markdown.
type Text struct {
	Content string `json:"content"`
}

func (Text) Kind() Kind         { return KindText }
func (t Text) Markdown() string { return t.Content }
func (t Text) HTML() string     { return html.EscapeString(t.Content) }

// UserMessage echoes what the user typed when a transcript is replayed.
type UserMessage struct {
	Content string `json:"content"`
}

func (UserMessage) Kind() Kind         { return KindUserMessage }
func (u UserMessage) Markdown() string { return "**You:** " + u.Content }
func (u UserMessage) HTML() string     { return "<b>You:</b> " + html.EscapeString(u.Content) }

// System is a narrative note such as a purchase confirmation.
type System struct {
	Content string `json:"content"`
}

func (System) Kind() Kind         { return KindSystem }
func (s System) Markdown() string { return "_" + s.Content + "_" }
func (s System) HTML() string     { return "<i>" + html.EscapeString(s.Content) + "</i>" }

// Error is a user-visible failure: a roster miss, bad arguments, an outage.
type Error struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

func (Error) Kind() Kind { return KindError }

func (e Error) doc() *doc {
	title := e.Title
	if title == "" {
		title = "Error"
	}
	d := &doc{}
	d.heading(3, title)
	d.para(e.Message)
	return d
}

func (e Error) Markdown() string { return e.doc().markdown() }
func (e Error) HTML() string     { return e.doc().html() }

// LeagueLine is a league as listed on a user card.
type LeagueLine struct {
	ID     string `json:"league_id"`
	Name   string `json:"name"`
	Season string `json:"season"`
}

// UserCard shows a Sleeper account and its leagues. The body is drawn only
// when UserID is set; upstream answers unknown names with null.
type UserCard struct {
	Requested      string       `json:"requested"`
	UserID         string       `json:"user_id,omitempty"`
	Username       string       `json:"username,omitempty"`
	DisplayName    string       `json:"display_name,omitempty"`
	AvatarURL      string       `json:"avatar_url,omitempty"`
	Email          string       `json:"email,omitempty"`
	IsBot          bool         `json:"is_bot"`
	SummonerName   string       `json:"summoner_name,omitempty"`
	SummonerRegion string       `json:"summoner_region,omitempty"`
	Leagues        []LeagueLine `json:"leagues"`
}

func (UserCard) Kind() Kind { return KindUserCard }

func (c UserCard) handle() string {
	if c.Username != "" {
		return c.Username
	}
	return c.Requested
}

func (c UserCard) doc() *doc {
	d := &doc{}
	if c.UserID == "" {
		d.para(fmt.Sprintf("No Sleeper user named @%s.", c.Requested))
		return d
	}
	d.image("User Avatar", c.AvatarURL)
	d.heading(3, c.DisplayName)
	d.para("@" + c.handle())
	if c.Email != "" {
		d.field("Email", c.Email)
	}
	d.field("User ID", c.UserID)
	d.field("Is Bot", yesNo(c.IsBot))
	if c.SummonerName != "" {
		d.field("Summoner Name", c.SummonerName)
		d.field("Summoner Region", c.SummonerRegion)
	}
	if len(c.Leagues) > 0 {
		d.heading(4, "Leagues:")
		for _, l := range c.Leagues {
			d.bullet(l.Name + " - " + l.Season)
		}
	}
	return d
}

func (c UserCard) Markdown() string { return c.doc().markdown() }
func (c UserCard) HTML() string     { return c.doc().html() }

// LeagueSummary is one row of a league list.
type LeagueSummary struct {
	ID     string `json:"league_id"`
	Name   string `json:"name"`
	Sport  string `json:"sport"`
	Season string `json:"season"`
	Status string `json:"status"`
}

// LeagueList shows every league a user has for one sport and season.
type LeagueList struct {
	Sport   string          `json:"sport"`
	Season  string          `json:"season"`
	Leagues []LeagueSummary `json:"leagues"`
}

func (LeagueList) Kind() Kind { return KindLeagueList }

func (l LeagueList) doc() *doc {
	d := &doc{}
	if len(l.Leagues) == 0 {
		d.para(fmt.Sprintf("No %s leagues found for %s.", strings.ToUpper(l.Sport), l.Season))
		return d
	}
	d.heading(3, "Your Leagues")
	for _, s := range l.Leagues {
		d.item(
			field{"Name", s.Name},
			field{"Sport", s.Sport},
			field{"Season", s.Season},
			field{"Status", s.Status},
		)
	}
	return d
}

func (l LeagueList) Markdown() string { return l.doc().markdown() }
func (l LeagueList) HTML() string     { return l.doc().html() }

// ScoringLine is one scoring rule. Value is printed with three decimals.
type ScoringLine struct {
	Label   string  `json:"label"`
	Value   float64 `json:"value"`
	Present bool    `json:"present"`
	Unit    string  `json:"unit"`
}

func (s ScoringLine) text() string {
	if !s.Present {
		return "n/a"
	}
	return strconv.FormatFloat(s.Value, 'f', 3, 64) + " " + s.Unit
}

// LeagueDetail is the league card.
type LeagueDetail struct {
	LeagueID    string        `json:"league_id"`
	Name        string        `json:"name"`
	AvatarURL   string        `json:"avatar_url,omitempty"`
	Type        string        `json:"type,omitempty"`
	Status      string        `json:"status"`
	Sport       string        `json:"sport"`
	Season      string        `json:"season"`
	NumTeams    int           `json:"num_teams"`
	ScoringType string        `json:"scoring_type"`
	Positions   []string      `json:"positions"`
	Scoring     []ScoringLine `json:"scoring"`
}

func (LeagueDetail) Kind() Kind { return KindLeagueDetail }

func (l LeagueDetail) doc() *doc {
	d := &doc{}
	if l.LeagueID == "" {
		d.para("League not found.")
		return d
	}
	d.image("League Avatar", l.AvatarURL)
	d.heading(3, "League Details")
	d.field("Name", l.Name)
	if l.Type != "" {
		d.field("Type", l.Type)
	}
	d.field("Status", l.Status)
	d.field("Sport", l.Sport)
	d.field("Season", l.Season)
	d.field("Number of Teams", strconv.Itoa(l.NumTeams))
	d.field("Scoring Type", l.ScoringType)
	d.field("Positions", strings.Join(l.Positions, ", "))
	if len(l.Scoring) > 0 {
		d.heading(4, "Scoring Settings")
		for _, s := range l.Scoring {
			d.field(s.Label, s.text())
		}
	}
	return d
}

func (l LeagueDetail) Markdown() string { return l.doc().markdown() }
func (l LeagueDetail) HTML() string     { return l.doc().html() }

// Roster lists one team's players.
type Roster struct {
	LeagueID string             `json:"league_id"`
	RosterID int                `json:"roster_id"`
	OwnerID  string             `json:"owner_id"`
	Players  []players.Resolved `json:"players"`
}

func (Roster) Kind() Kind { return KindRoster }

func (r Roster) doc() *doc {
	d := &doc{}
	d.heading(3, "Roster")
	if len(r.Players) == 0 {
		d.para("This roster has no players.")
		return d
	}
	for _, p := range r.Players {
		d.item(
			field{"Player ID", p.ID},
			field{"Name", p.Name},
			field{"Position", p.Position},
			field{"Team", p.Team},
		)
	}
	return d
}

func (r Roster) Markdown() string { return r.doc().markdown() }
func (r Roster) HTML() string     { return r.doc().html() }

// PurchaseStatus is the step a simulated purchase is at.
type PurchaseStatus string

const (
	PurchasePending   PurchaseStatus = "pending"
	PurchaseWorking   PurchaseStatus = "working"
	PurchaseCompleted PurchaseStatus = "completed"
)

// Purchase is the progress indicator of the demo purchase flow.
type Purchase struct {
	Symbol string         `json:"symbol"`
	Price  float64        `json:"price"`
	Amount int            `json:"amount"`
	Status PurchaseStatus `json:"status"`
}

func (Purchase) Kind() Kind { return KindPurchase }

// Total is amount × price.
func (p Purchase) Total() float64 { return float64(p.Amount) * p.Price }

func (p Purchase) text() string {
	switch p.Status {
	case PurchaseWorking:
		return fmt.Sprintf("Purchasing %d $%s... working on it...", p.Amount, p.Symbol)
	case PurchaseCompleted:
		return fmt.Sprintf("You have successfully purchased %d $%s. Total cost: %s",
			p.Amount, p.Symbol, FormatUSD(p.Total()))
	default:
		return fmt.Sprintf("Purchasing %d $%s...", p.Amount, p.Symbol)
	}
}

func (p Purchase) Markdown() string { return p.text() }
func (p Purchase) HTML() string     { return html.EscapeString(p.text()) }

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
