package a2a

import (
	"github.com/a2aproject/a2a-go/a2a"

	"github.com/anatolykoptev/huddle/internal/fantasy"
	"github.com/anatolykoptev/huddle/internal/toolreg"
)

// BuildAgentCard describes huddle. Skills list only registered tools.
func BuildAgentCard(baseURL, version string, registry *toolreg.Registry) *a2a.AgentCard {
	card := &a2a.AgentCard{
		Name:               "Huddle",
		Description:        "Fantasy football assistant for Sleeper leagues. Looks up users, leagues and rosters, and runs a simulated stock purchase.",
		URL:                baseURL + "/a2a",
		Version:            version,
		ProtocolVersion:    "1.0",
		PreferredTransport: a2a.TransportProtocolJSONRPC,
		DefaultInputModes:  []string{"text/plain"},
		DefaultOutputModes: []string{"text/markdown"},
		Skills:             buildSkills(registry),
	}
	card.SecuritySchemes = a2a.NamedSecuritySchemes{
		"bearer": a2a.HTTPAuthSecurityScheme{
			Scheme:      "bearer",
			Description: "Bearer token authentication",
		},
	}
	card.Security = []a2a.SecurityRequirements{
		{a2a.SecuritySchemeName("bearer"): a2a.SecuritySchemeScopes{}},
	}
	return card
}

var skillTools = []struct {
	tool, id, name, description string
}{
	{fantasy.ToolUserInfo, "user", "User lookup", "Find a Sleeper user and list their leagues"},
	{fantasy.ToolUserLeagues, "leagues", "League list", "List a user's leagues for a sport and season"},
	{fantasy.ToolLeagueDetails, "league", "League details", "Show settings and scoring of one league"},
	{fantasy.ToolRoster, "roster", "Roster", "Show a roster with player names, positions and teams"},
}

func buildSkills(registry *toolreg.Registry) []a2a.AgentSkill {
	var skills []a2a.AgentSkill
	for _, s := range skillTools {
		if _, ok := registry.Get(s.tool); !ok {
			continue
		}
		skills = append(skills, a2a.AgentSkill{
			ID:          s.id,
			Name:        s.name,
			Description: s.description,
			Tags:        []string{"fantasy", "sleeper", s.id},
		})
	}
	return skills
}
