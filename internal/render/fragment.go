// Package render turns fetched Sleeper data into UI fragments.
//
// A Fragment is one renderable unit with a stable id. Its View knows how to
// print itself as Markdown (HTTP, CLI, MCP, A2A) and as the HTML subset
// Telegram accepts.
package render

import "encoding/json"

// Kind names the view type carried by a fragment.
type Kind string

const (
	KindSpinner      Kind = "spinner"
	KindText         Kind = "text"
	KindUserMessage  Kind = "user_message"
	KindSystem       Kind = "system"
	KindError        Kind = "error"
	KindUserCard     Kind = "user_card"
	KindLeagueList   Kind = "league_list"
	KindLeagueDetail Kind = "league_detail"
	KindRoster       Kind = "roster"
	KindPurchase     Kind = "purchase"
)

// View is the content of a fragment.
type View interface {
	Kind() Kind
	Markdown() string
	HTML() string
}

// Fragment pairs a view with the id clients use to replace it in place.
type Fragment struct {
	ID   string
	View View
}

// New returns a fragment with the given id.
func New(id string, v View) Fragment {
	return Fragment{ID: id, View: v}
}

func (f Fragment) Kind() Kind {
	if f.View == nil {
		return ""
	}
	return f.View.Kind()
}

func (f Fragment) Markdown() string {
	if f.View == nil {
		return ""
	}
	return f.View.Markdown()
}

func (f Fragment) HTML() string {
	if f.View == nil {
		return ""
	}
	return f.View.HTML()
}

// MarshalJSON emits {"id","kind","markdown","data"} so web clients can either
// draw from data or show the markdown as-is.
func (f Fragment) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID       string `json:"id"`
		Kind     Kind   `json:"kind"`
		Markdown string `json:"markdown"`
		Data     View   `json:"data,omitempty"`
	}{
		ID:       f.ID,
		Kind:     f.Kind(),
		Markdown: f.Markdown(),
		Data:     f.View,
	})
}
