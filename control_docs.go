package main

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
)

// ControlDoc describes one driving control or shortcut.
type ControlDoc struct {
	ID          string   `json:"id"`
	Label       string   `json:"label"`
	Description string   `json:"description"`
	Shortcut    string   `json:"shortcut,omitempty"`
	KeyCodes    []string `json:"key_codes,omitempty"`
}

// defaultControlDocs lists the controls shared by the browser client and the
// terminal HUD. KeyCodes use the browser KeyboardEvent.code names that
// input.ControlForKey understands.
var defaultControlDocs = []ControlDoc{
	{
		ID:          "forward",
		Label:       "Accelerate",
		Description: "Push the car forward up to its top speed. Latched on while autopilot is enabled.",
		Shortcut:    "W / Arrow Up",
		KeyCodes:    []string{"KeyW", "ArrowUp"},
	},
	{
		ID:          "backward",
		Label:       "Brake / Reverse",
		Description: "Slow down and then reverse at a reduced top speed.",
		Shortcut:    "S / Arrow Down",
		KeyCodes:    []string{"KeyS", "ArrowDown"},
	},
	{
		ID:          "left",
		Label:       "Steer Left",
		Description: "Turn left while the car is moving; steering reverses when driving backwards.",
		Shortcut:    "A / Arrow Left",
		KeyCodes:    []string{"KeyA", "ArrowLeft"},
	},
	{
		ID:          "right",
		Label:       "Steer Right",
		Description: "Turn right while the car is moving.",
		Shortcut:    "D / Arrow Right",
		KeyCodes:    []string{"KeyD", "ArrowRight"},
	},
	{
		ID:          "start",
		Label:       "Start Run",
		Description: "Start a new run from the menu or after a crash.",
		Shortcut:    "Enter",
	},
	{
		ID:          "mode",
		Label:       "Day / Night",
		Description: "Toggle the lighting preset; night switches headlights on.",
		Shortcut:    "M",
	},
}

// registerControlDocEndpoints serves the control documentation as JSON.
func registerControlDocEndpoints(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/controls", func(w http.ResponseWriter, r *http.Request) {
		//1.- Sort a copy so concurrent requests never share the global slice.
		docs := append([]ControlDoc(nil), defaultControlDocs...)
		sort.SliceStable(docs, func(i, j int) bool {
			if docs[i].Label == docs[j].Label {
				return strings.Compare(docs[i].ID, docs[j].ID) < 0
			}
			return strings.Compare(docs[i].Label, docs[j].Label) < 0
		})

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(docs); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}
