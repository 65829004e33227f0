/*-------------------------------------------------------------------------
 *
 * pgEdge Natural Language Agent
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package pipeline

import (
	"encoding/json"

	"pgedge-dataset-agent/internal/store"
)

// State is a step of the question pipeline
type State int

const (
	Idle State = iota
	GeneratingQuery
	Sanitizing
	Executing
	GeneratingInsight
	Rendering
	Done
	Failed
)

var stateNames = [...]string{
	Idle:              "idle",
	GeneratingQuery:   "generating_query",
	Sanitizing:        "sanitizing",
	Executing:         "executing",
	GeneratingInsight: "generating_insight",
	Rendering:         "rendering",
	Done:              "done",
	Failed:            "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// MarshalJSON writes the state name
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Messages shown to the user. Technical detail only goes to the log.
const (
	MessageUploadFirst    = "Please upload a dataset first."
	MessageUnableToAnswer = "I was unable to answer that question."
	MessageNoData         = "No data matched that question."
	MessageChartFailed    = "I found an answer but could not draw a chart for it."
)

// Artifact is the answer to one question
type Artifact struct {
	Question string      `json:"question"`
	State    State       `json:"state"`
	Text     string      `json:"text,omitempty"`
	Image    string      `json:"image,omitempty"` // base64 PNG
	Notice   string      `json:"notice,omitempty"`
	SQL      string      `json:"sql,omitempty"`
	Rewrites []string    `json:"rewrites,omitempty"`
	Columns  []string    `json:"columns,omitempty"`
	Rows     []store.Row `json:"rows,omitempty"`
}

// HasImage reports whether a chart was produced
func (a Artifact) HasImage() bool {
	return a.Image != ""
}
