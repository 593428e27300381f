// Package wizard models the route builder flow as a finite-state machine:
// describe the data, accept a schema, pick sources, extract, deploy.
package wizard

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kalambet/routesmith/internal/gateway"
)

// State is a builder step.
type State int

const (
	Initial State = iota
	Query
	Schema
	Sources
	Extract
	Deploy
)

var stateNames = [...]string{"initial", "query", "schema", "sources", "extract", "deploy"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Event moves the builder between states.
type Event int

const (
	Start Event = iota
	SubmitQuery
	AcceptSchema
	SelectSources
	Extracted
	Deployed
	Back
	Reset
)

var eventNames = [...]string{"start", "submit-query", "accept-schema", "select-sources", "extracted", "deployed", "back", "reset"}

func (e Event) String() string {
	if e < 0 || int(e) >= len(eventNames) {
		return fmt.Sprintf("Event(%d)", int(e))
	}
	return eventNames[e]
}

// ErrInvalidTransition is returned by Next for an event the state does not accept.
var ErrInvalidTransition = errors.New("invalid transition")

// forward lists the one event that advances each state.
var forward = map[State]struct {
	on   Event
	next State
}{
	Initial: {Start, Query},
	Query:   {SubmitQuery, Schema},
	Schema:  {AcceptSchema, Sources},
	Sources: {SelectSources, Extract},
	Extract: {Extracted, Deploy},
	Deploy:  {Deployed, Initial},
}

// Next is the transition function. Reset returns to Initial from anywhere;
// Back steps one state back from Schema through Deploy.
func Next(s State, e Event) (State, error) {
	switch e {
	case Reset:
		return Initial, nil
	case Back:
		if s > Query && s <= Deploy {
			return s - 1, nil
		}
	default:
		if f, ok := forward[s]; ok && f.on == e {
			return f.next, nil
		}
	}
	return s, fmt.Errorf("%w: %s in state %s", ErrInvalidTransition, e, s)
}

// Draft is the data gathered on the way to a deploy. Each step owns the
// fields it fills; stepping back clears what later steps produced.
type Draft struct {
	Query      string
	Schema     json.RawMessage
	Candidates []gateway.SearchResult
	Sources    []string
	Data       json.RawMessage
	Endpoint   string
}

// Machine pairs the current state with the draft.
type Machine struct {
	state State
	draft Draft
}

// New returns a machine in Initial.
func New() *Machine { return &Machine{} }

// State reports the current state.
func (m *Machine) State() State { return m.state }

// Draft returns a copy of the gathered data.
func (m *Machine) Draft() Draft { return m.draft }

// Fire applies e, runs apply on the draft when the transition is valid and
// returns the new state. apply may be nil. A failing apply leaves both state
// and draft unchanged.
func (m *Machine) Fire(e Event, apply func(*Draft) error) (State, error) {
	next, err := Next(m.state, e)
	if err != nil {
		return m.state, err
	}

	d := m.draft
	switch e {
	case Reset:
		d = Draft{}
	case Back:
		clearFrom(&d, next)
	}
	if apply != nil {
		if err := apply(&d); err != nil {
			return m.state, err
		}
	}
	if e == Deployed {
		d = Draft{}
	}

	m.state, m.draft = next, d
	return m.state, nil
}

// clearFrom drops the fields produced in state s and later.
func clearFrom(d *Draft, s State) {
	switch s {
	case Query:
		d.Schema = nil
		fallthrough
	case Schema:
		d.Candidates, d.Sources = nil, nil
		fallthrough
	case Sources:
		d.Data = nil
		fallthrough
	case Extract:
		d.Endpoint = ""
	}
}
