package wizard

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestNext_HappyPath(t *testing.T) {
	steps := []struct {
		event Event
		want  State
	}{
		{Start, Query},
		{SubmitQuery, Schema},
		{AcceptSchema, Sources},
		{SelectSources, Extract},
		{Extracted, Deploy},
		{Deployed, Initial},
	}

	s := Initial
	for _, step := range steps {
		next, err := Next(s, step.event)
		if err != nil {
			t.Fatalf("Next(%s, %s): %v", s, step.event, err)
		}
		if next != step.want {
			t.Fatalf("Next(%s, %s) = %s, want %s", s, step.event, next, step.want)
		}
		s = next
	}
}

func TestNext_Invalid(t *testing.T) {
	tests := []struct {
		state State
		event Event
	}{
		{Initial, SubmitQuery},
		{Initial, Back},
		{Query, Back},
		{Query, AcceptSchema},
		{Schema, Extracted},
		{Sources, Deployed},
		{Deploy, Start},
	}
	for _, tt := range tests {
		got, err := Next(tt.state, tt.event)
		if !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("Next(%s, %s) err = %v, want ErrInvalidTransition", tt.state, tt.event, err)
		}
		if got != tt.state {
			t.Errorf("Next(%s, %s) = %s, want state unchanged", tt.state, tt.event, got)
		}
	}
}

func TestNext_BackAndReset(t *testing.T) {
	for s := Schema; s <= Deploy; s++ {
		got, err := Next(s, Back)
		if err != nil || got != s-1 {
			t.Errorf("Next(%s, back) = %s, %v; want %s", s, got, err, s-1)
		}
	}
	for s := Initial; s <= Deploy; s++ {
		if got, err := Next(s, Reset); err != nil || got != Initial {
			t.Errorf("Next(%s, reset) = %s, %v; want initial", s, got, err)
		}
	}
}

func TestStrings(t *testing.T) {
	if Sources.String() != "sources" || AcceptSchema.String() != "accept-schema" {
		t.Errorf("names = %s, %s", Sources, AcceptSchema)
	}
	if State(42).String() != "State(42)" {
		t.Errorf("out of range = %s", State(42))
	}
}

func TestMachine_FireFillsDraft(t *testing.T) {
	m := New()
	mustFire(t, m, Start, nil)
	mustFire(t, m, SubmitQuery, func(d *Draft) error {
		d.Query = "nvidia market cap"
		d.Schema = json.RawMessage(`{"type":"object"}`)
		return nil
	})
	mustFire(t, m, AcceptSchema, func(d *Draft) error {
		d.Sources = []string{"https://a.com"}
		return nil
	})

	if m.State() != Sources {
		t.Fatalf("state = %s, want sources", m.State())
	}
	d := m.Draft()
	if d.Query != "nvidia market cap" || len(d.Sources) != 1 {
		t.Errorf("draft = %+v", d)
	}
}

func TestMachine_FailingApplyKeepsState(t *testing.T) {
	m := New()
	mustFire(t, m, Start, nil)

	boom := errors.New("schema generation failed")
	_, err := m.Fire(SubmitQuery, func(d *Draft) error {
		d.Query = "half-written"
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want apply error", err)
	}
	if m.State() != Query {
		t.Errorf("state = %s, want query", m.State())
	}
	if m.Draft().Query != "" {
		t.Errorf("draft changed by failed apply: %+v", m.Draft())
	}
}

func TestMachine_BackClearsLaterSteps(t *testing.T) {
	m := New()
	mustFire(t, m, Start, nil)
	mustFire(t, m, SubmitQuery, func(d *Draft) error {
		d.Query, d.Schema = "q", json.RawMessage(`{}`)
		return nil
	})
	mustFire(t, m, AcceptSchema, func(d *Draft) error {
		d.Sources = []string{"https://a.com"}
		return nil
	})

	mustFire(t, m, Back, nil) // sources -> schema
	if d := m.Draft(); d.Sources != nil || d.Schema == nil {
		t.Errorf("after back to schema: %+v", d)
	}
	mustFire(t, m, Back, nil) // schema -> query
	if d := m.Draft(); d.Schema != nil || d.Query != "q" {
		t.Errorf("after back to query: %+v", d)
	}
}

func TestMachine_DeployedAndResetClearDraft(t *testing.T) {
	m := New()
	mustFire(t, m, Start, func(d *Draft) error { d.Query = "q"; return nil })
	mustFire(t, m, Reset, nil)
	if m.State() != Initial || m.Draft().Query != "" {
		t.Errorf("after reset: %s %+v", m.State(), m.Draft())
	}

	for _, e := range []Event{Start, SubmitQuery, AcceptSchema, SelectSources, Extracted} {
		mustFire(t, m, e, func(d *Draft) error { d.Endpoint = "nvidia-cap"; return nil })
	}
	mustFire(t, m, Deployed, nil)
	if m.State() != Initial || m.Draft().Endpoint != "" {
		t.Errorf("after deploy: %s %+v", m.State(), m.Draft())
	}
}

func mustFire(t *testing.T, m *Machine, e Event, apply func(*Draft) error) {
	t.Helper()
	if _, err := m.Fire(e, apply); err != nil {
		t.Fatalf("Fire(%s) in %s: %v", e, m.State(), err)
	}
}
