package domain

import (
	"testing"
	"time"
)

func ts(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func TestEdgeStateAt(t *testing.T) {
	now := *ts("2025-06-15T12:00:00Z")

	tests := []struct {
		name   string
		active bool
		from   *time.Time
		until  *time.Time
		want   EdgeState
	}{
		{"no bounds active", true, nil, nil, EdgeEffective},
		{"inside bounds", true, ts("2025-06-01T00:00:00Z"), ts("2025-07-01T00:00:00Z"), EdgeEffective},
		{"before from", true, ts("2025-07-01T00:00:00Z"), nil, EdgePending},
		{"after until", true, nil, ts("2025-06-01T00:00:00Z"), EdgeExpired},
		{"at until boundary", true, nil, ts("2025-06-15T12:00:00Z"), EdgeExpired},
		{"at from boundary", true, ts("2025-06-15T12:00:00Z"), nil, EdgeEffective},
		{"inactive wins over effective", false, nil, nil, EdgeInactive},
		{"inactive wins over pending", false, ts("2025-07-01T00:00:00Z"), nil, EdgeInactive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rel := BeliefRelationship{Active: tt.active, EffectiveFrom: tt.from, EffectiveUntil: tt.until}
			if got := rel.StateAt(now); got != tt.want {
				t.Errorf("StateAt = %v, want %v", got, tt.want)
			}
			wantEffective := tt.want == EdgeEffective
			if got := rel.EffectiveAt(now); got != wantEffective {
				t.Errorf("EffectiveAt = %v, want %v", got, wantEffective)
			}
		})
	}
}

func TestRelationshipValidate(t *testing.T) {
	valid := func() BeliefRelationship {
		return BeliefRelationship{
			ID:             "r1",
			AgentID:        "agent-1",
			SourceBeliefID: "b1",
			TargetBeliefID: "b2",
			Type:           RelationSupports,
			Strength:       0.8,
			Active:         true,
		}
	}

	if err := (&BeliefRelationship{}).Validate(); err == nil {
		t.Fatal("zero edge should not validate")
	}

	tests := []struct {
		name   string
		mutate func(*BeliefRelationship)
	}{
		{"self loop", func(r *BeliefRelationship) { r.TargetBeliefID = r.SourceBeliefID }},
		{"empty agent", func(r *BeliefRelationship) { r.AgentID = " " }},
		{"unknown type", func(r *BeliefRelationship) { r.Type = "FRIENDS_WITH" }},
		{"strength above 1", func(r *BeliefRelationship) { r.Strength = 1.5 }},
		{"strength below 0", func(r *BeliefRelationship) { r.Strength = -0.1 }},
		{"inverted bounds", func(r *BeliefRelationship) {
			r.EffectiveFrom = ts("2025-07-01T00:00:00Z")
			r.EffectiveUntil = ts("2025-06-01T00:00:00Z")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rel := valid()
			tt.mutate(&rel)
			err := rel.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if kind, ok := KindOf(err); !ok || kind != KindInvalidEdge {
				t.Errorf("error kind = %v, want %v", kind, KindInvalidEdge)
			}
		})
	}

	rel := valid()
	if err := rel.Validate(); err != nil {
		t.Errorf("valid edge rejected: %v", err)
	}
}

func TestDeprecatingRelations(t *testing.T) {
	for _, rt := range []RelationType{RelationSupersedes, RelationUpdates, RelationDeprecates, RelationReplaces} {
		if !rt.Deprecating() {
			t.Errorf("%s should be deprecating", rt)
		}
	}
	for _, rt := range []RelationType{RelationSupports, RelationContradicts, RelationRelatesTo, RelationCustom} {
		if rt.Deprecating() {
			t.Errorf("%s should not be deprecating", rt)
		}
	}
}

func TestAllRelationTypes(t *testing.T) {
	all := AllRelationTypes()
	if len(all) != 29 {
		t.Fatalf("closed enum has %d types, want 29", len(all))
	}
	for _, rt := range all {
		if !ValidRelationType(string(rt)) {
			t.Errorf("enum member %q fails its own validation", rt)
		}
	}
	if ValidRelationType("supersedes") {
		t.Error("relation types are case-sensitive")
	}
}
