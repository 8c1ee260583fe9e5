package chat

import (
	"errors"
	"testing"
)

func TestEndpointIsTotal(t *testing.T) {
	t.Parallel()

	want := map[AgentKind]string{
		AgentAgency:   "/agent/chat",
		AgentProperty: "/agent/propiedades/chat",
		AgentContact:  "/agent/personas/chat",
	}
	for _, k := range AgentKinds() {
		if got := k.Endpoint(); got != want[k] {
			t.Errorf("%s.Endpoint() = %q, want %q", k, got, want[k])
		}
	}
	if len(AgentKinds()) != len(want) {
		t.Fatalf("AgentKinds() has %d kinds, want %d", len(AgentKinds()), len(want))
	}
}

func TestEndpointPanicsOnUndeclaredKind(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for undeclared kind")
		}
	}()
	_ = AgentKind("broker").Endpoint()
}

func TestParseAgentKind(t *testing.T) {
	t.Parallel()

	got, err := ParseAgentKind("  Propiedad ")
	if err != nil || got != AgentProperty {
		t.Fatalf("ParseAgentKind = %q, %v", got, err)
	}
	if _, err := ParseAgentKind("contrato"); !errors.Is(err, ErrUnknownAgent) {
		t.Fatalf("err = %v, want ErrUnknownAgent", err)
	}
}

func TestNextCyclesThroughKinds(t *testing.T) {
	t.Parallel()

	k := AgentAgency
	seen := map[AgentKind]bool{}
	for i := 0; i < 3; i++ {
		seen[k] = true
		k = k.Next()
	}
	if k != AgentAgency || len(seen) != 3 {
		t.Fatalf("Next did not cycle through all kinds: end=%q seen=%v", k, seen)
	}
}
