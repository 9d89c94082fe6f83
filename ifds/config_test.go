package ifds

import (
	"errors"
	"testing"
)

func TestConfigValidate_MissingCollaborators(t *testing.T) {
	flow := &testFlow{graph: &testGraph{}, cfg: taintCfg{}}
	g := &testGraph{}
	resolver := methodByName()

	cases := []struct {
		name string
		cfg  *Config[string, string, string]
	}{
		{"no graph", &Config[string, string, string]{Flow: flow, Sink: flow, Resolver: resolver}},
		{"no flow", &Config[string, string, string]{Graph: g, Sink: flow, Resolver: resolver}},
		{"no sink", &Config[string, string, string]{Graph: g, Flow: flow, Resolver: resolver}},
		{"no resolver", &Config[string, string, string]{Graph: g, Flow: flow, Sink: flow}},
		{"negative MaxTraces", &Config[string, string, string]{Graph: g, Flow: flow, Sink: flow, Resolver: resolver, MaxTraces: -1}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.cfg.Validate()
			if err == nil {
				t.Fatal("expected an error")
			}
			if !errors.Is(err, ErrConfiguration) {
				t.Errorf("expected ErrConfiguration, got %v", err)
			}
		})
	}
}

func TestConfigValidate_DefaultsMaxTracesAndProgress(t *testing.T) {
	flow := &testFlow{graph: &testGraph{}, cfg: taintCfg{}}
	g := &testGraph{}
	cfg := &Config[string, string, string]{
		Graph: g, Flow: flow, Sink: flow, Resolver: methodByName(),
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.MaxTraces != 3 {
		t.Errorf("expected default MaxTraces 3, got %d", cfg.MaxTraces)
	}
	if cfg.Progress == nil {
		t.Error("expected a default Progress logger")
	}
	if cfg.Options == nil {
		t.Error("expected default Options map")
	}
}

func TestConfigValidate_ZeroMaxTracesLeftAsDefault(t *testing.T) {
	flow := &testFlow{graph: &testGraph{}, cfg: taintCfg{}}
	g := &testGraph{}
	cfg := &Config[string, string, string]{
		Graph: g, Flow: flow, Sink: flow, Resolver: methodByName(), MaxTraces: 0,
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.MaxTraces != 3 {
		t.Errorf("MaxTraces=0 should default to 3, got %d", cfg.MaxTraces)
	}
}

func TestResolverByName(t *testing.T) {
	methodID := func(m string) string { return m }
	classID := func(m string) string { return "class:" + m }
	pkgID := func(m string) string { return "pkg:" + m }

	r, err := ResolverByName[string]("method", methodID, classID, pkgID)
	if err != nil {
		t.Fatalf("ResolverByName(method): %v", err)
	}
	if got := r("foo"); got.Kind != MethodUnit || got.Key != "foo" {
		t.Errorf("unexpected method unit: %+v", got)
	}

	r, err = ResolverByName[string]("singleton", nil, nil, nil)
	if err != nil {
		t.Fatalf("ResolverByName(singleton): %v", err)
	}
	if got1, got2 := r("a"), r("b"); got1 != got2 {
		t.Errorf("singleton resolver should map every method to one unit, got %+v and %+v", got1, got2)
	}

	if _, err := ResolverByName[string]("bogus", methodID, classID, pkgID); !errors.Is(err, ErrConfiguration) {
		t.Errorf("expected ErrConfiguration for unknown resolver name, got %v", err)
	}
	if _, err := ResolverByName[string]("class", methodID, nil, pkgID); !errors.Is(err, ErrConfiguration) {
		t.Errorf("expected ErrConfiguration when class id func is nil, got %v", err)
	}
	if _, err := ResolverByName[string]("package", methodID, classID, nil); !errors.Is(err, ErrConfiguration) {
		t.Errorf("expected ErrConfiguration when package id func is nil, got %v", err)
	}
}
