package lat

import "testing"

func TestAliasGraphResolveFixedPoint(t *testing.T) {
	g := NewAliasGraph()
	g.RegisterAlias("/proj/a.go", "/proj/b.go")
	g.RegisterAlias("/proj/b.go", "/proj/c.go")

	if got := g.Resolve("/proj/a.go"); got != "/proj/c.go" {
		t.Errorf("Resolve(a) = %q, want /proj/c.go", got)
	}
	if got := g.Resolve("/proj/z.go"); got != "/proj/z.go" {
		t.Errorf("Resolve(unregistered) = %q, want itself", got)
	}
}

func TestAliasGraphPreviousPaths(t *testing.T) {
	g := NewAliasGraph()
	g.RegisterAlias("/proj/a.go", "/proj/b.go")
	g.RegisterAlias("/proj/b.go", "/proj/c.go")

	prev := g.PreviousPaths("/proj/c.go")
	want := map[string]bool{"/proj/a.go": true, "/proj/b.go": true}
	if len(prev) != len(want) {
		t.Fatalf("PreviousPaths(c) = %v, want 2 entries", prev)
	}
	for _, p := range prev {
		if !want[p] {
			t.Errorf("PreviousPaths(c) contained unexpected %q", p)
		}
	}
}

func TestAliasGraphRejectsCycle(t *testing.T) {
	g := NewAliasGraph()
	g.RegisterAlias("/proj/a.go", "/proj/b.go")

	if ok := g.RegisterAlias("/proj/b.go", "/proj/a.go"); ok {
		t.Errorf("RegisterAlias(b, a) = true, want false (would create a cycle)")
	}
	if got := g.Resolve("/proj/a.go"); got != "/proj/b.go" {
		t.Errorf("Resolve(a) after rejected cycle = %q, want /proj/b.go (unchanged)", got)
	}
}

func TestAliasGraphIsAliasOf(t *testing.T) {
	g := NewAliasGraph()
	g.RegisterAlias("/proj/a.go", "/proj/b.go")

	if !g.IsAliasOf("/proj/a.go", "/proj/b.go") {
		t.Errorf("IsAliasOf(a, b) = false, want true")
	}
	if g.IsAliasOf("/proj/b.go", "/proj/a.go") {
		t.Errorf("IsAliasOf(b, a) = true, want false")
	}
}

func TestAliasGraphRejectsSelfAlias(t *testing.T) {
	g := NewAliasGraph()
	if ok := g.RegisterAlias("/proj/a.go", "/proj/a.go"); ok {
		t.Errorf("RegisterAlias(a, a) = true, want false")
	}
}

func TestAliasGraphReset(t *testing.T) {
	g := NewAliasGraph()
	g.RegisterAlias("/proj/a.go", "/proj/b.go")
	g.Reset()

	if got := g.Resolve("/proj/a.go"); got != "/proj/a.go" {
		t.Errorf("Resolve(a) after Reset = %q, want /proj/a.go (unchanged)", got)
	}
}
