package lat

import "sync"

// AliasGraph is a directed graph of "path X was renamed/moved to path Y"
// edges (spec §3 "Path Alias Graph"). Resolution walks forward to a fixed
// point; reverse lookup walks backward to find every path that eventually
// resolves to a given path. Cycles are rejected at registration.
type AliasGraph struct {
	mu      sync.RWMutex
	forward map[string]string   // old -> new (at most one outgoing edge per path)
	reverse map[string][]string // new -> []old
}

// NewAliasGraph creates an empty alias graph.
func NewAliasGraph() *AliasGraph {
	return &AliasGraph{
		forward: make(map[string]string),
		reverse: make(map[string][]string),
	}
}

// RegisterAlias records that old was renamed/moved to new. Rejects with
// false if doing so would introduce a cycle (new already resolves forward
// to old).
func (g *AliasGraph) RegisterAlias(old, new string) bool {
	if old == new {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.resolveLocked(new) == old {
		return false
	}
	// Walking further: also reject if new eventually reaches old through a
	// longer chain (resolveLocked already walks to fixed point, so the
	// check above covers the general case).
	if cur := new; true {
		seen := map[string]bool{old: true}
		for {
			next, ok := g.forward[cur]
			if !ok {
				break
			}
			if seen[next] {
				break // defensive: existing graph already had a cycle, won't propagate
			}
			if next == old {
				return false
			}
			seen[next] = true
			cur = next
		}
	}

	g.forward[old] = new
	g.reverse[new] = append(g.reverse[new], old)
	return true
}

// Resolve walks forward from p to its fixed point (the final current
// path), per spec §3.
func (g *AliasGraph) Resolve(p string) string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.resolveLocked(p)
}

func (g *AliasGraph) resolveLocked(p string) string {
	cur := p
	for i := 0; i < maxAliasChainLength; i++ {
		next, ok := g.forward[cur]
		if !ok {
			return cur
		}
		cur = next
	}
	return cur
}

// maxAliasChainLength bounds forward/backward walks against a pathological
// or (despite RegisterAlias's best effort) accidentally cyclic graph.
const maxAliasChainLength = 10000

// PreviousPaths returns every path that transitively resolves to p,
// including paths several renames back (spec §3 reverse lookup).
func (g *AliasGraph) PreviousPaths(p string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []string
	visited := map[string]bool{p: true}
	queue := []string{p}
	for len(queue) > 0 && len(out) < maxAliasChainLength {
		cur := queue[0]
		queue = queue[1:]
		for _, old := range g.reverse[cur] {
			if visited[old] {
				continue
			}
			visited[old] = true
			out = append(out, old)
			queue = append(queue, old)
		}
	}
	return out
}

// IsAliasOf reports whether x transitively resolves to y.
func (g *AliasGraph) IsAliasOf(x, y string) bool {
	return g.Resolve(x) == y
}

// Reset clears every alias edge.
func (g *AliasGraph) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.forward = make(map[string]string)
	g.reverse = make(map[string][]string)
}

// RemapTarget rewrites every edge pointing at oldTarget to instead point at
// newTarget, used by moveTokens when oldTarget itself is being renamed
// again (chained moves within the same task).
func (g *AliasGraph) RemapTarget(oldTarget, newTarget string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for old, tgt := range g.forward {
		if tgt == oldTarget {
			g.forward[old] = newTarget
		}
	}
	if olds, ok := g.reverse[oldTarget]; ok {
		g.reverse[newTarget] = append(g.reverse[newTarget], olds...)
		delete(g.reverse, oldTarget)
	}
}
