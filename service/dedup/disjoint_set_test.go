package dedup

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestDisjointSet_UnionAndGroups(t *testing.T) {
	set := NewDisjointSet(6)
	assert.True(t, set.Union(4, 1))
	assert.True(t, set.Union(1, 5))
	assert.False(t, set.Union(5, 4), "already joined")
	assert.True(t, set.Union(2, 3))

	assert.True(t, set.Connected(4, 5))
	assert.False(t, set.Connected(0, 1))
	assert.Equal(t, [][]int{{0}, {1, 4, 5}, {2, 3}}, set.Groups())
}

// pair an edge of the generated graph
type pair struct{ A, B int }

func TestDisjointSet_MatchesReachability(t *testing.T) {
	const n = 12
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	edgeGen := gopter.CombineGens(gen.IntRange(0, n-1), gen.IntRange(0, n-1)).Map(func(v []interface{}) pair {
		return pair{A: v[0].(int), B: v[1].(int)}
	})

	properties.Property("connected iff reachable through edges", prop.ForAll(
		func(edges []pair) bool {
			set := NewDisjointSet(n)
			adjacent := make([][]int, n)
			for _, e := range edges {
				set.Union(e.A, e.B)
				adjacent[e.A] = append(adjacent[e.A], e.B)
				adjacent[e.B] = append(adjacent[e.B], e.A)
			}

			for start := 0; start < n; start++ {
				reach := make([]bool, n)
				reach[start] = true
				queue := []int{start}
				for len(queue) > 0 {
					cur := queue[0]
					queue = queue[1:]
					for _, next := range adjacent[cur] {
						if !reach[next] {
							reach[next] = true
							queue = append(queue, next)
						}
					}
				}
				for other := 0; other < n; other++ {
					if set.Connected(start, other) != reach[other] {
						return false
					}
				}
			}

			total := 0
			for _, g := range set.Groups() {
				total += len(g)
			}
			return total == n
		},
		gen.SliceOf(edgeGen),
	))

	properties.TestingRun(t)
}
