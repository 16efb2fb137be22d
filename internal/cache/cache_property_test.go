//go:build property

package cache

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func snapshotFrom(stamps []int) []item {
	items := make([]item, len(stamps))
	for i, ts := range stamps {
		items[i] = item{key: fmt.Sprintf("k%d", i), ts: int64(ts)}
	}
	return items
}

func TestCacheProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(1234)
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("second identical update is empty", prop.ForAll(
		func(stamps []int) bool {
			c := New[item]()
			snapshot := snapshotFrom(stamps)
			c.Update(snapshot)
			return len(c.Update(snapshot)) == 0
		},
		gen.SliceOf(gen.IntRange(0, 10)),
	))

	properties.Property("actions are ordered deletes, inserts, updates", prop.ForAll(
		func(before, after []int) bool {
			c := New[item]()
			c.Update(snapshotFrom(before))
			actions := c.Update(snapshotFrom(after))

			last := ActionDelete
			for _, a := range actions {
				if a.Type < last {
					return false
				}
				last = a.Type
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 3)),
		gen.SliceOf(gen.IntRange(0, 3)),
	))

	properties.Property("action counts match the key sets", prop.ForAll(
		func(before, after []int) bool {
			c := New[item]()
			c.Update(snapshotFrom(before))
			actions := c.Update(snapshotFrom(after))

			var deletes, inserts, updates int
			for _, a := range actions {
				switch a.Type {
				case ActionDelete:
					deletes++
				case ActionInsert:
					inserts++
				case ActionUpdate:
					updates++
				}
			}

			wantDeletes := max(len(before)-len(after), 0)
			wantInserts := max(len(after)-len(before), 0)
			wantUpdates := 0
			for i := 0; i < min(len(before), len(after)); i++ {
				if before[i] != after[i] {
					wantUpdates++
				}
			}

			return deletes == wantDeletes && inserts == wantInserts && updates == wantUpdates
		},
		gen.SliceOf(gen.IntRange(0, 3)),
		gen.SliceOf(gen.IntRange(0, 3)),
	))

	properties.TestingRun(t)
}
