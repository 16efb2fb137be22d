//go:build property

package channel

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestSelectProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(4242)
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("select relays every value exactly once then ends", prop.ForAll(
		func(a []int, b []int) bool {
			s1, r1 := New[int]()
			s2, r2 := New[int]()

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			merged := Select(ctx, r1, r2)

			go func() {
				for _, v := range a {
					s1.Send(v)
				}
				s1.End()
			}()
			go func() {
				for _, v := range b {
					s2.Send(v)
				}
				s2.End()
			}()

			var got []int
			for v := range merged.All(ctx) {
				got = append(got, v)
			}
			if ctx.Err() != nil {
				return false
			}

			want := append(slices.Clone(a), b...)
			slices.Sort(want)
			slices.Sort(got)

			return slices.Equal(want, got)
		},
		gen.SliceOf(gen.IntRange(-100, 100)),
		gen.SliceOf(gen.IntRange(-100, 100)),
	))

	properties.Property("single channel preserves order", prop.ForAll(
		func(values []int) bool {
			sender, receiver := New[int]()
			for _, v := range values {
				sender.Send(v)
			}
			sender.End()

			var got []int
			for v := range receiver.All(context.Background()) {
				got = append(got, v)
			}

			return slices.Equal(values, got) || (len(values) == 0 && len(got) == 0)
		},
		gen.SliceOf(gen.Int()),
	))

	properties.TestingRun(t)
}
