package delta

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

const propertyRounds = 500

func TestPropertyIdentity(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < propertyRounds; i++ {
		doc := randomDoc(r)
		requireDelta(t, doc, doc.Compose(New()))
		requireDelta(t, doc, New().Compose(doc))

		change := randomChange(r, doc)
		requireDelta(t, change.Clone().Chop(), change.Compose(New()))
		requireDelta(t, change.Clone().Chop(), New().Compose(change))
	}
}

func TestPropertyLengthConservation(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	for i := 0; i < propertyRounds; i++ {
		doc := randomDoc(r)
		change := randomChange(r, doc)
		got := doc.Compose(change)
		require.Equalf(t, doc.Len()+change.ChangeLen(), got.Len(), "doc %v change %v", doc, change)
		require.True(t, got.IsDocument())
	}
}

func TestPropertyInvertibility(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	for i := 0; i < propertyRounds; i++ {
		doc := randomDoc(r)
		change := randomChange(r, doc)
		inverted := change.Invert(doc)
		requireDelta(t, doc, doc.Compose(change).Compose(inverted))
	}
}

func TestPropertyConvergence(t *testing.T) {
	r := rand.New(rand.NewSource(4))
	for i := 0; i < propertyRounds; i++ {
		doc := randomDoc(r)
		a := randomChange(r, doc)
		b := randomChange(r, doc)

		left := doc.Compose(a).Compose(a.Transform(b, true))
		right := doc.Compose(b).Compose(b.Transform(a, false))
		requireDelta(t, left, right)
	}
}

func TestPropertyDiffRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(5))
	for i := 0; i < propertyRounds; i++ {
		a := randomDoc(r)
		b := randomDoc(r)
		d, err := a.Diff(b)
		require.NoError(t, err)
		requireDelta(t, b, a.Compose(d))

		s1, s2 := randomText(r), randomText(r)
		d, err = FromText(s1).Diff(FromText(s2))
		require.NoError(t, err)
		require.Equal(t, s2, FromText(s1).Compose(d).Text())
	}
}

func TestPropertyTransformPositionBounds(t *testing.T) {
	r := rand.New(rand.NewSource(6))
	for i := 0; i < propertyRounds; i++ {
		doc := randomDoc(r)
		change := randomChange(r, doc)
		resultLen := doc.Compose(change).Len()
		for index := 0; index <= doc.Len(); index++ {
			for _, priority := range []bool{true, false} {
				got := change.TransformPosition(index, priority)
				require.GreaterOrEqual(t, got, 0)
				require.LessOrEqualf(t, got, resultLen, "change %v index %d", change, index)
			}
		}
	}
}
