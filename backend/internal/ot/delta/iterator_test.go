package delta

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func iterFixture() *Delta {
	return New().
		Insert("Hello", Attrs("bold", true)).
		Retain(3, nil).
		InsertEmbed(Embed{Type: "image", Data: "a.png"}, Attrs("src", "x")).
		Delete(4)
}

func TestIteratorHasNext(t *testing.T) {
	it := NewIterator(iterFixture().Ops())
	require.True(t, it.HasNext())
	require.False(t, NewIterator(nil).HasNext())
}

func TestIteratorPeek(t *testing.T) {
	it := NewIterator(iterFixture().Ops())
	require.Equal(t, 5, it.PeekLen())
	require.Equal(t, KindInsert, it.PeekKind())
	require.True(t, Attrs("bold", true).Equal(it.PeekAttrs()))
	it.Next(2)
	require.Equal(t, 3, it.PeekLen())
	it.NextOp()
	require.Equal(t, KindRetain, it.PeekKind())
	it.NextOp()
	require.Equal(t, KindInsertEmbed, it.PeekKind())
	require.Equal(t, 1, it.PeekLen())
	it.NextOp()
	require.Equal(t, KindDelete, it.PeekKind())
	it.NextOp()
	require.Equal(t, Infinity, it.PeekLen())
	require.Equal(t, KindRetain, it.PeekKind())
	_, ok := it.Peek()
	require.False(t, ok)
}

func TestIteratorNext(t *testing.T) {
	it := NewIterator(iterFixture().Ops())
	require.True(t, it.Next(2).Equal(InsertOp("He", Attrs("bold", true))))
	require.True(t, it.Next(10).Equal(InsertOp("llo", Attrs("bold", true))))
	require.True(t, it.Next(1).Equal(RetainOp(1, nil)))
	require.True(t, it.Next(2).Equal(RetainOp(2, nil)))
	require.Equal(t, KindInsertEmbed, it.Next(5).Kind)
	require.True(t, it.Next(2).Equal(DeleteOp(2)))
	require.True(t, it.Next(Infinity).Equal(DeleteOp(2)))
	require.True(t, it.Next(3).Equal(RetainOp(Infinity, nil)))
}

func TestIteratorNextRunes(t *testing.T) {
	it := NewIterator(New().Insert("你好世界", nil).Ops())
	require.Equal(t, "你", it.Next(1).Text)
	require.Equal(t, "好世", it.Next(2).Text)
	require.Equal(t, 1, it.PeekLen())
	require.Equal(t, "界", it.NextOp().Text)
}

func TestIteratorRest(t *testing.T) {
	it := NewIterator(iterFixture().Ops())
	it.Next(2)
	want := New().
		Insert("llo", Attrs("bold", true)).
		Retain(3, nil).
		InsertEmbed(Embed{Type: "image", Data: "a.png"}, Attrs("src", "x")).
		Delete(4)
	requireDelta(t, want, it.Rest())
	// Rest 不移动游标
	require.Equal(t, 3, it.PeekLen())

	it.Next(3)
	it.Next(3)
	it.Next(1)
	it.Next(4)
	require.Empty(t, it.Rest().Ops())
}
