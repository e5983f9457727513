package delta

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPushMerge(t *testing.T) {
	d := New().Insert("a", nil).Insert("b", nil)
	requireDelta(t, New(InsertOp("ab", nil)), d)
	require.Len(t, d.Ops(), 1)

	d = New().Insert("a", Attrs("bold", true)).Insert("b", Attrs("bold", true))
	require.Len(t, d.Ops(), 1)
	require.Equal(t, "ab", d.Ops()[0].Text)

	d = New().Insert("a", Attrs("bold", true)).Insert("b", nil)
	require.Len(t, d.Ops(), 2)

	d = New().Delete(2).Delete(3)
	require.Equal(t, []Op{DeleteOp(5)}, d.Ops())

	d = New().Retain(2, nil).Retain(3, nil)
	require.Equal(t, []Op{RetainOp(5, nil)}, d.Ops())

	d = New().Retain(2, Attrs("bold", true)).Retain(3, nil)
	require.Len(t, d.Ops(), 2)
}

func TestPushNeverMergesEmbeds(t *testing.T) {
	img := Embed{Type: "image", Data: "a.png"}
	d := New().InsertEmbed(img, nil).InsertEmbed(img, nil).RetainEmbed(img, nil).RetainEmbed(img, nil)
	require.Len(t, d.Ops(), 4)
	require.Equal(t, 4, d.Len())
}

func TestPushDropsZeroLength(t *testing.T) {
	d := New().Insert("", nil).Delete(0).Retain(0, nil).Retain(0, Attrs("bold", true))
	require.Empty(t, d.Ops())
	d = New().Push(RetainOp(0, Attrs("bold", true))).Push(DeleteOp(0)).Push(InsertOp("", nil))
	require.Empty(t, d.Ops())
}

func TestPushInsertBeforeDelete(t *testing.T) {
	d := New().Delete(1).Insert("a", nil)
	require.Equal(t, []Op{InsertOp("a", nil), DeleteOp(1)}, d.Ops())

	d = New().Insert("a", nil).Delete(1).Insert("b", nil)
	require.Equal(t, []Op{InsertOp("ab", nil), DeleteOp(1)}, d.Ops())

	d = New().Retain(1, nil).Delete(2).Insert("a", Attrs("bold", true))
	require.Equal(t, []Op{RetainOp(1, nil), InsertOp("a", Attrs("bold", true)), DeleteOp(2)}, d.Ops())

	img := Embed{Type: "image", Data: "a.png"}
	d = New().Delete(1).InsertEmbed(img, nil)
	require.Equal(t, KindInsertEmbed, d.Ops()[0].Kind)
}

func TestDeleteDropsAttrs(t *testing.T) {
	d := New().Push(Op{Kind: KindDelete, Count: 2, Attrs: Attrs("bold", true)})
	require.Nil(t, d.Ops()[0].Attrs)
}

func TestChop(t *testing.T) {
	require.Equal(t, []Op{InsertOp("a", nil)}, New().Insert("a", nil).Retain(4, nil).Chop().Ops())
	d := New().Insert("a", nil).Retain(4, Attrs("bold", true)).Chop()
	require.Len(t, d.Ops(), 2)
	require.Empty(t, New().Chop().Ops())
}

func TestLength(t *testing.T) {
	d := New().Insert("Hello", nil).Retain(3, nil).Delete(4).InsertEmbed(Embed{Type: "image", Data: "x"}, nil)
	require.Equal(t, 9, d.Len())
	require.Equal(t, 2, d.ChangeLen())
	require.Equal(t, 2, New().Insert("你好", nil).Len())

	var nilDelta *Delta
	require.Equal(t, 0, nilDelta.Len())
	require.Empty(t, nilDelta.Ops())
}

func TestSlice(t *testing.T) {
	d := New().Insert("Hello", Attrs("bold", true)).Insert(" World", nil)
	requireDelta(t, New().Insert("llo", Attrs("bold", true)).Insert(" W", nil), d.Slice(2, 7))
	requireDelta(t, New().Insert("World", nil), d.Slice(6, -1))
	require.Empty(t, d.Slice(3, 3).Ops())
	requireDelta(t, d, d.Slice(0, -1))
}

func TestConcat(t *testing.T) {
	a := New().Insert("Hello", nil)
	b := New().Insert(" World", nil).Insert("!", Attrs("bold", true))
	got := a.Concat(b)
	requireDelta(t, New().Insert("Hello World", nil).Insert("!", Attrs("bold", true)), got)
	// 输入不变
	require.Equal(t, "Hello", a.Text())
	requireDelta(t, a, a.Concat(New()))
	requireDelta(t, b, New().Concat(b))
}

func TestText(t *testing.T) {
	d := New().Insert("a", nil).InsertEmbed(Embed{Type: "image", Data: "x"}, nil).Insert("b", nil).Delete(2)
	require.Equal(t, "a\x00b", d.Text())
	require.False(t, d.IsDocument())
	require.True(t, FromText("abc").IsDocument())
}

func TestClamp(t *testing.T) {
	d := New().Retain(3, nil).Insert("x", nil).Retain(5, Attrs("bold", true)).Delete(10)
	got := d.Clamp(6)
	requireDelta(t, New().Retain(3, nil).Insert("x", nil).Retain(3, Attrs("bold", true)), got)

	got = New().Delete(10).Clamp(4)
	requireDelta(t, New().Delete(4), got)

	// 范围内的变更不受影响
	within := New().Retain(2, nil).Delete(1).Insert("y", nil)
	requireDelta(t, within, within.Clamp(10))
}

func TestComposeDocumentClampsLengths(t *testing.T) {
	got := FromText("ab").ComposeDocument(New().Delete(5))
	require.Empty(t, got.Ops())
	require.True(t, got.IsDocument())

	got = FromText("ab").ComposeDocument(New().Retain(5, Attrs("bold", true)))
	requireDelta(t, New().Insert("ab", Attrs("bold", true)), got)
	require.Equal(t, 2, got.Len())

	got = FromText("abc").ComposeDocument(New().Retain(1, nil).Delete(9).Insert("x", nil))
	requireDelta(t, New().Insert("ax", nil), got)

	// 不是文档时不截断
	change := New().Retain(2, nil).Insert("y", nil)
	requireDelta(t, change.Compose(New().Delete(5)), change.ComposeDocument(New().Delete(5)))
}

func TestHelpers(t *testing.T) {
	requireDelta(t, New().Retain(3, nil).Insert("ab", Attrs("bold", true)), InsertAt(3, "ab", Attrs("bold", true)))
	requireDelta(t, New().Insert("ab", nil), InsertAt(0, "ab", nil))
	requireDelta(t, New().Retain(1, nil).Delete(2), DeleteAt(1, 2))
	requireDelta(t, New().Retain(2, nil).Retain(4, Attrs("italic", true)), FormatAt(2, 4, Attrs("italic", true)))
}

func TestString(t *testing.T) {
	d := New().Insert("a", Attrs("bold", true)).Retain(2, nil).Delete(1)
	require.Equal(t, `[insert("a"){bold:true} retain(2) delete(1)]`, d.String())
}
