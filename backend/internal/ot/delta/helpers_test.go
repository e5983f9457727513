package delta

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
)

var valueCmp = cmp.Comparer(func(a, b Value) bool { return a.Equal(b) })

func requireDelta(t *testing.T, want, got *Delta) {
	t.Helper()
	if d := cmp.Diff(want.Ops(), got.Ops(), valueCmp); d != "" {
		t.Fatalf("delta mismatch (-want +got):\n%s\nwant %v\ngot  %v", d, want, got)
	}
}

const alphabet = "abcxyz 你好"

func randomText(r *rand.Rand) string {
	rs := []rune(alphabet)
	n := 1 + r.Intn(4)
	out := make([]rune, n)
	for i := range out {
		out[i] = rs[r.Intn(len(rs))]
	}
	return string(out)
}

func randomDocAttrs(r *rand.Rand) AttributeMap {
	switch r.Intn(5) {
	case 0:
		return Attrs("bold", true)
	case 1:
		return Attrs("color", "#ccc")
	case 2:
		return Attrs("bold", true, "size", 12)
	}
	return nil
}

// 格式修改里会出现 Null
func randomFormat(r *rand.Rand) AttributeMap {
	switch r.Intn(5) {
	case 0:
		return Attrs("bold", nil)
	case 1:
		return Attrs("italic", true)
	case 2:
		return Attrs("color", "#fff", "bold", nil)
	case 3:
		return Attrs("size", 14)
	}
	return nil
}

var testEmbeds = []Embed{
	{Type: "image", Data: "a.png"},
	{Type: "image", Data: "b.png"},
	{Type: "formula", Data: "e=mc^2"},
}

func randomEmbed(r *rand.Rand) Embed {
	return testEmbeds[r.Intn(len(testEmbeds))]
}

func randomDoc(r *rand.Rand) *Delta {
	d := New()
	for i := r.Intn(6); i >= 0; i-- {
		if r.Intn(6) == 0 {
			d.InsertEmbed(randomEmbed(r), randomDocAttrs(r))
			continue
		}
		d.Insert(randomText(r), randomDocAttrs(r))
	}
	return d
}

// embedPositions 标出文档每个位置是否是 embed
func embedPositions(doc *Delta) []bool {
	var out []bool
	for _, op := range doc.Ops() {
		for i := 0; i < op.Len(); i++ {
			out = append(out, op.Kind == KindInsertEmbed)
		}
	}
	return out
}

// randomChange 生成一个作用在文档 doc 上的合法变更。
// embed 位置上可能出现 RetainEmbed，payload 不一定和文档里的相同。
func randomChange(r *rand.Rand, doc *Delta) *Delta {
	isEmbed := embedPositions(doc)
	docLen := len(isEmbed)
	d := New()
	pos := 0
	for pos < docLen && r.Intn(8) != 0 {
		if isEmbed[pos] && r.Intn(2) == 0 {
			d.RetainEmbed(randomEmbed(r), randomFormat(r))
			pos++
			continue
		}
		n := 1 + r.Intn(min(3, docLen-pos))
		switch r.Intn(4) {
		case 0:
			d.Retain(n, nil)
			pos += n
		case 1:
			d.Retain(n, randomFormat(r))
			pos += n
		case 2:
			d.Delete(n)
			pos += n
		default:
			d.Insert(randomText(r), randomDocAttrs(r))
		}
	}
	if r.Intn(2) == 0 {
		d.Insert(randomText(r), nil)
	}
	return d
}
