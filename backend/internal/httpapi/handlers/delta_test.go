package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newDeltaRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewDeltaHandler().Register(r)
	return r
}

func post(r http.Handler, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func resultOf(t *testing.T, w *httptest.ResponseRecorder, key string) string {
	t.Helper()
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return string(resp[key])
}

func TestDeltaEndpoints(t *testing.T) {
	r := newDeltaRouter()
	cases := []struct {
		name, path, body, key, want string
	}{
		{
			name: "compose",
			path: "/delta/compose",
			body: `{"a":[{"insert":"abc"}],"b":[{"retain":1},{"delete":1}]}`,
			key:  "result",
			want: `[{"insert":"ac"}]`,
		},
		{
			name: "compose keeps attributes",
			path: "/delta/compose",
			body: `{"a":[{"insert":"abc"}],"b":[{"retain":3,"attributes":{"bold":true}}]}`,
			key:  "result",
			want: `[{"insert":"abc","attributes":{"bold":true}}]`,
		},
		{
			name: "compose clamps delete past the end",
			path: "/delta/compose",
			body: `{"a":[{"insert":"ab"}],"b":[{"delete":5}]}`,
			key:  "result",
			want: `[]`,
		},
		{
			name: "compose clamps retain past the end",
			path: "/delta/compose",
			body: `{"a":[{"insert":"ab"}],"b":[{"retain":5,"attributes":{"bold":true}}]}`,
			key:  "result",
			want: `[{"insert":"ab","attributes":{"bold":true}}]`,
		},
		{
			name: "transform with priority",
			path: "/delta/transform",
			body: `{"a":[{"insert":"a"}],"b":[{"insert":"b"}],"priority":true}`,
			key:  "result",
			want: `[{"retain":1},{"insert":"b"}]`,
		},
		{
			name: "transform without priority",
			path: "/delta/transform",
			body: `{"a":[{"insert":"a"}],"b":[{"insert":"b"}]}`,
			key:  "result",
			want: `[{"insert":"b"}]`,
		},
		{
			name: "invert",
			path: "/delta/invert",
			body: `{"change":[{"retain":1},{"delete":1}],"base":[{"insert":"abc"}]}`,
			key:  "result",
			want: `[{"retain":1},{"insert":"b"}]`,
		},
		{
			name: "diff",
			path: "/delta/diff",
			body: `{"a":[{"insert":"Hello"}],"b":[{"insert":"Hello!"}]}`,
			key:  "result",
			want: `[{"retain":5},{"insert":"!"}]`,
		},
		{
			name: "transform position",
			path: "/delta/transform-position",
			body: `{"change":[{"insert":"ab"}],"index":1}`,
			key:  "index",
			want: `3`,
		},
		{
			name: "wrapped ops form",
			path: "/delta/compose",
			body: `{"a":{"ops":[{"insert":"x"}]},"b":[{"insert":"y"}]}`,
			key:  "result",
			want: `[{"insert":"yx"}]`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := resultOf(t, post(r, tc.path, tc.body), tc.key)
			require.JSONEq(t, tc.want, got)
		})
	}
}

func TestDeltaEndpointErrors(t *testing.T) {
	r := newDeltaRouter()
	cases := []struct {
		name, path, body, wantErr string
	}{
		{"bad op", "/delta/compose", `{"a":[{"insert":"a","delete":1}],"b":[]}`, "a: delta: decode op 0"},
		{"missing field", "/delta/compose", `{"a":[]}`, "required"},
		{"negative length", "/delta/transform", `{"a":[{"retain":-1}],"b":[]}`, "a: delta: decode op 0"},
		{"diff of change", "/delta/diff", `{"a":[{"retain":1}],"b":[{"insert":"x"}]}`, "non-document"},
		{"invert on change", "/delta/invert", `{"change":[{"delete":1}],"base":[{"retain":1}]}`, "non-document"},
		{"negative index", "/delta/transform-position", `{"change":[],"index":-1}`, "index"},
		{"empty batch", "/delta/batch/compose", `{"pairs":[]}`, "empty"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := post(r, tc.path, tc.body)
			require.Equal(t, http.StatusBadRequest, w.Code)
			var resp struct {
				Error string `json:"error"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			require.Contains(t, resp.Error, tc.wantErr)
		})
	}
}

func TestBatchCompose(t *testing.T) {
	r := newDeltaRouter()
	body := `{"pairs":[
		{"a":[{"insert":"abc"}],"b":[{"delete":1}]},
		{"a":[{"insert":"x"}],"b":[{"retain":1},{"insert":"y"}]},
		{"a":[],"b":[{"insert":"z"}]},
		{"a":[{"insert":"ab"}],"b":[{"retain":1},{"delete":7}]}
	]}`
	got := resultOf(t, post(r, "/delta/batch/compose", body), "results")
	require.JSONEq(t, `[[{"insert":"bc"}],[{"insert":"xy"}],[{"insert":"z"}],[{"insert":"a"}]]`, got)

	bad := `{"pairs":[
		{"a":[{"insert":"abc"}],"b":[{"delete":1}]},
		{"a":[{"insert":"x"}],"b":[{"bogus":1}]}
	]}`
	w := post(r, "/delta/batch/compose", bad)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "pairs[1].b")
}
