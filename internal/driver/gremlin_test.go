package driver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/claimgraph/internal/core/model"
)

// fakeGremlin is a websocket server speaking enough of the Gremlin server
// protocol to exercise the client: SASL challenge, partial frames, errors.
type fakeGremlin struct {
	t        *testing.T
	username string
	password string
	respond  func(script string, bindings map[string]any) (code int, frames [][]any)

	mu      sync.Mutex
	scripts []string
	authed  int
}

func (f *fakeGremlin) handler(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{}
	ws, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	authenticated := f.username == ""
	for {
		_, frame, err := ws.ReadMessage()
		if err != nil {
			return
		}
		n := int(frame[0])
		if string(frame[1:1+n]) != graphSONMimeType {
			f.t.Errorf("unexpected mime prefix %q", frame[1:1+n])
			return
		}
		var req gremlinRequest
		if err := json.Unmarshal(frame[1+n:], &req); err != nil {
			f.t.Errorf("bad request: %v", err)
			return
		}

		if req.Op == "authentication" {
			want := base64.StdEncoding.EncodeToString([]byte("\x00" + f.username + "\x00" + f.password))
			if req.Args["sasl"] != want {
				f.write(ws, req.RequestID, 401, nil, "bad credentials")
				continue
			}
			f.mu.Lock()
			f.authed++
			f.mu.Unlock()
			authenticated = true
			req = f.pending(req)
		} else if !authenticated {
			f.stash(req)
			f.write(ws, req.RequestID, statusAuthenticate, nil, "")
			continue
		}

		script, _ := req.Args["gremlin"].(string)
		bindings, _ := req.Args["bindings"].(map[string]any)
		f.mu.Lock()
		f.scripts = append(f.scripts, script)
		f.mu.Unlock()

		code, frames := f.respond(script, bindings)
		if code != statusSuccess {
			f.write(ws, req.RequestID, code, nil, "boom")
			continue
		}
		for i, data := range frames {
			status := statusPartialContent
			if i == len(frames)-1 {
				status = statusSuccess
			}
			f.write(ws, req.RequestID, status, data, "")
		}
		if len(frames) == 0 {
			f.write(ws, req.RequestID, statusNoContent, nil, "")
		}
	}
}

var stashed sync.Map

func (f *fakeGremlin) stash(req gremlinRequest) { stashed.Store(req.RequestID, req) }

func (f *fakeGremlin) pending(auth gremlinRequest) gremlinRequest {
	v, ok := stashed.LoadAndDelete(auth.RequestID)
	if !ok {
		f.t.Errorf("authentication for unknown request %s", auth.RequestID)
		return auth
	}
	return v.(gremlinRequest)
}

func (f *fakeGremlin) write(ws *websocket.Conn, id string, code int, data []any, msg string) {
	resp := map[string]any{
		"requestId": id,
		"status":    map[string]any{"code": code, "message": msg, "attributes": map[string]any{}},
		"result":    map[string]any{"data": map[string]any{"@type": "g:List", "@value": data}, "meta": map[string]any{}},
	}
	body, _ := json.Marshal(resp)
	_ = ws.WriteMessage(websocket.TextMessage, body)
}

func newFakeGremlin(t *testing.T, respond func(string, map[string]any) (int, [][]any)) (*fakeGremlin, *GremlinDriver) {
	t.Helper()
	f := &fakeGremlin{t: t, username: "user", password: "secret", respond: respond}
	srv := httptest.NewServer(http.HandlerFunc(f.handler))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	d, err := NewGremlinDriver(ctx, GremlinOptions{
		URL:             "ws" + strings.TrimPrefix(srv.URL, "http") + "/gremlin",
		Username:        "user",
		Password:        "secret",
		TraversalSource: "g",
		PartitionKey:    "pk",
		PoolSize:        2,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close(context.Background()) })
	return f, d
}

func int64Tag(n int64) map[string]any { return map[string]any{"@type": "g:Int64", "@value": n} }

func TestGremlinAuthAndPartialFrames(t *testing.T) {
	f, d := newFakeGremlin(t, func(script string, b map[string]any) (int, [][]any) {
		if strings.HasPrefix(script, "g.V().has(vLabel, vKey, vValue).id()") {
			return statusSuccess, [][]any{{int64Tag(1)}, {int64Tag(2)}}
		}
		return statusSuccess, [][]any{{int64Tag(0)}}
	})

	refs, err := d.FindVertices(context.Background(), "claim", "claim_id", "C1")
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, int64(1), refs[0].ID)
	assert.Equal(t, int64(2), refs[1].ID)
	assert.Equal(t, "C1", refs[0].Key)

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.GreaterOrEqual(t, f.authed, 1)
}

func TestGremlinCreateVertexBindings(t *testing.T) {
	var got map[string]any
	var gotScript string
	_, d := newFakeGremlin(t, func(script string, b map[string]any) (int, [][]any) {
		if strings.Contains(script, "addV") {
			gotScript, got = script, b
			return statusSuccess, [][]any{{"c-1"}}
		}
		return statusSuccess, [][]any{{int64Tag(0)}}
	})

	ref, err := d.CreateVertex(context.Background(), "claim", "claim_id", "C1", map[string]any{"amount": 5})
	require.NoError(t, err)
	assert.Equal(t, "c-1", ref.ID)
	assert.Contains(t, gotScript, "fold().coalesce(unfold(), addV(vLabel)")
	assert.Contains(t, gotScript, ".property(vPk, vPkValue)")
	assert.Equal(t, "claim", got["vPkValue"], "partition key defaults to the label")
	assert.Equal(t, "C1", got["vValue"])
}

func TestGremlinSetPropertiesSkipsPartitionKey(t *testing.T) {
	var gotScript string
	var got map[string]any
	_, d := newFakeGremlin(t, func(script string, b map[string]any) (int, [][]any) {
		if strings.HasPrefix(script, "g.V(vId)") {
			gotScript, got = script, b
			return statusSuccess, [][]any{{int64Tag(9)}}
		}
		return statusSuccess, [][]any{{int64Tag(0)}}
	})

	err := d.SetProperties(context.Background(), model.VertexRef{ID: int64(9)}, map[string]any{"status": "open", "pk": "x", "amount": int64(3)})
	require.NoError(t, err)
	assert.Equal(t, "g.V(vId).property(p0, v0).property(p1, v1).id()", gotScript)
	assert.Equal(t, "amount", got["p0"])
	assert.Equal(t, map[string]any{"@type": "g:Int64", "@value": float64(3)}, got["v0"])
	assert.Equal(t, "status", got["p1"])
	assert.Equal(t, map[string]any{"@type": "g:Int64", "@value": float64(9)}, got["vId"])
}

func TestGremlinCreateEdgeUsesAnonymousTarget(t *testing.T) {
	var gotScript string
	var got map[string]any
	_, d := newFakeGremlin(t, func(script string, b map[string]any) (int, [][]any) {
		if strings.Contains(script, "addE(eLabel)") {
			gotScript, got = script, b
			if b["vTo"] == "gone" {
				return statusSuccess, [][]any{{int64Tag(0)}}
			}
			return statusSuccess, [][]any{{int64Tag(1)}}
		}
		return statusSuccess, [][]any{{int64Tag(0)}}
	})

	from := model.VertexRef{ID: "c1", Label: "claim", Key: "C1"}
	to := model.VertexRef{ID: "a1", Label: "agent", Key: "A1"}
	require.NoError(t, d.CreateEdge(context.Background(), from, "assigned_to", to))
	assert.Contains(t, gotScript, "addE(eLabel).to(__.V(vTo))")
	assert.NotContains(t, gotScript, "to(g.V(")
	assert.Equal(t, "assigned_to", got["eLabel"])
	assert.Equal(t, "a1", got["vTo"])

	err := d.CreateEdge(context.Background(), from, "assigned_to", model.VertexRef{ID: "gone", Label: "agent"})
	assert.Error(t, err)
}

func TestGremlinFlattenClaim(t *testing.T) {
	_, d := newFakeGremlin(t, func(script string, b map[string]any) (int, [][]any) {
		if strings.Contains(script, "project('c', 'cl', 'aa', 'ca')") {
			if b["vValue"] == "missing" {
				return statusSuccess, nil
			}
			return statusSuccess, [][]any{{map[string]any{
				"c":  map[string]any{"id": "c1", "label": "claim", "properties": map[string]any{"claim_id": []any{"C1"}}},
				"cl": []any{map[string]any{"id": "p1", "label": "claimant", "properties": map[string]any{"claimant_id": []any{"P1"}}}},
				"aa": []any{},
				"ca": []any{},
			}}}
		}
		return statusSuccess, [][]any{{int64Tag(0)}}
	})

	view, err := d.FlattenClaim(context.Background(), "C1")
	require.NoError(t, err)
	assert.Equal(t, "C1", view.Claim.Properties["claim_id"])
	require.True(t, view.Claimant.Found())
	assert.Equal(t, "P1", view.Claimant.Vertex.Properties["claimant_id"])
	assert.Equal(t, model.SentinelNotFound, view.AssignedAgent.Sentinel)
	assert.Equal(t, model.SentinelClaimNotClosed, view.CloseAgent.Sentinel)

	_, err = d.FlattenClaim(context.Background(), "missing")
	assert.ErrorIs(t, err, model.ErrClaimNotFound)
}

func TestGremlinServerErrorIsPermanent(t *testing.T) {
	_, d := newFakeGremlin(t, func(script string, b map[string]any) (int, [][]any) {
		if strings.Contains(script, "outE") {
			return 597, nil
		}
		return statusSuccess, [][]any{{int64Tag(0)}}
	})

	_, err := d.FindEdge(context.Background(), model.VertexRef{ID: "a"}, "filed", model.VertexRef{ID: "b"})
	require.Error(t, err)
	var se *StoreError
	require.ErrorAs(t, err, &se)
	assert.False(t, se.Temporary)
	assert.Contains(t, err.Error(), "597")

	// The connection survives a query error.
	counts, err := d.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.GraphCounts{}, counts)
}

func TestGremlinUnreachableIsFatal(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := NewGremlinDriver(ctx, GremlinOptions{URL: "ws://127.0.0.1:1/gremlin", ConnectTimeout: time.Second}, nil)
	require.Error(t, err)
	var fatal *model.FatalSetupError
	assert.ErrorAs(t, err, &fatal)
}

func TestGremlinStatusThrottled(t *testing.T) {
	assert.True(t, (&GremlinStatusError{Code: 500, Attributes: map[string]any{"x-ms-status-code": int64(429)}}).Throttled())
	assert.True(t, (&GremlinStatusError{Code: statusServerTimeout}).Throttled())
	assert.False(t, (&GremlinStatusError{Code: 597}).Throttled())
}
