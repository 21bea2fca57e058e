package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/cupogo/andvari/utils/zlog"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/liut/agrochat/pkg/models/aigc"
	"github.com/liut/agrochat/pkg/models/search"
	"github.com/liut/agrochat/pkg/services/backend"
	"github.com/liut/agrochat/pkg/services/stores"
)

func TestMain(m *testing.M) {
	zlog.Set(zap.NewNop().Sugar())
	os.Exit(m.Run())
}

const helloStream = "event: data\ndata: {\"content\": \"Hi\"}\n\n" +
	"event: metadata\ndata: {\"tool_messages\": [{\"source\": \"pdf\", \"image\": \"docs/Manual/page_4.png\"}]}\n\n" +
	"event: data\ndata: {\"content\": \" there\"}\n\n" +
	"event: done\ndata: {}\n\n"

type fakeBackend struct {
	mu         sync.Mutex
	requests   []backend.AgentRequest
	stream     string
	err        error
	beforeRead func() // runs once when the next stream is first read
}

// hookReader runs fn before the first read
type hookReader struct {
	io.Reader
	fn func()
}

func (r *hookReader) Read(p []byte) (int, error) {
	if fn := r.fn; fn != nil {
		r.fn = nil
		fn()
	}
	return r.Reader.Read(p)
}

func (f *fakeBackend) Agent(ctx context.Context, path string, ar backend.AgentRequest) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, ar)
	if f.err != nil {
		return nil, f.err
	}
	fn := f.beforeRead
	f.beforeRead = nil
	return io.NopCloser(&hookReader{Reader: strings.NewReader(f.stream), fn: fn}), nil
}

func (f *fakeBackend) last() backend.AgentRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func (f *fakeBackend) SearchAndRetrieve(ctx context.Context, q search.Query) (search.Result, error) {
	if f.err != nil {
		return search.Result{}, f.err
	}
	if len(q.Query) == 0 {
		return search.Result{}, backend.ErrEmptyQuery
	}
	return search.Result{
		Answer: "answer: " + q.Query,
		Retrieved: search.Retrieved{
			Milvus: search.Documents{"m1", "m2", "m3"},
			BM25:   search.Documents{"b1"},
		},
	}, nil
}

func (f *fakeBackend) ListModels(ctx context.Context) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []string{"gpt-4o", "llama"}, nil
}

func newTestServer(t *testing.T, fb *fakeBackend, mods ...func(cfg *Config)) (Service, *stores.Sessions) {
	sto := stores.NewSessions(stores.NewMemorySessions())
	cfg := Config{
		Backend:  fb,
		Sessions: sto,
		DocHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, "page "+r.URL.Path)
		}),
	}
	for _, fn := range mods {
		fn(&cfg)
	}
	return New(cfg), sto
}

func doJSON(t *testing.T, h http.Handler, method, target, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var rd io.Reader
	if len(body) > 0 {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == dftCookieName {
			return c
		}
	}
	t.Fatal("no session cookie")
	return nil
}

func TestPing(t *testing.T) {
	srv, _ := newTestServer(t, &fakeBackend{})
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/ping", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Pong\n", rec.Body.String())

	rec = doJSON(t, srv.Handler(), http.MethodGet, "/search.html", "")
	assert.Equal(t, "page /search.html", rec.Body.String())
}

func TestPostChat(t *testing.T) {
	fb := &fakeBackend{stream: helloStream}
	srv, sto := newTestServer(t, fb)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/chat", `{"message": "Q"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, `"delta":"Hi","text":"Hi"`)
	assert.Contains(t, body, `"text":"Hi there"`)
	assert.Contains(t, body, `"documents":[{"name":"Manual","pages":["4"]}]`)
	assert.Contains(t, body, esDone)
	assert.Equal(t, aigc.Messages{{Role: aigc.RoleUser, Content: "Q"}}, fb.last().ChatHistory)

	cookie := sessionCookie(t, rec)
	sess, err := sto.Get(context.Background(), cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, aigc.Messages{
		{Role: aigc.RoleUser, Content: "Q"},
		{Role: aigc.RoleAssistant, Content: "Hi there"},
	}, sess.History)

	rec = doJSON(t, h, http.MethodPost, "/api/chat", `{"message": "Q2"}`, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, fb.last().ChatHistory, 3)
	assert.Equal(t, "Q2", fb.last().ChatHistory[2].Content)
}

func TestPostChatWithPairs(t *testing.T) {
	fb := &fakeBackend{stream: helloStream}
	srv, _ := newTestServer(t, fb)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/chat", `{"message": "Q2", "history": [["Q", "A"], ["odd"]]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, aigc.Messages{
		{Role: aigc.RoleUser, Content: "Q"},
		{Role: aigc.RoleAssistant, Content: "A"},
		{Role: aigc.RoleUser, Content: "Q2"},
	}, fb.last().ChatHistory)
}

func TestPostChatFailures(t *testing.T) {
	fb := &fakeBackend{err: &backend.StatusError{Code: 500, Body: "oops"}}
	srv, _ := newTestServer(t, fb)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/chat", `{"message": "  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/chat", `{"message": "Q"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	var res map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, msgBackendFail, res["message"])
}

func TestDeleteSession(t *testing.T) {
	fb := &fakeBackend{stream: helloStream}
	srv, sto := newTestServer(t, fb)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/chat", `{"message": "Q"}`)
	cookie := sessionCookie(t, rec)

	rec = doJSON(t, h, http.MethodDelete, "/api/session", "", cookie)
	assert.Equal(t, http.StatusOK, rec.Code)
	sess, err := sto.Get(context.Background(), cookie.Value)
	require.NoError(t, err)
	assert.Empty(t, sess.History)
}

func TestDeleteSessionWhileStreaming(t *testing.T) {
	fb := &fakeBackend{stream: helloStream}
	srv, sto := newTestServer(t, fb)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/chat", `{"message": "Q1"}`)
	cookie := sessionCookie(t, rec)

	fb.beforeRead = func() {
		rec := doJSON(t, h, http.MethodDelete, "/api/session", "", cookie)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	rec = doJSON(t, h, http.MethodPost, "/api/chat", `{"message": "Q2"}`, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, fb.last().ChatHistory, 3)

	sess, err := sto.Get(context.Background(), cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, aigc.Messages{
		{Role: aigc.RoleUser, Content: "Q2"},
		{Role: aigc.RoleAssistant, Content: "Hi there"},
	}, sess.History)
}

func TestInterleavedChatsKeepTurns(t *testing.T) {
	fb := &fakeBackend{stream: helloStream}
	srv, sto := newTestServer(t, fb)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/chat", `{"message": "Q0"}`)
	cookie := sessionCookie(t, rec)

	fb.beforeRead = func() {
		rec := doJSON(t, h, http.MethodPost, "/api/chat", `{"message": "B"}`, cookie)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	rec = doJSON(t, h, http.MethodPost, "/api/chat", `{"message": "A"}`, cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	sess, err := sto.Get(context.Background(), cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, aigc.Messages{
		{Role: aigc.RoleUser, Content: "Q0"},
		{Role: aigc.RoleAssistant, Content: "Hi there"},
		{Role: aigc.RoleUser, Content: "B"},
		{Role: aigc.RoleAssistant, Content: "Hi there"},
		{Role: aigc.RoleUser, Content: "A"},
		{Role: aigc.RoleAssistant, Content: "Hi there"},
	}, sess.History)
}

func TestSearchAndDocs(t *testing.T) {
	srv, _ := newTestServer(t, &fakeBackend{})
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/search", `{"query": "seeder", "model": "gpt-4o"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var res struct {
		Data SearchResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "answer: seeder", res.Data.Answer)
	assert.Equal(t, DocView{Text: "m1", Index: 1, Total: 3}, res.Data.Docs[search.SourceMilvus])
	assert.Equal(t, DocView{Text: "b1", Index: 1, Total: 1}, res.Data.Docs[search.SourceBM25])
	assert.Equal(t, DocView{Text: "", Index: 1, Total: 0}, res.Data.Docs[search.SourceReranked])
	cookie := sessionCookie(t, rec)

	var page struct {
		Data DocView `json:"data"`
	}
	rec = doJSON(t, h, http.MethodGet, "/api/docs/milvus?current=3&direction=1", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, DocView{Text: "m1", Index: 1, Total: 3}, page.Data)

	rec = doJSON(t, h, http.MethodGet, "/api/docs/milvus?current=1&direction=-1", "", cookie)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, DocView{Text: "m3", Index: 3, Total: 3}, page.Data)

	rec = doJSON(t, h, http.MethodGet, "/api/docs/nowhere", "", cookie)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/search", `{"query": ""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestModels(t *testing.T) {
	srv, _ := newTestServer(t, &fakeBackend{})
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/models", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":0,"data":["gpt-4o","llama"],"count":2}`, rec.Body.String())

	srv, _ = newTestServer(t, &fakeBackend{err: errors.New("down")})
	rec = doJSON(t, srv.Handler(), http.MethodGet, "/api/models", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestBasicAuth(t *testing.T) {
	srv, _ := newTestServer(t, &fakeBackend{}, func(cfg *Config) {
		cfg.AuthUser = "admin"
		cfg.AuthPass = "secret"
	})
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodGet, "/api/models", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = doJSON(t, h, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/models", nil)
	req.SetBasicAuth("admin", "secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit(t *testing.T) {
	srv, _ := newTestServer(t, &fakeBackend{}, func(cfg *Config) {
		cfg.RateLimit = "2-M"
	})
	h := srv.Handler()
	for i := 0; i < 2; i++ {
		rec := doJSON(t, h, http.MethodGet, "/api/models", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	rec := doJSON(t, h, http.MethodGet, "/api/models", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestChatSocket(t *testing.T) {
	fb := &fakeBackend{stream: helloStream}
	srv, _ := newTestServer(t, fb)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/chat/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.NotEmpty(t, resp.Header.Get(headerSession))

	ask := func(msg string) (frames []ChatMessage) {
		require.NoError(t, conn.WriteJSON(ChatRequest{Message: msg}))
		for {
			var cm ChatMessage
			require.NoError(t, conn.ReadJSON(&cm))
			frames = append(frames, cm)
			if cm.Done {
				return
			}
		}
	}

	frames := ask("Q")
	last := frames[len(frames)-1]
	assert.Equal(t, "Hi there", last.Text)
	assert.Empty(t, last.Error)

	frames = ask("Q2")
	assert.Equal(t, "Hi there", frames[len(frames)-1].Text)
	assert.Len(t, fb.last().ChatHistory, 3)

	frames = ask("")
	require.Len(t, frames, 1)
	assert.Equal(t, errEmptyMessage.Error(), frames[0].Error)
}
