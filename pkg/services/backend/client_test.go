package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/cupogo/andvari/utils/zlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/liut/agrochat/pkg/models/aigc"
	"github.com/liut/agrochat/pkg/models/search"
)

func TestMain(m *testing.M) {
	zlog.Set(zap.NewNop().Sugar())
	os.Exit(m.Run())
}

func newTestServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc(PathAgent, func(w http.ResponseWriter, r *http.Request) {
		var ar AgentRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&ar))
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "event: data\ndata: {\"content\": \""+ar.ChatHistory[len(ar.ChatHistory)-1].Content+"/"+ar.Company+"\"}\n\n")
	})
	mux.HandleFunc("/api/agent_broken", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})
	mux.HandleFunc(PathSearch, func(w http.ResponseWriter, r *http.Request) {
		var q search.Query
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&q))
		_ = json.NewEncoder(w).Encode(map[string]any{"answer": "answer to " + q.Query + " by " + q.Model})
	})
	mux.HandleFunc(PathRetrieve, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"milvus_retrieved_doc": []string{"m1", "m2"},
			"bm25_retrieved_doc":   []string{"b1"},
			"reranked":             []string{},
		})
	})
	mux.HandleFunc(PathModels, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		_ = json.NewEncoder(w).Encode(map[string]any{"models": []string{"gpt-4o", "llama"}})
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func TestAgent(t *testing.T) {
	ts := newTestServer(t)
	c := New(ts.URL + "/")

	body, err := c.Agent(context.Background(), "", AgentRequest{
		ChatHistory: aigc.Messages{{Role: aigc.RoleUser, Content: "Q"}},
		Company:     "amazone",
	})
	require.NoError(t, err)
	defer body.Close()
	b, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"Q/amazone"`)
}

func TestAgentErrors(t *testing.T) {
	ts := newTestServer(t)
	c := New(ts.URL)

	_, err := c.Agent(context.Background(), PathAgent, AgentRequest{})
	assert.ErrorIs(t, err, ErrEmptyHistory)

	_, err = c.Agent(context.Background(), "/api/agent_broken", AgentRequest{
		ChatHistory: aigc.Messages{{Role: aigc.RoleUser, Content: "Q"}},
	})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.Code)
	assert.Equal(t, "boom", se.Body)

	dead := New("http://127.0.0.1:1")
	_, err = dead.Agent(context.Background(), PathAgent, AgentRequest{
		ChatHistory: aigc.Messages{{Role: aigc.RoleUser, Content: "Q"}},
	})
	assert.Error(t, err)
}

func TestSearchAndRetrieve(t *testing.T) {
	ts := newTestServer(t)
	c := New(ts.URL)

	res, err := c.SearchAndRetrieve(context.Background(), search.Query{Query: "seed drill", Model: "gpt-4o"})
	require.NoError(t, err)
	assert.Equal(t, "answer to seed drill by gpt-4o", res.Answer)
	assert.Equal(t, search.Documents{"m1", "m2"}, res.Milvus)
	assert.Equal(t, search.Documents{"b1"}, res.BM25)
	assert.Empty(t, res.Reranked)

	_, err = c.SearchAndRetrieve(context.Background(), search.Query{Query: "  "})
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestListModels(t *testing.T) {
	ts := newTestServer(t)
	models, err := New(ts.URL).ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"gpt-4o", "llama"}, models)
}
