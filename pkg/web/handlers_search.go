package web

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/marcsv/go-binder/binder"
	"github.com/spf13/cast"

	"github.com/liut/agrochat/pkg/models/aigc"
	"github.com/liut/agrochat/pkg/models/search"
	"github.com/liut/agrochat/pkg/services/backend"
)

// DocView is the document shown by one viewer of the search page
type DocView struct {
	Text  string `json:"text"`
	Index int    `json:"index"`
	Total int    `json:"total"`
}

func newDocView(docs search.Documents, text string, index int) DocView {
	return DocView{Text: text, Index: index, Total: len(docs)}
}

// SearchResponse ...
type SearchResponse struct {
	Answer string             `json:"answer"`
	Docs   map[string]DocView `json:"docs"`
}

func (s *server) getModels(w http.ResponseWriter, r *http.Request) {
	res, err := s.be.ListModels(r.Context())
	if err != nil {
		logger().Infow("list models fail", "err", err)
		apiFail(w, r, 502, msgBackendFail)
		return
	}
	apiOk(w, r, res, len(res))
}

func (s *server) postSearch(w http.ResponseWriter, r *http.Request) {
	var param search.Query
	if err := binder.BindBody(r, &param); err != nil {
		apiFail(w, r, 400, err)
		return
	}
	sid := s.sessionID(w, r)
	logger().Infow("search", "sid", sid, "query", param.Query, "model", param.Model)

	res, err := s.be.SearchAndRetrieve(r.Context(), param)
	if err != nil {
		if errors.Is(err, backend.ErrEmptyQuery) {
			apiFail(w, r, 400, err)
			return
		}
		logger().Infow("search fail", "sid", sid, "err", err)
		apiFail(w, r, 502, msgBackendFail)
		return
	}

	_, err = s.sto.Update(r.Context(), sid, func(sess *aigc.Session) error {
		sess.Docs = aigc.Docs{
			Milvus:   res.Milvus,
			BM25:     res.BM25,
			Reranked: res.Reranked,
		}
		sess.Updated = time.Now().Unix()
		return nil
	})
	if err != nil {
		logger().Infow("save docs fail", "sid", sid, "err", err)
	}

	out := SearchResponse{Answer: res.Answer, Docs: make(map[string]DocView, len(search.Sources))}
	for _, src := range search.Sources {
		docs, _ := res.BySource(src)
		text, idx := docs.First()
		out.Docs[src] = newDocView(docs, text, idx)
	}
	apiOk(w, r, &out)
}

// getDocs pages through the documents of the latest search
func (s *server) getDocs(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")
	sid := s.sessionID(w, r)
	sess, err := s.sto.Get(r.Context(), sid)
	if err != nil {
		apiFail(w, r, 503, err)
		return
	}
	stored := search.Retrieved{
		Milvus:   sess.Docs.Milvus,
		BM25:     sess.Docs.BM25,
		Reranked: sess.Docs.Reranked,
	}
	docs, ok := stored.BySource(source)
	if !ok {
		apiFail(w, r, 404, "unknown source")
		return
	}
	q := r.URL.Query()
	current := cast.ToInt(q.Get("current"))
	if current == 0 {
		current = 1
	}
	direction := cast.ToInt(q.Get("direction"))
	text, idx := docs.Step(current, direction)
	apiOk(w, r, newDocView(docs, text, idx))
}
