package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/eventsource"
	"github.com/marcsv/go-binder/binder"

	"github.com/liut/agrochat/pkg/models/aigc"
	"github.com/liut/agrochat/pkg/services/backend"
	"github.com/liut/agrochat/pkg/services/sources"
	"github.com/liut/agrochat/pkg/services/sse"
)

const (
	esDone         = "[DONE]"
	dftChatTimeout = time.Second * 120

	msgBackendFail = "backend is unavailable, please try again later"
)

var errEmptyMessage = errors.New("empty message")

// ChatRequest is a message from the chat page, History is optional widget state
type ChatRequest struct {
	Message string      `json:"message"`
	History []aigc.Pair `json:"history,omitempty"`
}

// ChatMessage is one frame sent back to the page
type ChatMessage struct {
	ID      string        `json:"id,omitempty"`
	Delta   string        `json:"delta,omitempty"`
	Text    string        `json:"text"`
	Sources *sources.Refs `json:"sources,omitempty"`
	Error   string        `json:"error,omitempty"`
	Done    bool          `json:"done,omitempty"`
}

type chatSink func(cm *ChatMessage) error

// chatTurn is a question on its way to the agent
type chatTurn struct {
	question string
	history  aigc.Messages // sent to the agent, ends with the question
	replaced bool          // history came from the client and replaces the stored one
}

// openChat builds the history with the user turn and opens the agent stream
func (s *server) openChat(ctx context.Context, sid string, param *ChatRequest) (*chatTurn, io.ReadCloser, error) {
	if len(strings.TrimSpace(param.Message)) == 0 {
		return nil, nil, errEmptyMessage
	}
	ct := &chatTurn{question: param.Message}
	if param.History != nil {
		ct.history = aigc.PairsToMessages(param.History)
		ct.replaced = true
	} else {
		sess, err := s.sto.Get(ctx, sid)
		if err != nil {
			return nil, nil, err
		}
		ct.history = sess.History.Clone()
	}
	ct.history = ct.history.Append(aigc.RoleUser, param.Message)
	logger().Infow("chat", "sid", sid, "turns", len(ct.history), "message", param.Message)

	body, err := s.be.Agent(ctx, backend.PathAgent, backend.AgentRequest{ChatHistory: ct.history})
	if err != nil {
		return nil, nil, err
	}
	return ct, body, nil
}

// relayChat pushes every delta to sink and stores the finished exchange
func (s *server) relayChat(ctx context.Context, sid string, ct *chatTurn, body io.ReadCloser, sink chatSink) (string, error) {
	defer body.Close()
	answer, err := sse.Consume(body, sse.Handler{
		OnDelta: func(delta, text string) error {
			return sink(&ChatMessage{ID: sid, Delta: delta, Text: text})
		},
		OnMetadata: func(md aigc.Metadata) error {
			refs := sources.Collect(md)
			if refs.Empty() {
				return nil
			}
			return sink(&ChatMessage{ID: sid, Sources: &refs})
		},
	})
	if err != nil {
		logger().Infow("chat stream fail", "sid", sid, "err", err)
		return answer, err
	}
	logger().Infow("chat stream done", "sid", sid, "answer", len(answer))

	// the stored history may have changed while streaming, only the new turns are appended
	_, err = s.sto.Update(ctx, sid, func(sess *aigc.Session) error {
		if ct.replaced {
			sess.History = ct.history.Clone()
		} else {
			sess.AddTurn(aigc.RoleUser, ct.question)
		}
		sess.AddTurn(aigc.RoleAssistant, answer)
		return nil
	})
	if err != nil {
		logger().Infow("save history fail", "sid", sid, "err", err)
	}
	return answer, nil
}

func (s *server) postChat(w http.ResponseWriter, r *http.Request) {
	var param ChatRequest
	if err := binder.BindBody(r, &param); err != nil {
		apiFail(w, r, 400, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported!", http.StatusInternalServerError)
		return
	}
	sid := s.sessionID(w, r)

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ChatTimeout)
	defer cancel()

	ct, body, err := s.openChat(ctx, sid, &param)
	if err != nil {
		if errors.Is(err, errEmptyMessage) {
			apiFail(w, r, 400, err)
			return
		}
		logger().Infow("call agent fail", "sid", sid, "err", err)
		apiFail(w, r, 502, msgBackendFail)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Add(headerSession, sid)

	var idx int
	sink := func(cm *ChatMessage) error {
		idx++
		if !writeEvent(w, strconv.Itoa(idx), cm) {
			return errClientGone
		}
		flusher.Flush()
		return nil
	}
	answer, err := s.relayChat(ctx, sid, ct, body, sink)
	if err != nil {
		if !errors.Is(err, errClientGone) {
			_ = sink(&ChatMessage{ID: sid, Text: answer, Error: msgBackendFail})
		}
		return
	}
	idx++
	_ = writeEvent(w, strconv.Itoa(idx), esDone)
	flusher.Flush()
}

var errClientGone = errors.New("client gone")

// writeEvent write and auto flush
func writeEvent(w io.Writer, id string, m any) bool {
	var b []byte
	var err error
	if s, ok := m.(string); ok {
		b = []byte(s)
	} else {
		b, err = json.Marshal(m)
		if err != nil {
			logger().Infow("json marshal fail", "m", m, "err", err)
			return false
		}
	}

	if err = eventsource.WriteEvent(w, eventsource.Event{
		ID:   id,
		Data: b,
	}); err != nil {
		logger().Infow("eventsource write fail", "err", err)
		return false
	}

	return true
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// chatSocket serves the same chat over a websocket, one request frame per message
func (s *server) chatSocket(w http.ResponseWriter, r *http.Request) {
	sid := s.sessionID(w, r)
	rh := http.Header{headerSession: []string{sid}}
	if v := w.Header().Values("Set-Cookie"); len(v) > 0 {
		rh["Set-Cookie"] = v
	}
	conn, err := upgrader.Upgrade(w, r, rh)
	if err != nil {
		logger().Infow("websocket upgrade fail", "err", err)
		return
	}
	defer conn.Close()

	sink := func(cm *ChatMessage) error {
		return conn.WriteJSON(cm)
	}
	for {
		var param ChatRequest
		if err = conn.ReadJSON(&param); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger().Infow("websocket read fail", "sid", sid, "err", err)
			}
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ChatTimeout)
		ct, body, err := s.openChat(ctx, sid, &param)
		if err != nil {
			cancel()
			msg := msgBackendFail
			if errors.Is(err, errEmptyMessage) {
				msg = err.Error()
			}
			if err = sink(&ChatMessage{ID: sid, Error: msg, Done: true}); err != nil {
				return
			}
			continue
		}
		answer, err := s.relayChat(ctx, sid, ct, body, sink)
		cancel()
		cm := &ChatMessage{ID: sid, Text: answer, Done: true}
		if err != nil {
			cm.Error = msgBackendFail
		}
		if err = sink(cm); err != nil {
			return
		}
	}
}

func (s *server) deleteSession(w http.ResponseWriter, r *http.Request) {
	sid := s.sessionID(w, r)
	if err := s.sto.Reset(r.Context(), sid); err != nil {
		apiFail(w, r, 503, err)
		return
	}
	apiOk(w, r, M{"id": sid})
}
