package aigc

import (
	"encoding/json"
	"time"
)

// Docs holds the documents of the latest search, by source
type Docs struct {
	Milvus   []string `json:"milvus,omitempty"`
	BM25     []string `json:"bm25,omitempty"`
	Reranked []string `json:"reranked,omitempty"`
}

// Session is the server side state of one user
type Session struct {
	ID      string   `json:"id"`
	History Messages `json:"history"`
	Company string   `json:"company,omitempty"`
	Model   string   `json:"model,omitempty"`
	Docs    Docs     `json:"docs"`
	Updated int64    `json:"updated"`
}

// NewSession ...
func NewSession(id string) *Session {
	return &Session{ID: id, History: Messages{}}
}

// Reset drops history and selections but keeps the id
func (z *Session) Reset() {
	*z = Session{ID: z.ID, History: Messages{}}
}

// AddTurn appends a turn and touches the session
func (z *Session) AddTurn(role, content string) {
	z.History = z.History.Append(role, content)
	z.Updated = time.Now().Unix()
}

// MarshalBinary implements the encoding.BinaryMarshaler interface.
func (z *Session) MarshalBinary() (data []byte, err error) {
	data, err = json.Marshal(z)
	return
}

// UnmarshalBinary unmarshal a binary representation of itself. for redis result.Scan
func (z *Session) UnmarshalBinary(data []byte) error {
	var t Session
	err := json.Unmarshal(data, &t)
	if err == nil {
		if t.History == nil {
			t.History = Messages{}
		}
		*z = t
	}
	return err
}
