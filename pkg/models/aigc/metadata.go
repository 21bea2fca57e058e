package aigc

// ToolMessage is one reference attached by the agent to its answer
type ToolMessage struct {
	Source    string `json:"source"`
	Image     string `json:"image"`
	VideoName string `json:"video_name"`
	VideoDate string `json:"video_date"`
	VideoLen  any    `json:"video_len"` // seconds, string or number
}

// Metadata is the payload of a metadata event
type Metadata struct {
	ToolMessages []ToolMessage `json:"tool_messages"`
}
