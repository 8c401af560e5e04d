package protocol

// HELLO (renderer -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name"`
	// Final asks for the shutdown batch to be delivered before the socket closes.
	Final bool `json:"final,omitempty"`
}

// WELCOME (server -> renderer)
type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	WorldID         string `json:"world_id"`
	ClientID        string `json:"client_id"`
	ChunkSize       int    `json:"chunk_size"`
	TickRateHz      int    `json:"tick_rate_hz"`
	Mode            string `json:"mode"`
	Tick            uint64 `json:"tick"`
}

// REBUILD (server -> renderer): chunks whose lighting geometry must be rebuilt.
// Each chunk appears once per message.
type RebuildMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	Tick            uint64   `json:"tick"`
	Chunks          [][3]int `json:"chunks"`
	Final           bool     `json:"final,omitempty"`
}

// MODE (renderer -> server): switch the lighting mode.
type ModeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Mode            string `json:"mode"`
}

// ERROR (server -> renderer)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}

func NewError(code, msg string) ErrorMsg {
	return ErrorMsg{Type: TypeError, ProtocolVersion: Version, Code: code, Message: msg}
}
