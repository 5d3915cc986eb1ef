package bridge

import (
	"encoding/json"
	"fmt"
)

// Inbound events (client → bridge)
const (
	EventFileUpdate             = "file-update"
	EventRequestFolderStructure = "request-folder-structure"
	EventRestartNodemon         = "restart-nodemon"
	EventStopNodemon            = "stop-nodemon"
	EventGoToProject            = "go-to-project"
	EventServe                  = "serve"
	EventDev                    = "dev"
	EventBuild                  = "build"
	EventClean                  = "clean"
	EventCreate                 = "create"
	EventDisconnect             = "disconnect"
)

// Outbound events (bridge → client)
const (
	EventCwd              = "cwd"
	EventFileList         = "fileList"
	EventError            = "error"
	EventFileSaved        = "file-saved"
	EventFileUpdateError  = "file-update-error"
	EventCreateSuccess    = "create-success"
	EventCreateError      = "create-error"
	EventNodemonRestarted = "nodemon-restarted"
	EventNodemonStopped   = "nodemon-stopped"
	EventCommandExited    = "command-exited"
)

// Messages carried by error events
const (
	MsgFolderStructure        = "Could not read folder structure"
	MsgProjectFolderStructure = "Could not read folder structure of the project."
	MsgNodemonRestarted       = "Nodemon has been restarted."
	MsgNodemonStopped         = "Nodemon has been stopped."
)

// Envelope is one frame on the event channel, in both directions
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope encodes data as the payload of event
func NewEnvelope(event string, data any) (Envelope, error) {
	if data == nil {
		return Envelope{Event: event}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", event, err)
	}
	return Envelope{Event: event, Data: raw}, nil
}

// Decode unmarshals the payload into v
func (e Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%s: %w: missing data", e.Event, ErrMalformedPayload)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("%s: %w: %v", e.Event, ErrMalformedPayload, err)
	}
	return nil
}

// DecodeOptionalString reads a string payload; a missing or null payload is the empty string
func (e Envelope) DecodeOptionalString() (string, error) {
	if len(e.Data) == 0 || string(e.Data) == "null" {
		return "", nil
	}
	var s string
	if err := e.Decode(&s); err != nil {
		return "", err
	}
	return s, nil
}

// FileUpdate is the payload of file-update
type FileUpdate struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// FileUpdateError is the payload of file-update-error
type FileUpdateError struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// CommandExited is the payload of command-exited
type CommandExited struct {
	Command  string `json:"command"`
	Dir      string `json:"dir"`
	ExitCode int    `json:"exitCode"`
	Error    string `json:"error,omitempty"`
}

// Emitter delivers outbound events to the connected client
type Emitter interface {
	Emit(event string, data any)
}

// EmitterFunc adapts a function to the Emitter interface
type EmitterFunc func(event string, data any)

func (f EmitterFunc) Emit(event string, data any) {
	f(event, data)
}
