package wshost

import (
	jsoniter "github.com/json-iterator/go"
	"github.com/tidwall/gjson"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Message types.
const (
	// host → page
	TypePublish   = "publish"
	TypeUnpublish = "unpublish"
	TypeProperty  = "property"
	TypeResult    = "result"
	TypeSignal    = "signal"

	// page → host
	TypeCall       = "call"
	TypeConnect    = "connect"
	TypeDisconnect = "disconnect"
)

// Envelope is one websocket message in either direction.
type Envelope struct {
	Type       string                 `json:"type"`
	ID         string                 `json:"id,omitempty"`
	Object     string                 `json:"object,omitempty"`
	Method     string                 `json:"method,omitempty"`
	Signal     string                 `json:"signal,omitempty"`
	Args       []interface{}          `json:"args,omitempty"`
	Result     interface{}            `json:"result,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Properties map[string]interface{} `json:"properties,omitempty"`
	Signals    []string               `json:"signals,omitempty"`
}

// Encode marshals e.
func Encode(e *Envelope) ([]byte, error) {
	return json.Marshal(e)
}

// Decode unmarshals data.
func Decode(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// PeekType returns the message type without decoding the whole message.
func PeekType(data []byte) string {
	return gjson.GetBytes(data, "type").String()
}
