// Package protocol implements the wire envelope and framing used by the
// coordinator and its workers: a 4-byte big-endian length prefix followed by a
// JSON-encoded envelope, acknowledged with a 3- or 4-byte ACK/NACK frame.
package protocol

import (
	"encoding/base64"
	"encoding/json"
)

// Topic names the logical kind of an Envelope. Topics are case-sensitive and
// fixed by the dialog each party is expected to follow (see internal/core).
type Topic string

const (
	TopicHi                 Topic = "Hi"
	TopicSetup              Topic = "setup"
	TopicClientID            Topic = "Client Id"
	TopicClassRegister       Topic = "Class Register"
	TopicModelsCount         Topic = "Models Count"
	TopicPickle              Topic = "Pickle"
	TopicLoadBalancing       Topic = "Load Balancing"
	TopicStaticImagesCount   Topic = "Static Images Count"
	TopicStaticImage         Topic = "Static Image"
	TopicDynamicTask         Topic = "Dynamic Task"
	TopicProcessedData       Topic = "Processed Data"
)

// FilePayload carries an opaque byte blob alongside its filename. On the wire
// it is a JSON object with a base64-encoded "file" field, matching the
// original `{"file": "<base64>", "filename": "..."}` shape exactly.
type FilePayload struct {
	Filename string `json:"filename"`
	File     []byte `json:"file"`
}

// MarshalJSON renders File as base64, matching the wire contract.
func (f FilePayload) MarshalJSON() ([]byte, error) {
	type wire struct {
		File     string `json:"file"`
		Filename string `json:"filename"`
	}
	return json.Marshal(wire{
		File:     base64.StdEncoding.EncodeToString(f.File),
		Filename: f.Filename,
	})
}

// UnmarshalJSON decodes a base64 "file" field back into raw bytes.
func (f *FilePayload) UnmarshalJSON(data []byte) error {
	var wire struct {
		File     string `json:"file"`
		Filename string `json:"filename"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	raw, err := base64.StdEncoding.DecodeString(wire.File)
	if err != nil {
		return err
	}
	f.File = raw
	f.Filename = wire.Filename
	return nil
}

// Envelope is the single message type exchanged over a connection. Exactly one
// Envelope travels per frame.
type Envelope struct {
	Topic     Topic        `json:"topic"`
	Timestamp string       `json:"timestamp"`
	Message   string       `json:"message,omitempty"`
	Data      *FilePayload `json:"data,omitempty"`
}

// Encode serializes the envelope to its wire JSON form.
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses wire JSON into an Envelope.
func Decode(data []byte) (Envelope, error) {
	var e Envelope
	err := json.Unmarshal(data, &e)
	return e, err
}
