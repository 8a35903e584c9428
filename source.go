package cqrs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// Envelope is what a Source extracts from raw bytes.
type Envelope struct {
	// Key names the message type. It is matched against keys passed to Bind.
	Key string

	// Payload is the JSON decoded into the bound message type.
	Payload json.RawMessage

	// Replier sends the outcome back to the caller. Fire-and-forget sources
	// leave it nil.
	//
	// When Replier is set:
	//   - On success: the result of Send is marshaled and passed to Reply.
	//     Events, and messages skipped by a hook, reply with {}.
	//   - On error: the error is passed to Fail.
	Replier Replier
}

// Replier sends responses back to the message originator.
// Implement this for request-response transports.
type Replier interface {
	// Reply sends a successful response with the given JSON payload.
	Reply(ctx context.Context, result json.RawMessage) error

	// Fail sends a failure response with the given error.
	Fail(ctx context.Context, err error) error
}

// Source understands one wire format of incoming messages.
//
// Example:
//
//	type snsSource struct{}
//
//	func (snsSource) Name() string { return "sns" }
//
//	func (snsSource) Discriminator() cqrs.Discriminator {
//	    return cqrs.And(cqrs.FieldEquals("Type", "Notification"), cqrs.HasFields("Message"))
//	}
//
//	func (snsSource) Parse(raw []byte) (cqrs.Envelope, error) { ... }
type Source interface {
	// Name identifies the source in logs and errors.
	Name() string

	// Discriminator is checked before Parse.
	Discriminator() Discriminator

	// Parse extracts the envelope.
	Parse(raw []byte) (Envelope, error)
}

// SourceFunc builds a Source from its parts.
func SourceFunc(name string, disc Discriminator, parse func([]byte) (Envelope, error)) Source {
	return &sourceFunc{name: name, disc: disc, parse: parse}
}

type sourceFunc struct {
	name  string
	disc  Discriminator
	parse func([]byte) (Envelope, error)
}

func (s *sourceFunc) Name() string                       { return s.name }
func (s *sourceFunc) Discriminator() Discriminator       { return s.disc }
func (s *sourceFunc) Parse(raw []byte) (Envelope, error) { return s.parse(raw) }

// EnvelopeSource reads messages shaped as
//
//	{"<keyPath>": "CreateOrder", "<payloadPath>": {...}}
//
// where both paths are gjson paths.
func EnvelopeSource(name, keyPath, payloadPath string) Source {
	return SourceFunc(name, HasFields(keyPath, payloadPath), func(raw []byte) (Envelope, error) {
		key := gjson.GetBytes(raw, keyPath)
		if key.Type != gjson.String || key.Str == "" {
			return Envelope{}, fmt.Errorf("%s: %q must be a non-empty string", name, keyPath)
		}
		payload := gjson.GetBytes(raw, payloadPath)
		if !payload.Exists() {
			return Envelope{}, fmt.Errorf("%s: missing %q", name, payloadPath)
		}
		return Envelope{Key: key.Str, Payload: json.RawMessage(payload.Raw)}, nil
	})
}
