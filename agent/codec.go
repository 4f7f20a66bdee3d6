package agent

import (
	"bytes"
	"encoding/json"
	"mime"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec defines the body serialization used between the orchestrator and
// agent services.
type Codec interface {
	// Marshal serializes v.
	Marshal(v any) ([]byte, error)

	// Unmarshal deserializes data into v.
	Unmarshal(data []byte, v any) error

	// Name returns the codec identifier ("json" or "msgpack").
	Name() string

	// ContentType returns the HTTP media type of encoded bodies.
	ContentType() string
}

// Codec names for format negotiation.
const (
	CodecNameJSON    = "json"
	CodecNameMsgpack = "msgpack"
)

// Media types sent in Content-Type and Accept headers.
const (
	ContentTypeJSON    = "application/json"
	ContentTypeMsgpack = "application/msgpack"
)

// GetCodec returns a codec by name. Defaults to JSON.
func GetCodec(name string) Codec {
	switch name {
	case CodecNameMsgpack:
		return MsgpackCodec{}
	default:
		return JSONCodec{}
	}
}

// CodecForContentType returns the codec for a Content-Type or Accept value.
// Unknown or empty media types fall back to JSON.
func CodecForContentType(contentType string) Codec {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return JSONCodec{}
	}
	switch mt {
	case ContentTypeMsgpack, "application/x-msgpack":
		return MsgpackCodec{}
	default:
		return JSONCodec{}
	}
}

// JSONCodec encodes bodies as JSON.
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (JSONCodec) Name() string { return CodecNameJSON }

func (JSONCodec) ContentType() string { return ContentTypeJSON }

// MsgpackCodec encodes bodies as MessagePack. Field names follow the json
// struct tags so both codecs share one wire schema.
type MsgpackCodec struct{}

func (MsgpackCodec) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (MsgpackCodec) Unmarshal(data []byte, v any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	return dec.Decode(v)
}

func (MsgpackCodec) Name() string { return CodecNameMsgpack }

func (MsgpackCodec) ContentType() string { return ContentTypeMsgpack }
