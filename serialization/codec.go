package serialization

import (
	"errors"
)

// Content types of the built-in codecs
const (
	ContentTypeGob  = "application/x-gob"
	ContentTypeJSON = "application/json"
)

var (
	// ErrUnknownContentType is returned when no codec is registered for a content type
	ErrUnknownContentType = errors.New("serialization: unknown content type")
)

// Codec turns request and reply values into message bodies and back.
// Decode(Encode(v)) must be structurally equal to v for every value the
// codec supports.
type Codec interface {
	// ContentType is stamped on published replies
	ContentType() string

	// Encode serializes a value
	Encode(v any) ([]byte, error)

	// Decode deserializes a message body
	Decode(data []byte) (any, error)
}
