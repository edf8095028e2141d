package serialization

import (
	"fmt"
	"mime"
	"sort"
	"sync"
)

// Registry maps content types to codecs
type Registry struct {
	codecs map[string]Codec
	mu     sync.RWMutex
}

// NewRegistry creates a registry holding the given codecs
func NewRegistry(codecs ...Codec) *Registry {
	r := &Registry{
		codecs: make(map[string]Codec),
	}
	for _, c := range codecs {
		r.Register(c)
	}
	return r
}

// NewDefaultRegistry creates a registry with the gob and JSON codecs
func NewDefaultRegistry() *Registry {
	return NewRegistry(GobCodec{}, JSONCodec{})
}

// Register adds or replaces the codec for its content type
func (r *Registry) Register(codec Codec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codecs[normalize(codec.ContentType())] = codec
}

// Get returns the codec registered for contentType. Media type parameters
// such as charset are ignored.
func (r *Registry) Get(contentType string) (Codec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	codec, exists := r.codecs[normalize(contentType)]
	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrUnknownContentType, contentType)
	}
	return codec, nil
}

// Lookup returns the codec for contentType, or fallback when the content
// type is empty or not registered.
func (r *Registry) Lookup(contentType string, fallback Codec) Codec {
	if contentType == "" {
		return fallback
	}
	codec, err := r.Get(contentType)
	if err != nil {
		return fallback
	}
	return codec
}

// ContentTypes returns all registered content types, sorted
func (r *Registry) ContentTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.codecs))
	for contentType := range r.codecs {
		types = append(types, contentType)
	}
	sort.Strings(types)
	return types
}

// ByName resolves the short codec names used in configuration
func ByName(name string) (Codec, error) {
	switch name {
	case "", "gob":
		return GobCodec{}, nil
	case "json":
		return JSONCodec{}, nil
	}
	return nil, fmt.Errorf("%w: codec %q", ErrUnknownContentType, name)
}

func normalize(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return contentType
	}
	return mediaType
}
