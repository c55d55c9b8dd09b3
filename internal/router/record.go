package router

import (
	"time"

	"github.com/dshills/codeintel/internal/loop"
	"github.com/dshills/codeintel/internal/provider"
)

// Originator is the editor view a request came from. Only its identity is
// used; values must be comparable (typically pointers).
type Originator interface {
	HandleResponse(kind provider.Kind, body any)
}

// Closer is implemented by originators that can be torn down. A closed
// originator never receives a response.
type Closer interface {
	Closed() bool
}

// OriginatorFunc adapts a function to Originator. Function values are not
// comparable, so wrap them in a pointer: &OriginatorFunc{...}.
type OriginatorFunc struct {
	Fn func(kind provider.Kind, body any)
}

// HandleResponse implements Originator.
func (o *OriginatorFunc) HandleResponse(kind provider.Kind, body any) {
	o.Fn(kind, body)
}

type record struct {
	id         int64
	language   string
	kind       provider.Kind
	payload    provider.Payload
	originator Originator

	sources  map[string]any
	timedOut bool
	waitSet  map[string]struct{}
	sentTo   map[string]struct{}

	createdAt time.Time
	deadline  time.Time
	timer     loop.Timer
}

// waitingOn returns the effective wait set: the authoritative providers, or
// in fallback-only mode every provider the request was sent to.
func (r *record) waitingOn() map[string]struct{} {
	if len(r.waitSet) > 0 {
		return r.waitSet
	}
	return r.sentTo
}

func (r *record) allResponded() bool {
	for name := range r.waitingOn() {
		if _, ok := r.sources[name]; !ok {
			return false
		}
	}
	return true
}

func (r *record) anyNonEmpty() bool {
	for _, body := range r.sources {
		if !provider.IsEmpty(body) {
			return true
		}
	}
	return false
}

type latestKey struct {
	originator Originator
	kind       provider.Kind
}

// supersedable reports whether newer requests of kind replace older ones
// from the same originator.
func supersedable(kind provider.Kind) bool {
	return kind == provider.KindCompletion
}
