package client

import (
	"context"

	"github.com/animkit/animkit/pkg/commandqueue"
	"github.com/animkit/animkit/pkg/pending"
	"github.com/animkit/animkit/pkg/protocol"
)

// FontService decodes and deletes fonts. Deletion is not confirmed.
type FontService struct {
	*base
	q commandqueue.FontCommands

	decoded *pending.Map[protocol.Handle]
}

var _ commandqueue.FontListener = (*FontService)(nil)

func newFontService(q commandqueue.FontCommands, b *base) *FontService {
	return &FontService{base: b, q: q, decoded: pending.NewMap[protocol.Handle]()}
}

// DecodeFont decodes a TrueType or OpenType font and returns its handle.
func (s *FontService) DecodeFont(ctx context.Context, data []byte) (protocol.Handle, error) {
	return call(ctx, s.base, s.q, s.decoded, operation{name: "font.decode", kind: protocol.KindFont},
		func(id protocol.RequestID) { s.q.DecodeFont(data, s, id) })
}

func (s *FontService) DeleteFont(font protocol.Handle) error {
	return fire(s.base, s.q, func(id protocol.RequestID) { s.q.DeleteFont(font, id) })
}

func (s *FontService) release(font protocol.Handle) {
	s.post("font release", func() { s.q.DeleteFont(font, s.q.NextRequestID()) })
}

func (s *FontService) OnFontDecoded(font protocol.Handle, id protocol.RequestID) {
	s.post("font decoded", func() {
		s.settled(s.decoded.Resolve(id, font), protocol.KindFont, font, id, "font decoded")
	})
}

func (s *FontService) OnFontError(font protocol.Handle, id protocol.RequestID, message string) {
	s.post("font error", func() {
		if !s.decoded.Reject(id, &FailedDecodingError{Kind: protocol.KindFont, Message: message}) {
			s.log.WithHandle(protocol.KindFont, font).WithRequestID(id).Warnf("font error: %s", message)
		}
	})
}

// Font is a decoded font that files may reference.
type Font struct {
	handle protocol.Handle
	deps   *Dependencies
	life   *lifetime
}

// NewFont wraps an existing font handle.
func NewFont(h protocol.Handle, deps *Dependencies) *Font {
	f := &Font{handle: h, deps: deps}
	svc := deps.Fonts
	f.life = newLifetime(f, func() { svc.release(h) })
	return f
}

func (f *Font) Handle() protocol.Handle { return f.handle }

// Equal reports whether f and o refer to the same engine object.
func (f *Font) Equal(o *Font) bool {
	return o != nil && f.handle == o.handle
}

// Close deletes the font. Later calls do nothing.
func (f *Font) Close() error {
	f.life.close()
	return nil
}
