package client

import (
	"context"

	"github.com/animkit/animkit/pkg/commandqueue"
	"github.com/animkit/animkit/pkg/pending"
	"github.com/animkit/animkit/pkg/protocol"
)

// AudioService decodes and deletes audio clips. Deletion is not confirmed.
type AudioService struct {
	*base
	q commandqueue.AudioCommands

	decoded *pending.Map[protocol.Handle]
}

var _ commandqueue.AudioListener = (*AudioService)(nil)

func newAudioService(q commandqueue.AudioCommands, b *base) *AudioService {
	return &AudioService{base: b, q: q, decoded: pending.NewMap[protocol.Handle]()}
}

func (s *AudioService) DecodeAudio(ctx context.Context, data []byte) (protocol.Handle, error) {
	return call(ctx, s.base, s.q, s.decoded, operation{name: "audio.decode", kind: protocol.KindAudio},
		func(id protocol.RequestID) { s.q.DecodeAudio(data, s, id) })
}

func (s *AudioService) DeleteAudio(audio protocol.Handle) error {
	return fire(s.base, s.q, func(id protocol.RequestID) { s.q.DeleteAudio(audio, id) })
}

func (s *AudioService) release(audio protocol.Handle) {
	s.post("audio release", func() { s.q.DeleteAudio(audio, s.q.NextRequestID()) })
}

func (s *AudioService) OnAudioDecoded(audio protocol.Handle, id protocol.RequestID) {
	s.post("audio decoded", func() {
		s.settled(s.decoded.Resolve(id, audio), protocol.KindAudio, audio, id, "audio decoded")
	})
}

func (s *AudioService) OnAudioError(audio protocol.Handle, id protocol.RequestID, message string) {
	s.post("audio error", func() {
		if !s.decoded.Reject(id, &FailedDecodingError{Kind: protocol.KindAudio, Message: message}) {
			s.log.WithHandle(protocol.KindAudio, audio).WithRequestID(id).Warnf("audio error: %s", message)
		}
	})
}

// Audio is a decoded audio clip that files may reference.
type Audio struct {
	handle protocol.Handle
	deps   *Dependencies
	life   *lifetime
}

// NewAudio wraps an existing audio handle.
func NewAudio(h protocol.Handle, deps *Dependencies) *Audio {
	a := &Audio{handle: h, deps: deps}
	svc := deps.Audio
	a.life = newLifetime(a, func() { svc.release(h) })
	return a
}

func (a *Audio) Handle() protocol.Handle { return a.handle }

// Equal reports whether a and o refer to the same engine object.
func (a *Audio) Equal(o *Audio) bool {
	return o != nil && a.handle == o.handle
}

// Close deletes the clip. Later calls do nothing.
func (a *Audio) Close() error {
	a.life.close()
	return nil
}
