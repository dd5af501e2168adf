package client

import (
	"context"

	"github.com/animkit/animkit/pkg/commandqueue"
	"github.com/animkit/animkit/pkg/pending"
	"github.com/animkit/animkit/pkg/protocol"
)

// ImageService decodes and deletes images.
type ImageService struct {
	*base
	q commandqueue.ImageCommands

	decoded *pending.Map[protocol.Handle]
	deleted *pending.Map[struct{}]
}

var _ commandqueue.ImageListener = (*ImageService)(nil)

func newImageService(q commandqueue.ImageCommands, b *base) *ImageService {
	return &ImageService{
		base:    b,
		q:       q,
		decoded: pending.NewMap[protocol.Handle](),
		deleted: pending.NewMap[struct{}](),
	}
}

// DecodeImage decodes an encoded image and returns its handle. Data the
// engine cannot decode fails with *FailedDecodingError.
func (s *ImageService) DecodeImage(ctx context.Context, data []byte) (protocol.Handle, error) {
	return call(ctx, s.base, s.q, s.decoded, operation{name: "image.decode", kind: protocol.KindImage},
		func(id protocol.RequestID) { s.q.DecodeImage(data, s, id) })
}

// DeleteImage deletes image and waits for the engine to confirm. The
// listener registration is removed once the delete is confirmed.
func (s *ImageService) DeleteImage(ctx context.Context, image protocol.Handle) error {
	_, err := await(ctx, s.base, operation{"image.delete", protocol.KindImage, image},
		func() <-chan pending.Result[struct{}] { return s.issueDelete(image) })
	return err
}

func (s *ImageService) DeleteImageListener(image protocol.Handle) error {
	return s.exec.Sync(func() { s.q.DeleteImageListener(image) })
}

func (s *ImageService) issueDelete(image protocol.Handle) <-chan pending.Result[struct{}] {
	id := s.q.NextRequestID()
	ch := then(s.deleted, id, func() { s.q.DeleteImageListener(image) })
	s.q.DeleteImage(image, id)
	return ch
}

func (s *ImageService) release(image protocol.Handle) {
	s.post("image release", func() { s.issueDelete(image) })
}

func (s *ImageService) OnImageDecoded(image protocol.Handle, id protocol.RequestID) {
	s.post("image decoded", func() {
		s.settled(s.decoded.Resolve(id, image), protocol.KindImage, image, id, "image decoded")
	})
}

func (s *ImageService) OnImageDeleted(image protocol.Handle, id protocol.RequestID) {
	s.post("image deleted", func() {
		s.settled(s.deleted.Resolve(id, struct{}{}), protocol.KindImage, image, id, "image deleted")
	})
}

func (s *ImageService) OnImageError(image protocol.Handle, id protocol.RequestID, message string) {
	s.post("image error", func() {
		if s.decoded.Reject(id, &FailedDecodingError{Kind: protocol.KindImage, Message: message}) {
			return
		}
		err := &CommandError{Kind: protocol.KindImage, Handle: image, Message: message}
		if !s.deleted.Reject(id, err) {
			s.log.WithHandle(protocol.KindImage, image).WithRequestID(id).Warnf("image error: %s", message)
		}
	})
}

// Image is a decoded image that files may reference.
type Image struct {
	handle protocol.Handle
	deps   *Dependencies
	life   *lifetime
}

// NewImage wraps an existing image handle.
func NewImage(h protocol.Handle, deps *Dependencies) *Image {
	img := &Image{handle: h, deps: deps}
	svc := deps.Images
	img.life = newLifetime(img, func() { svc.release(h) })
	return img
}

func (img *Image) Handle() protocol.Handle { return img.handle }

// Equal reports whether img and o refer to the same engine object.
func (img *Image) Equal(o *Image) bool {
	return o != nil && img.handle == o.handle
}

// Close deletes the image. Later calls do nothing.
func (img *Image) Close() error {
	img.life.close()
	return nil
}
