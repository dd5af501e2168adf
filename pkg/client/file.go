package client

import (
	"context"

	"github.com/animkit/animkit/pkg/commandqueue"
	"github.com/animkit/animkit/pkg/pending"
	"github.com/animkit/animkit/pkg/protocol"
)

// FileService loads files and answers questions about their contents.
type FileService struct {
	*base
	q commandqueue.FileCommands

	loaded  *pending.Map[protocol.Handle]
	deleted *pending.Map[struct{}]
	names   *pending.Map[[]string]
	props   *pending.Map[[]protocol.PropertyInfo]
	enums   *pending.Map[[]protocol.EnumInfo]
}

var _ commandqueue.FileListener = (*FileService)(nil)

func newFileService(q commandqueue.FileCommands, b *base) *FileService {
	return &FileService{
		base:    b,
		q:       q,
		loaded:  pending.NewMap[protocol.Handle](),
		deleted: pending.NewMap[struct{}](),
		names:   pending.NewMap[[]string](),
		props:   pending.NewMap[[]protocol.PropertyInfo](),
		enums:   pending.NewMap[[]protocol.EnumInfo](),
	}
}

// LoadFile loads a scene file and returns its handle. A file the engine
// rejects fails with *InvalidFileError.
func (s *FileService) LoadFile(ctx context.Context, data []byte) (protocol.Handle, error) {
	return call(ctx, s.base, s.q, s.loaded, operation{name: "file.load", kind: protocol.KindFile},
		func(id protocol.RequestID) { s.q.LoadFile(data, s, id) })
}

func (s *FileService) ArtboardNames(ctx context.Context, file protocol.Handle) ([]string, error) {
	return call(ctx, s.base, s.q, s.names, operation{"file.artboard_names", protocol.KindFile, file},
		func(id protocol.RequestID) { s.q.RequestArtboardNames(file, id) })
}

func (s *FileService) ViewModelNames(ctx context.Context, file protocol.Handle) ([]string, error) {
	return call(ctx, s.base, s.q, s.names, operation{"file.view_model_names", protocol.KindFile, file},
		func(id protocol.RequestID) { s.q.RequestViewModelNames(file, id) })
}

func (s *FileService) ViewModelInstanceNames(ctx context.Context, file protocol.Handle, viewModel string) ([]string, error) {
	return call(ctx, s.base, s.q, s.names, operation{"file.instance_names", protocol.KindFile, file},
		func(id protocol.RequestID) { s.q.RequestViewModelInstanceNames(file, viewModel, id) })
}

func (s *FileService) ViewModelProperties(ctx context.Context, file protocol.Handle, viewModel string) ([]protocol.PropertyInfo, error) {
	return call(ctx, s.base, s.q, s.props, operation{"file.properties", protocol.KindFile, file},
		func(id protocol.RequestID) { s.q.RequestViewModelPropertyDefinitions(file, viewModel, id) })
}

func (s *FileService) ViewModelEnums(ctx context.Context, file protocol.Handle) ([]protocol.EnumInfo, error) {
	return call(ctx, s.base, s.q, s.enums, operation{"file.enums", protocol.KindFile, file},
		func(id protocol.RequestID) { s.q.RequestViewModelEnums(file, id) })
}

// DeleteFile deletes file and waits for the engine to confirm. The listener
// registration is removed once the delete is confirmed.
func (s *FileService) DeleteFile(ctx context.Context, file protocol.Handle) error {
	_, err := await(ctx, s.base, operation{"file.delete", protocol.KindFile, file},
		func() <-chan pending.Result[struct{}] { return s.issueDelete(file) })
	return err
}

// DeleteFileListener stops routing callbacks for file.
func (s *FileService) DeleteFileListener(file protocol.Handle) error {
	return s.exec.Sync(func() { s.q.DeleteFileListener(file) })
}

// issueDelete must run on the executor.
func (s *FileService) issueDelete(file protocol.Handle) <-chan pending.Result[struct{}] {
	id := s.q.NextRequestID()
	ch := then(s.deleted, id, func() { s.q.DeleteFileListener(file) })
	s.q.DeleteFile(file, id)
	return ch
}

func (s *FileService) release(file protocol.Handle) {
	s.post("file release", func() { s.issueDelete(file) })
}

func (s *FileService) OnFileLoaded(file protocol.Handle, id protocol.RequestID) {
	s.post("file loaded", func() {
		s.settled(s.loaded.Resolve(id, file), protocol.KindFile, file, id, "file loaded")
	})
}

func (s *FileService) OnFileDeleted(file protocol.Handle, id protocol.RequestID) {
	s.post("file deleted", func() {
		s.settled(s.deleted.Resolve(id, struct{}{}), protocol.KindFile, file, id, "file deleted")
	})
}

func (s *FileService) OnFileError(file protocol.Handle, id protocol.RequestID, message string) {
	s.post("file error", func() {
		if s.loaded.Reject(id, &InvalidFileError{Message: message}) {
			return
		}
		err := &CommandError{Kind: protocol.KindFile, Handle: file, Message: message}
		ok := rejectAny(id, err, s.deleted.Reject, s.names.Reject, s.props.Reject, s.enums.Reject)
		if !ok {
			s.log.WithHandle(protocol.KindFile, file).WithRequestID(id).Warnf("file error: %s", message)
		}
	})
}

func (s *FileService) OnArtboardsListed(file protocol.Handle, id protocol.RequestID, names []string) {
	s.post("artboards listed", func() {
		s.settled(s.names.Resolve(id, names), protocol.KindFile, file, id, "artboards listed")
	})
}

func (s *FileService) OnViewModelsListed(file protocol.Handle, id protocol.RequestID, names []string) {
	s.post("view models listed", func() {
		s.settled(s.names.Resolve(id, names), protocol.KindFile, file, id, "view models listed")
	})
}

func (s *FileService) OnViewModelInstanceNamesListed(file protocol.Handle, id protocol.RequestID, _ string, names []string) {
	s.post("instance names listed", func() {
		s.settled(s.names.Resolve(id, names), protocol.KindFile, file, id, "instance names listed")
	})
}

func (s *FileService) OnViewModelPropertiesListed(file protocol.Handle, id protocol.RequestID, _ string, props []protocol.PropertyInfo) {
	s.post("properties listed", func() {
		s.settled(s.props.Resolve(id, props), protocol.KindFile, file, id, "properties listed")
	})
}

func (s *FileService) OnViewModelEnumsListed(file protocol.Handle, id protocol.RequestID, enums []protocol.EnumInfo) {
	s.post("enums listed", func() {
		s.settled(s.enums.Resolve(id, enums), protocol.KindFile, file, id, "enums listed")
	})
}

// File is a loaded scene file. It is deleted on Close or once unreachable.
type File struct {
	handle protocol.Handle
	deps   *Dependencies
	life   *lifetime
}

// NewFile wraps an existing file handle.
func NewFile(h protocol.Handle, deps *Dependencies) *File {
	f := &File{handle: h, deps: deps}
	svc := deps.Files
	f.life = newLifetime(f, func() { svc.release(h) })
	return f
}

func (f *File) Handle() protocol.Handle { return f.handle }

// Equal reports whether f and o refer to the same engine object.
func (f *File) Equal(o *File) bool {
	return o != nil && f.handle == o.handle
}

// Close deletes the file. Later calls do nothing.
func (f *File) Close() error {
	f.life.close()
	return nil
}

func (f *File) ArtboardNames(ctx context.Context) ([]string, error) {
	return f.deps.Files.ArtboardNames(ctx, f.handle)
}

func (f *File) ViewModelNames(ctx context.Context) ([]string, error) {
	return f.deps.Files.ViewModelNames(ctx, f.handle)
}

func (f *File) ViewModelInstanceNames(ctx context.Context, viewModel string) ([]string, error) {
	return f.deps.Files.ViewModelInstanceNames(ctx, f.handle, viewModel)
}

func (f *File) ViewModelProperties(ctx context.Context, viewModel string) ([]protocol.PropertyInfo, error) {
	return f.deps.Files.ViewModelProperties(ctx, f.handle, viewModel)
}

func (f *File) ViewModelEnums(ctx context.Context) ([]protocol.EnumInfo, error) {
	return f.deps.Files.ViewModelEnums(ctx, f.handle)
}

// CreateArtboard instantiates the named artboard, or the default artboard
// when name is empty. A name the file does not contain fails with
// *InvalidArtboardError before anything is created.
func (f *File) CreateArtboard(ctx context.Context, name string) (*Artboard, error) {
	if name != "" {
		names, err := f.ArtboardNames(ctx)
		if err != nil {
			return nil, err
		}
		if !contains(names, name) {
			return nil, &InvalidArtboardError{Name: name}
		}
	}
	h, err := f.deps.Artboards.CreateArtboard(name, f.handle)
	if err != nil {
		return nil, err
	}
	return NewArtboard(h, f.handle, f.deps), nil
}

// CreateViewModelInstance creates an instance from src. View model and
// instance names are checked against the file first.
func (f *File) CreateViewModelInstance(ctx context.Context, src protocol.InstanceSource) (*ViewModelInstance, error) {
	return createViewModelInstance(ctx, f.deps, f.handle, src)
}

func createViewModelInstance(ctx context.Context, deps *Dependencies, file protocol.Handle, src protocol.InstanceSource) (*ViewModelInstance, error) {
	viewModel := src.ViewModel
	switch {
	case src.Artboard != protocol.InvalidHandle && src.Mode == protocol.InstanceNamed:
		info, err := deps.Artboards.DefaultViewModelInfo(ctx, src.Artboard, file)
		if err != nil {
			return nil, err
		}
		viewModel = info.ViewModel
	case src.Artboard == protocol.InvalidHandle:
		names, err := deps.Files.ViewModelNames(ctx, file)
		if err != nil {
			return nil, err
		}
		if !contains(names, viewModel) {
			return nil, &InvalidViewModelError{Name: viewModel}
		}
	}

	if src.Mode == protocol.InstanceNamed {
		names, err := deps.Files.ViewModelInstanceNames(ctx, file, viewModel)
		if err != nil {
			return nil, err
		}
		if !contains(names, src.Instance) {
			return nil, &InvalidViewModelInstanceError{Name: src.Instance}
		}
	}

	h, err := deps.Instances.create(file, src)
	if err != nil {
		return nil, err
	}
	return NewViewModelInstance(h, deps), nil
}
