package server

import (
	"fmt"

	"github.com/animkit/animkit/pkg/protocol"
)

func (s *Server) executeInstance(cmd *protocol.Command) ([]*protocol.Callback, error) {
	e := s.engine

	switch cmd.Type {
	case protocol.CommandCreateInstance:
		if err := e.CreateInstance(cmd.Handle, cmd.Parent, *cmd.Source); err != nil {
			return nil, err
		}
		s.created(protocol.KindViewModelInstance, cmd.Handle)
		return nil, nil

	case protocol.CommandReferenceNested:
		if err := e.ReferenceNested(cmd.Handle, cmd.Parent, cmd.Path); err != nil {
			return nil, err
		}
		s.created(protocol.KindViewModelInstance, cmd.Handle)
		return nil, nil

	case protocol.CommandReferenceListItem:
		if err := e.ReferenceListItem(cmd.Handle, cmd.Parent, cmd.Path, cmd.Index); err != nil {
			return nil, err
		}
		s.created(protocol.KindViewModelInstance, cmd.Handle)
		return nil, nil

	case protocol.CommandRequestInstanceName:
		name, err := e.InstanceName(cmd.Handle)
		if err != nil {
			return nil, err
		}
		cb := reply(cmd, protocol.CallbackInstanceNameReceived)
		cb.Instance = name
		return one(cb), nil

	case protocol.CommandRequestValue:
		v, err := e.Value(cmd.Handle, cmd.Path)
		if err != nil {
			return nil, err
		}
		return one(dataReceived(cmd.Handle, cmd.RequestID, cmd.Path, v)), nil

	case protocol.CommandSetValue:
		if cmd.Value == nil {
			return nil, fmt.Errorf("%s requires a value", cmd.Type)
		}
		if err := e.SetValue(cmd.Handle, cmd.Path, *cmd.Value); err != nil {
			return nil, err
		}
		return s.notify(cmd.Handle, cmd.Path), nil

	case protocol.CommandFireTrigger:
		if err := e.FireTrigger(cmd.Handle, cmd.Path); err != nil {
			return nil, err
		}
		return s.notify(cmd.Handle, cmd.Path), nil

	case protocol.CommandSetImage:
		return nil, e.SetImage(cmd.Handle, cmd.Path, cmd.Target)

	case protocol.CommandSetArtboard:
		return nil, e.SetArtboard(cmd.Handle, cmd.Path, cmd.Target)

	case protocol.CommandSetNestedInstance:
		return nil, e.SetNested(cmd.Handle, cmd.Path, cmd.Target)

	case protocol.CommandRequestListSize:
		size, err := e.ListSize(cmd.Handle, cmd.Path)
		if err != nil {
			return nil, err
		}
		cb := reply(cmd, protocol.CallbackListSizeReceived)
		cb.Path = cmd.Path
		cb.Size = size
		return one(cb), nil

	case protocol.CommandAppendListItem:
		return nil, e.AppendListItem(cmd.Handle, cmd.Path, cmd.Target)

	case protocol.CommandInsertListItem:
		return nil, e.InsertListItem(cmd.Handle, cmd.Path, cmd.Target, cmd.Index)

	case protocol.CommandRemoveListItem:
		return nil, e.RemoveListItem(cmd.Handle, cmd.Path, cmd.Index)

	case protocol.CommandSwapListItems:
		return nil, e.SwapListItems(cmd.Handle, cmd.Path, cmd.Index, cmd.Index2)

	case protocol.CommandSubscribe:
		// Resolve the path now so a bad subscription fails immediately.
		if _, err := e.Value(cmd.Handle, cmd.Path); err != nil {
			return nil, err
		}
		key := subscriptionKey{vmi: cmd.Handle, path: cmd.Path}
		s.subscriptions[key] = append(s.subscriptions[key], subscription{id: cmd.RequestID, dataType: cmd.DataType})
		return nil, nil

	case protocol.CommandUnsubscribe:
		// The request ID is the one the subscription was opened with.
		key := subscriptionKey{vmi: cmd.Handle, path: cmd.Path}
		kept := s.subscriptions[key][:0]
		for _, sub := range s.subscriptions[key] {
			if sub.id != cmd.RequestID || sub.dataType != cmd.DataType {
				kept = append(kept, sub)
			}
		}
		if len(kept) == 0 {
			delete(s.subscriptions, key)
		} else {
			s.subscriptions[key] = kept
		}
		return nil, nil

	case protocol.CommandDeleteInstance:
		if err := e.DeleteInstance(cmd.Handle); err != nil {
			return nil, err
		}
		for key := range s.subscriptions {
			if key.vmi == cmd.Handle {
				delete(s.subscriptions, key)
			}
		}
		s.released(protocol.KindViewModelInstance, cmd.Handle)
		return nil, nil
	}

	return nil, fmt.Errorf("unsupported command type: %s", cmd.Type)
}

// notify answers every subscription on (vmi, path) with the current value.
func (s *Server) notify(vmi protocol.Handle, path string) []*protocol.Callback {
	subs := s.subscriptions[subscriptionKey{vmi: vmi, path: path}]
	if len(subs) == 0 {
		return nil
	}
	v, err := s.engine.Value(vmi, path)
	if err != nil {
		s.log.WithHandle(protocol.KindViewModelInstance, vmi).WithError(err).Warn("reading subscribed value")
		return nil
	}
	callbacks := make([]*protocol.Callback, 0, len(subs))
	for _, sub := range subs {
		callbacks = append(callbacks, dataReceived(vmi, sub.id, path, v))
	}
	return callbacks
}

func dataReceived(vmi protocol.Handle, id protocol.RequestID, path string, v protocol.Value) *protocol.Callback {
	return &protocol.Callback{
		Type:      protocol.CallbackViewModelDataReceived,
		RequestID: id,
		Handle:    vmi,
		Path:      path,
		Value:     &v,
	}
}
