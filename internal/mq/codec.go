package mq

import (
	"fmt"

	"github.com/shaiso/Downloader/internal/domain"
)

// CommandPayload — payload сообщений ENQUEUE, CANCEL, CANCEL_ALL.
type CommandPayload struct {
	Request *domain.Request `json:"request,omitempty"`
	ID      string          `json:"id,omitempty"`
}

// ResultPayload — payload сообщения с финальным результатом.
type ResultPayload struct {
	Kind    domain.ResultKind `json:"kind"`
	Request domain.Request    `json:"request"`
	Error   string            `json:"error,omitempty"`
}

// EncodeCommand превращает команду в сообщение.
func EncodeCommand(cmd domain.Command, origin string) (*Message, error) {
	switch cmd.Kind {
	case domain.CommandEnqueue:
		req := cmd.Request
		return NewMessage(MessageTypeEnqueue, origin, CommandPayload{Request: &req, ID: req.ID}), nil
	case domain.CommandCancel:
		return NewMessage(MessageTypeCancel, origin, CommandPayload{ID: cmd.ID}), nil
	case domain.CommandCancelAll:
		return NewMessage(MessageTypeCancelAll, origin, CommandPayload{}), nil
	default:
		return nil, fmt.Errorf("unknown command kind %q", cmd.Kind)
	}
}

// DecodeCommand восстанавливает команду из сообщения.
// Некорректные сообщения возвращают ошибку с ErrReject.
func DecodeCommand(msg *Message) (domain.Command, error) {
	payload, err := ParsePayload[CommandPayload](msg)
	if err != nil {
		return domain.Command{}, fmt.Errorf("%w: %v", ErrReject, err)
	}

	switch msg.Type {
	case MessageTypeEnqueue:
		if payload.Request == nil {
			return domain.Command{}, fmt.Errorf("%w: enqueue without request", ErrReject)
		}
		if err := payload.Request.Validate(); err != nil {
			return domain.Command{}, fmt.Errorf("%w: %v", ErrReject, err)
		}
		return domain.EnqueueCommand(*payload.Request), nil
	case MessageTypeCancel:
		if payload.ID == "" {
			return domain.Command{}, fmt.Errorf("%w: cancel without id", ErrReject)
		}
		return domain.CancelCommand(payload.ID), nil
	case MessageTypeCancelAll:
		return domain.CancelAllCommand(), nil
	default:
		return domain.Command{}, fmt.Errorf("%w: unexpected message type %q", ErrReject, msg.Type)
	}
}

// EncodeResult превращает результат в сообщение.
func EncodeResult(res domain.Result, origin string) *Message {
	return NewMessage(MessageTypeResult, origin, ResultPayload{
		Kind:    res.Kind,
		Request: res.Request,
		Error:   res.ErrMessage(),
	})
}

// DecodeResult восстанавливает payload результата из сообщения.
func DecodeResult(msg *Message) (ResultPayload, error) {
	if msg.Type != MessageTypeResult {
		return ResultPayload{}, fmt.Errorf("%w: unexpected message type %q", ErrReject, msg.Type)
	}
	payload, err := ParsePayload[ResultPayload](msg)
	if err != nil {
		return ResultPayload{}, fmt.Errorf("%w: %v", ErrReject, err)
	}
	return payload, nil
}
