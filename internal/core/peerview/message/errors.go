package message

import "errors"

var (
	// ErrInvalidMessage 消息缺少必填字段或字段格式错误
	ErrInvalidMessage = errors.New("message: invalid message")

	// ErrUnknownMessage 未知的消息元素
	ErrUnknownMessage = errors.New("message: unknown message element")

	// ErrInvalidEnvelope 封装格式错误
	ErrInvalidEnvelope = errors.New("message: invalid envelope")

	// ErrFrameTooLarge 帧超过上限
	ErrFrameTooLarge = errors.New("message: frame too large")
)
