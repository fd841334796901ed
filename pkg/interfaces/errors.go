package interfaces

import "errors"

var (
	// ErrUnreachable 目标无法解析或无法连接
	ErrUnreachable = errors.New("transport: destination unreachable")

	// ErrTransportClosed 传输已关闭
	ErrTransportClosed = errors.New("transport: closed")

	// ErrAdvNotFound 广告不存在
	ErrAdvNotFound = errors.New("discovery: advertisement not found")
)
