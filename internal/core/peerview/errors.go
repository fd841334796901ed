package peerview

import (
	"errors"
	"fmt"

	"github.com/dep2p/go-peerview/internal/core/peerview/message"
	"github.com/dep2p/go-peerview/pkg/interfaces"
)

var (
	// ErrInvalidArgument 参数或消息字段非法
	ErrInvalidArgument = errors.New("peerview: invalid argument")

	// ErrInvalidMessage 入站消息格式错误，消息被丢弃
	ErrInvalidMessage = fmt.Errorf("%w: invalid message", ErrInvalidArgument)

	// ErrBusy 当前状态不接受该请求（例如已持有地址）
	ErrBusy = errors.New("peerview: busy")

	// ErrMaskMismatch 实例掩码不一致
	ErrMaskMismatch = errors.New("peerview: instance mask mismatch")

	// ErrAlreadyPresent PVE 已存在
	ErrAlreadyPresent = errors.New("peerview: already present")

	// ErrNotFound 查找失败
	ErrNotFound = errors.New("peerview: not found")

	// ErrTimeout 有界等待超时
	ErrTimeout = errors.New("peerview: timeout")

	// ErrUnreachable 目标无法到达
	ErrUnreachable = interfaces.ErrUnreachable

	// ErrNotStarted 尚未启动
	ErrNotStarted = errors.New("peerview: not started")

	// ErrAlreadyStarted 已经启动
	ErrAlreadyStarted = errors.New("peerview: already started")

	// ErrListenerExists 监听器名称重复
	ErrListenerExists = errors.New("peerview: listener already exists")

	// ErrListenerNotFound 监听器不存在
	ErrListenerNotFound = errors.New("peerview: listener not found")
)

// invalidMessage 将编解码错误归入 ErrInvalidMessage
func invalidMessage(err error) error {
	if errors.Is(err, message.ErrInvalidMessage) || errors.Is(err, message.ErrUnknownMessage) {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return err
}
