package peerview

import (
	"sync"

	"github.com/dep2p/go-peerview/pkg/types"
)

// EventType 事件类型
type EventType int

const (
	// EventAdd PVE 加入
	EventAdd EventType = iota
	// EventRemove PVE 移除
	EventRemove
	// EventDemote 本节点退出 peerview
	EventDemote
)

// String 返回事件名
func (t EventType) String() string {
	switch t {
	case EventAdd:
		return "add"
	case EventRemove:
		return "remove"
	case EventDemote:
		return "demote"
	default:
		return "unknown"
	}
}

// Event peerview 事件
type Event struct {
	Type   EventType
	PeerID types.PeerID
}

// Listener 事件回调
//
// 回调在 peerview 锁之外执行，可以调用 Peerview 的任何方法。
type Listener func(Event)

// listeners 按注册顺序保存的监听器
type listeners struct {
	mu     sync.RWMutex
	names  []string
	byName map[string]Listener
}

func newListeners() *listeners {
	return &listeners{byName: make(map[string]Listener)}
}

func (l *listeners) add(name string, fn Listener) error {
	if name == "" || fn == nil {
		return ErrInvalidArgument
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.byName[name]; ok {
		return ErrListenerExists
	}
	l.byName[name] = fn
	l.names = append(l.names, name)
	return nil
}

func (l *listeners) remove(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.byName[name]; !ok {
		return ErrListenerNotFound
	}
	delete(l.byName, name)
	for i, n := range l.names {
		if n == name {
			l.names = append(l.names[:i], l.names[i+1:]...)
			break
		}
	}
	return nil
}

// deliver 依次投递事件
func (l *listeners) deliver(events []Event) {
	if len(events) == 0 {
		return
	}
	l.mu.RLock()
	fns := make([]Listener, 0, len(l.names))
	for _, n := range l.names {
		fns = append(fns, l.byName[n])
	}
	l.mu.RUnlock()

	for _, ev := range events {
		for _, fn := range fns {
			fn(ev)
		}
	}
}
