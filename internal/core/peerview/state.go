package peerview

// State peerview 状态
type State int

const (
	// StateStopped 未运行
	StateStopped State = iota
	// StatePassive 已启动但不参与 peerview
	StatePassive
	// StateLocating 寻找已有的 peerview 实例
	StateLocating
	// StateAddressing 已找到实例，等待地址分配
	StateAddressing
	// StateAnnouncing 已获得地址，正在通告
	StateAnnouncing
	// StateMaintenance 正常维护
	StateMaintenance
)

// String 返回状态名
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePassive:
		return "passive"
	case StateLocating:
		return "locating"
	case StateAddressing:
		return "addressing"
	case StateAnnouncing:
		return "announcing"
	case StateMaintenance:
		return "maintenance"
	default:
		return "unknown"
	}
}

// IsActive 是否处于参与 peerview 的状态
func (s State) IsActive() bool {
	return s >= StateLocating
}
