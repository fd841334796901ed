// Package transport 包含 peerview 的消息传输实现
//
// # 子包
//
//   - quic: 基于 QUIC 单向流的网络传输，每条流承载一帧
//   - memory: 进程内传输，用于测试与模拟多节点拓扑
//
// 两者都实现 interfaces.Transport：只投递不透明的 Envelope，
// 按 Envelope.Protocol 分发给已注册的入站处理器。
package transport
