package types

// Envelope 传输层投递的不透明消息
//
// 传输层只关心 Protocol 以选择入站处理器，Element 与 Body
// 由上层协议解释。
type Envelope struct {
	// Protocol 目标服务协议名
	Protocol string
	// Src 发送方节点 ID
	Src PeerID
	// Element 消息元素名
	Element string
	// Body 未压缩的消息体
	Body []byte
}
