// Package message 定义 peerview 协议的四种消息及其编解码
//
// # 消息
//
//   - AddressRequest：请求分配地址
//   - AddressAssign：分配地址
//   - Ping：存活探测
//   - Pong：状态通告，携带 associate/partner 推荐
//
// 消息体是 XML 文档，元素与属性名沿用 JXTA Peerview 的命名
// （InstanceMask、TargetHash radius=、ClusterMember ...），
// 大整数一律使用十六进制文本。
//
// # 传输封装
//
// types.Envelope 以 protobuf 线格式（protowire）序列化协议名、来源、
// 元素名与消息体；流上以 uvarint 长度前缀分帧。
package message
