// Package types 定义 peerview 的公共数据结构
//
// 这是最底层的包，不依赖任何内部包。所有类型都是值类型，
// 用于在模块间传递数据。
//
// # 文件组织
//
//   - ids.go            - PeerID, EndpointAddress
//   - advertisement.go  - PeerAdvertisement 节点广告
//   - errors.go         - 公共错误定义
package types
