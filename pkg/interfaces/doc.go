// Package interfaces 定义 peerview 节点各组件之间的公共接口
//
// # 接口文件
//
//   - transport.go   - 消息传输与发送目标
//   - discovery.go   - 节点广告的发布与查询
//   - scheduler.go   - 定时任务调度
//   - roster.go      - rendezvous 客户端租约表
//   - metrics.go     - peerview 指标
//   - errors.go      - 跨组件共享的错误
//
// 实现位于 internal/ 下对应目录，peerview 只依赖本包的接口，
// 测试中可以用手写的替身替换任一组件。
package interfaces
