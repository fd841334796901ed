// Package introspect 提供本地自省 HTTP 服务
//
// 端点：
//
//	/debug/introspect            节点、peerview、带宽与运行时概要
//	/debug/introspect/pves       全部 PVE
//	/debug/introspect/histogram  ?cluster=N 的覆盖直方图
//	/debug/pprof/                pprof
//	/health                      健康检查
//
// 服务只应监听本地地址。
package introspect
