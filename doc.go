// Package peerview 提供运行 peerview 覆盖网络节点的入口
//
// Node 组装身份、传输、广告存储、任务调度、客户端租约表、指标与
// peerview 本身，并统一管理它们的生命周期。
//
//	node, err := peerview.New(ctx,
//	    peerview.WithListenAddr("0.0.0.0:9700"),
//	    peerview.WithSeeds("quic://10.0.0.1:9700"),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := node.Start(ctx); err != nil {
//	    return err
//	}
//	defer node.Close()
//
//	pv := node.Peerview()
//	peer, err := pv.GetPeerForTargetHash(h)
package peerview
