// Package advstore 提供基于 BadgerDB 的节点广告存储
//
// 每条广告以 "adv/<peer id>" 为键保存，值为 JSON。广告带有 TTL：
// 读取时按注入的时钟判断是否过期，BadgerDB 的条目 TTL 负责最终回收。
//
// # 使用示例
//
//	store, err := advstore.Open(advstore.DefaultConfig("/data/adv"), nil)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	err = store.Publish(ctx, adv, 5*time.Minute)
//	addrs, err := store.Resolve(ctx, adv.PeerID)
package advstore
