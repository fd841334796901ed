package types

import "slices"

// PeerAdvertisement 节点广告
//
// 描述节点身份与联系方式，随 Pong、AddressRequest 传播，
// 并通过 Discovery 发布。
type PeerAdvertisement struct {
	// PeerID 节点标识
	PeerID PeerID `json:"peer_id"`

	// Name 节点名称（可选）
	Name string `json:"name,omitempty"`

	// Endpoints 可达的端点地址
	Endpoints []EndpointAddress `json:"endpoints,omitempty"`

	// Rendezvous 是否以 rendezvous 身份运行
	Rendezvous bool `json:"rendezvous,omitempty"`
}

// Clone 深拷贝
func (a *PeerAdvertisement) Clone() *PeerAdvertisement {
	if a == nil {
		return nil
	}
	c := *a
	c.Endpoints = slices.Clone(a.Endpoints)
	return &c
}

// Validate 校验广告
func (a *PeerAdvertisement) Validate() error {
	if a == nil {
		return ErrInvalidAdvertisement
	}
	return a.PeerID.Validate()
}

// HasEndpoint 检查广告是否包含指定端点
func (a *PeerAdvertisement) HasEndpoint(addr EndpointAddress) bool {
	if a == nil {
		return false
	}
	return slices.Contains(a.Endpoints, addr)
}
