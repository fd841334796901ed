package config

import (
	"golang.org/x/time/rate"

	"github.com/dep2p/go-peerview/internal/core/peerview"
)

// PeerviewConfig peerview 协议参数
//
// 字段含义见 peerview.Config。
type PeerviewConfig struct {
	HashBits uint `json:"hash_bits" yaml:"hash_bits"`

	ClustersCount  int `json:"clusters_count" yaml:"clusters_count"`
	ClusterMembers int `json:"cluster_members" yaml:"cluster_members"`
	ReplicasCount  int `json:"replicas_count" yaml:"replicas_count"`

	MaxLocateProbes       int `json:"max_locate_probes" yaml:"max_locate_probes"`
	MaxAddressRequests    int `json:"max_address_requests" yaml:"max_address_requests"`
	MaxAddressingAttempts int `json:"max_addressing_attempts" yaml:"max_addressing_attempts"`
	MaxPingProbes         int `json:"max_ping_probes" yaml:"max_ping_probes"`
	MaxClientInvitations  int `json:"max_client_invitations" yaml:"max_client_invitations"`

	MaintainInterval   Duration `json:"maintain_interval" yaml:"maintain_interval"`
	AddInterval        Duration `json:"add_interval" yaml:"add_interval"`
	AddressingInterval Duration `json:"addressing_interval" yaml:"addressing_interval"`

	PVEExpiration Duration `json:"pve_expiration" yaml:"pve_expiration"`
	PingDue       Duration `json:"ping_due" yaml:"ping_due"`
	PongDue       Duration `json:"pong_due" yaml:"pong_due"`

	PARefresh            Duration `json:"pa_refresh" yaml:"pa_refresh"`
	AddressRequestAdvExp Duration `json:"address_request_adv_exp" yaml:"address_request_adv_exp"`
	DiscoveryPublishTTL  Duration `json:"discovery_publish_ttl" yaml:"discovery_publish_ttl"`
	SendTimeout          Duration `json:"send_timeout" yaml:"send_timeout"`

	// AddressRequestRate 每个来源每秒允许的 AddressRequest 数
	AddressRequestRate  float64 `json:"address_request_rate" yaml:"address_request_rate"`
	AddressRequestBurst int     `json:"address_request_burst" yaml:"address_request_burst"`

	// AutoCycle 为 0 时不自动切换角色
	AutoCycle        Duration `json:"auto_cycle" yaml:"auto_cycle"`
	LonelinessFactor int      `json:"loneliness_factor" yaml:"loneliness_factor"`
	VotingExpiration Duration `json:"voting_expiration" yaml:"voting_expiration"`
	VotingWait       Duration `json:"voting_wait" yaml:"voting_wait"`
}

// DefaultPeerviewConfig 返回默认协议参数
func DefaultPeerviewConfig() PeerviewConfig {
	d := peerview.DefaultConfig()
	return PeerviewConfig{
		HashBits:              d.HashBits,
		ClustersCount:         d.ClustersCount,
		ClusterMembers:        d.ClusterMembers,
		ReplicasCount:         d.ReplicasCount,
		MaxLocateProbes:       d.MaxLocateProbes,
		MaxAddressRequests:    d.MaxAddressRequests,
		MaxAddressingAttempts: d.MaxAddressingAttempts,
		MaxPingProbes:         d.MaxPingProbes,
		MaxClientInvitations:  d.MaxClientInvitations,
		MaintainInterval:      Duration(d.MaintainInterval),
		AddInterval:           Duration(d.AddInterval),
		AddressingInterval:    Duration(d.AddressingInterval),
		PVEExpiration:         Duration(d.PVEExpiration),
		PingDue:               Duration(d.PingDue),
		PongDue:               Duration(d.PongDue),
		PARefresh:             Duration(d.PARefresh),
		AddressRequestAdvExp:  Duration(d.AddressRequestAdvExp),
		DiscoveryPublishTTL:   Duration(d.DiscoveryPublishTTL),
		SendTimeout:           Duration(d.SendTimeout),
		AddressRequestRate:    float64(d.AddressRequestRate),
		AddressRequestBurst:   d.AddressRequestBurst,
		AutoCycle:             Duration(d.AutoCycle),
		LonelinessFactor:      d.LonelinessFactor,
		VotingExpiration:      Duration(d.VotingExpiration),
		VotingWait:            Duration(d.VotingWait),
	}
}

// Validate 验证协议参数
func (c PeerviewConfig) Validate() error {
	return c.ToPeerview().Validate()
}

// ToPeerview 转换为 peerview.Config
func (c PeerviewConfig) ToPeerview() peerview.Config {
	return peerview.Config{
		HashBits:              c.HashBits,
		ClustersCount:         c.ClustersCount,
		ClusterMembers:        c.ClusterMembers,
		ReplicasCount:         c.ReplicasCount,
		MaxLocateProbes:       c.MaxLocateProbes,
		MaxAddressRequests:    c.MaxAddressRequests,
		MaxAddressingAttempts: c.MaxAddressingAttempts,
		MaxPingProbes:         c.MaxPingProbes,
		MaxClientInvitations:  c.MaxClientInvitations,
		MaintainInterval:      c.MaintainInterval.Duration(),
		AddInterval:           c.AddInterval.Duration(),
		AddressingInterval:    c.AddressingInterval.Duration(),
		PVEExpiration:         c.PVEExpiration.Duration(),
		PingDue:               c.PingDue.Duration(),
		PongDue:               c.PongDue.Duration(),
		PARefresh:             c.PARefresh.Duration(),
		AddressRequestAdvExp:  c.AddressRequestAdvExp.Duration(),
		DiscoveryPublishTTL:   c.DiscoveryPublishTTL.Duration(),
		SendTimeout:           c.SendTimeout.Duration(),
		AddressRequestRate:    rate.Limit(c.AddressRequestRate),
		AddressRequestBurst:   c.AddressRequestBurst,
		AutoCycle:             c.AutoCycle.Duration(),
		LonelinessFactor:      c.LonelinessFactor,
		VotingExpiration:      c.VotingExpiration.Duration(),
		VotingWait:            c.VotingWait.Duration(),
	}
}
