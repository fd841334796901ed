package peerview

import (
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/dep2p/go-peerview/internal/core/peerview/bighash"
)

// Config peerview 参数
type Config struct {
	// HashBits 地址空间位宽
	HashBits uint

	ClustersCount  int
	ClusterMembers int
	ReplicasCount  int

	MaxLocateProbes       int
	MaxAddressRequests    int
	MaxAddressingAttempts int
	MaxPingProbes         int
	// MaxClientInvitations 每轮 Add 邀请上限，0 表示 ClustersCount
	MaxClientInvitations int

	MaintainInterval   time.Duration
	AddInterval        time.Duration
	AddressingInterval time.Duration

	// PVEExpiration 无广告有效期时 PVE 的默认有效期
	PVEExpiration time.Duration
	// PingDue 距过期不足该时长时发送 Ping
	PingDue time.Duration
	// PongDue 未加入 peerview 时缩短的过期时长
	PongDue time.Duration

	PARefresh            time.Duration
	AddressRequestAdvExp time.Duration
	DiscoveryPublishTTL  time.Duration
	SendTimeout          time.Duration

	// AddressRequestRate 每个来源的 AddressRequest 速率
	AddressRequestRate  rate.Limit
	AddressRequestBurst int

	// AutoCycle 自动在 rendezvous 与 Passive 之间切换的检查周期，0 表示关闭
	AutoCycle        time.Duration
	// LonelinessFactor Passive 节点连续多少轮未见 rendezvous 后自行加入
	LonelinessFactor int
	// VotingExpiration 发起推举后等待其他 PVE 回复的时长
	VotingExpiration time.Duration
	// VotingWait 响应他人推举后暂停邀请的时长
	VotingWait       time.Duration
}

// DefaultConfig 返回默认参数
func DefaultConfig() Config {
	exp := 3 * time.Minute
	return Config{
		HashBits:              bighash.DefaultBits,
		ClustersCount:         2,
		ClusterMembers:        4,
		ReplicasCount:         2,
		MaxLocateProbes:       3,
		MaxAddressRequests:    2,
		MaxAddressingAttempts: 5,
		MaxPingProbes:         25,
		MaintainInterval:      20 * time.Second,
		AddInterval:           15 * time.Second,
		AddressingInterval:    10 * time.Second,
		PVEExpiration:         exp,
		PingDue:               exp / 4,
		PongDue:               exp / 8,
		PARefresh:             5 * time.Minute,
		AddressRequestAdvExp:  20 * time.Minute,
		DiscoveryPublishTTL:   5 * time.Minute,
		SendTimeout:           10 * time.Second,
		AddressRequestRate:    rate.Limit(1),
		AddressRequestBurst:   4,
		LonelinessFactor:      2,
		VotingExpiration:      5 * time.Second,
		VotingWait:            15 * time.Second,
	}
}

// Validate 校验参数
func (c Config) Validate() error {
	switch {
	case c.HashBits == 0:
		return fmt.Errorf("%w: hash_bits", ErrInvalidArgument)
	case c.ClustersCount <= 0, c.ClusterMembers <= 0, c.ReplicasCount <= 0:
		return fmt.Errorf("%w: cluster layout", ErrInvalidArgument)
	case c.MaxLocateProbes < 0, c.MaxAddressRequests <= 0, c.MaxAddressingAttempts <= 0, c.MaxPingProbes <= 0:
		return fmt.Errorf("%w: probe limits", ErrInvalidArgument)
	case c.MaxClientInvitations < 0:
		return fmt.Errorf("%w: max_client_invitations", ErrInvalidArgument)
	case c.MaintainInterval <= 0, c.AddInterval <= 0, c.AddressingInterval <= 0, c.PARefresh <= 0:
		return fmt.Errorf("%w: intervals", ErrInvalidArgument)
	case c.PVEExpiration <= 0, c.PingDue <= 0, c.PongDue <= 0:
		return fmt.Errorf("%w: expirations", ErrInvalidArgument)
	case c.PingDue >= c.PVEExpiration:
		return fmt.Errorf("%w: ping_due must be shorter than pve_expiration", ErrInvalidArgument)
	case c.SendTimeout <= 0:
		return fmt.Errorf("%w: send_timeout", ErrInvalidArgument)
	case c.AddressRequestRate <= 0, c.AddressRequestBurst <= 0:
		return fmt.Errorf("%w: address_request_rate", ErrInvalidArgument)
	case c.AutoCycle < 0, c.LonelinessFactor < 0:
		return fmt.Errorf("%w: auto_cycle", ErrInvalidArgument)
	case c.VotingExpiration <= 0, c.VotingWait <= 0:
		return fmt.Errorf("%w: voting", ErrInvalidArgument)
	}
	return nil
}

func (c Config) invitations() int {
	if c.MaxClientInvitations > 0 {
		return c.MaxClientInvitations
	}
	return c.ClustersCount
}
