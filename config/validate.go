package config

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

// ValidateSubConfig 可单独验证的子配置
type ValidateSubConfig interface {
	Validate() error
}

// Validate 验证全部子配置
//
// 返回的错误汇总了所有子配置的问题。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	sections := []struct {
		name string
		sub  ValidateSubConfig
	}{
		{"identity", c.Identity},
		{"transport", c.Transport},
		{"peerview", c.Peerview},
		{"discovery", c.Discovery},
		{"scheduler", c.Scheduler},
		{"rendezvous", c.Rendezvous},
		{"metrics", c.Metrics},
		{"debug", c.Debug},
	}

	var err error
	for _, s := range sections {
		if e := s.sub.Validate(); e != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", s.name, e))
		}
	}
	for i, s := range c.Seeds {
		if s.Address == "" && s.PeerID == "" {
			err = multierr.Append(err, fmt.Errorf("seeds[%d]: address or peer_id required", i))
		}
	}
	return err
}

// MustValidate 验证配置，失败时 panic
//
// 仅用于初始化阶段或测试代码。
func MustValidate(c *Config) {
	if err := c.Validate(); err != nil {
		panic(fmt.Sprintf("invalid config: %v", err))
	}
}
