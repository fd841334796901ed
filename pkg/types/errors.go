package types

import "errors"

// 公共错误定义
var (
	// ErrEmptyPeerID 空节点标识
	ErrEmptyPeerID = errors.New("empty peer ID")

	// ErrInvalidPeerID 无效节点标识
	ErrInvalidPeerID = errors.New("invalid peer ID")

	// ErrInvalidAdvertisement 无效广告
	ErrInvalidAdvertisement = errors.New("invalid peer advertisement")
)
