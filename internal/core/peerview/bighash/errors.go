package bighash

import "errors"

var (
	// ErrInvalidHex 无效的十六进制字符串
	ErrInvalidHex = errors.New("bighash: invalid hex")

	// ErrInvalidBits 无效的位宽
	ErrInvalidBits = errors.New("bighash: invalid bit width")
)
