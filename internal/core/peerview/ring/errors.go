package ring

import "errors"

// ErrInvalidRing 无效的划分参数
var ErrInvalidRing = errors.New("ring: invalid partition")
