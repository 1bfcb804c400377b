package cache

import "errors"

var (
	ErrEncode = errors.New("cache: encode")
	ErrDecode = errors.New("cache: decode")
)
