package tdigest

import "errors"

var ErrInvalidArgument = errors.New("invalid argument")
var ErrInvalidState = errors.New("invalid state")
var ErrDataCorruption = errors.New("data corruption")
