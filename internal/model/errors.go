package model

import "errors"

var (
	ErrInvalidArgument        = errors.New("invalid argument")
	ErrUnsupportedMessageType = errors.New("unsupported message type")
)
