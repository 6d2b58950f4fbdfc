/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package pong

import "errors"

var (
	ErrInvalidMode    = errors.New("invalid game mode")
	ErrInvalidRules   = errors.New("invalid rules")
	ErrInvalidCommand = errors.New("invalid command")
	ErrInvalidPolicy  = errors.New("invalid ai policy")
)
