package auth

import "errors"

var (
	ErrInvalidToken     = errors.New("invalid or expired token")
	ErrTokenExpired     = errors.New("token has expired")
	ErrUnknownRole      = errors.New("unknown role")
	ErrInsufficientRole = errors.New("role is not allowed to perform this action")
)
