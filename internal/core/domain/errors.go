package domain

import "errors"

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrCallNotFound   = errors.New("call not found")
	ErrCallExists     = errors.New("call already in progress")
	ErrNoRelationship = errors.New("no relationship exists with target user")
	ErrUserOffline    = errors.New("user is not online")
	ErrUnauthorized   = errors.New("unauthorized")
)
