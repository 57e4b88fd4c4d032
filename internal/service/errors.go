package service

import (
	"errors"

	"Showtimes_Sync/internal/resolver"
)

var (
	ErrNotProvisioned     = errors.New("community is not provisioned")
	ErrAlreadyProvisioned = errors.New("community is already provisioned")
	ErrNotFound           = errors.New("not found")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrConflict           = errors.New("conflict")
)

// 具体的查找失败都包一层 ErrNotFound，方便上层统一处理
var (
	ErrProjectNotFound = wrapNotFound("project not found")
	ErrEpisodeNotFound = wrapNotFound("episode not found")
	ErrAliasNotFound   = wrapNotFound("alias not found")
	ErrTokenNotFound   = wrapNotFound("collaboration token not found")
)

var (
	ErrTitleExists       = wrapConflict("title already exists")
	ErrAliasConflict     = wrapConflict("alias collides with an existing title or alias")
	ErrAlreadyShared     = wrapConflict("project is already shared")
	ErrNotShared         = wrapConflict("project is not shared")
	ErrSelfCollaboration = wrapConflict("cannot collaborate with the same community")
	ErrLastOwner         = wrapConflict("cannot remove the last owner")
	ErrAlreadyReleased   = wrapConflict("episode already released")
	ErrNotReleased       = wrapConflict("episode is not released")
)

type kindError struct {
	msg  string
	kind error
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

func wrapNotFound(msg string) error { return &kindError{msg: msg, kind: ErrNotFound} }
func wrapConflict(msg string) error { return &kindError{msg: msg, kind: ErrConflict} }

// translateResolve 把解析器的结果映射到服务层错误；多选一的情况原样返回 *resolver.AmbiguousError
func translateResolve(err error) error {
	if errors.Is(err, resolver.ErrNoMatch) {
		return ErrProjectNotFound
	}
	return err
}
