// Package resolver matches free-form user input against project titles and aliases.
package resolver

import (
	"context"
	"errors"
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

// MaxChoices 交互式选择时最多给出的候选数
const MaxChoices = 10

var (
	ErrNoMatch            = errors.New("no matching title")
	ErrSelectionCancelled = errors.New("selection cancelled")
)

// Selector 由聊天传输层实现：展示候选并返回被选中的下标
type Selector interface {
	Select(ctx context.Context, choices []string) (int, error)
}

// AmbiguousError 多于一个匹配且没有 Selector 可用
type AmbiguousError struct {
	Candidates []string
}

func (e *AmbiguousError) Error() string {
	return "multiple titles match, selection required"
}

// Caser 有内部状态，不能跨 goroutine 共享
func fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// Resolve 对标题和别名做大小写无关的子串匹配，别名命中改写为规范标题，去重后按字典序返回
func Resolve(query string, titles []string, aliases map[string]string) []string {
	q := fold(query)
	if q == "" {
		return []string{}
	}
	known := make(map[string]struct{}, len(titles))
	for _, t := range titles {
		known[t] = struct{}{}
	}

	seen := map[string]struct{}{}
	matches := []string{}
	add := func(title string) {
		if _, ok := seen[title]; ok {
			return
		}
		seen[title] = struct{}{}
		matches = append(matches, title)
	}
	for _, t := range titles {
		if strings.Contains(fold(t), q) {
			add(t)
		}
	}
	for alias, target := range aliases {
		if _, ok := known[target]; !ok {
			// 别名指向已删除的项目
			continue
		}
		if strings.Contains(fold(alias), q) {
			add(target)
		}
	}
	sort.Strings(matches)
	return matches
}

// Pick 把匹配结果收敛成一个标题：
// 0 个返回 ErrNoMatch，1 个直接使用，多个交给 selector 在前 MaxChoices 个里按位置选择
func Pick(ctx context.Context, matches []string, selector Selector) (string, error) {
	switch len(matches) {
	case 0:
		return "", ErrNoMatch
	case 1:
		return matches[0], nil
	}
	choices := matches
	if len(choices) > MaxChoices {
		choices = choices[:MaxChoices]
	}
	if selector == nil {
		return "", &AmbiguousError{Candidates: append([]string(nil), choices...)}
	}
	idx, err := selector.Select(ctx, choices)
	if err != nil {
		return "", err
	}
	if idx < 0 || idx >= len(choices) {
		return "", ErrSelectionCancelled
	}
	return choices[idx], nil
}
