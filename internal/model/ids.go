package model

import "sort"

// 以有序、去重的 []uint64 表示集合，序列化结果稳定

func ContainsID(set []uint64, id uint64) bool {
	i := sort.Search(len(set), func(i int) bool { return set[i] >= id })
	return i < len(set) && set[i] == id
}

// AddID 返回加入 id 后的新集合，不修改入参
func AddID(set []uint64, id uint64) []uint64 {
	if ContainsID(set, id) {
		return cloneIDs(set)
	}
	out := append(cloneIDs(set), id)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RemoveID 返回去掉 id 后的新集合；结果为空时返回 nil
func RemoveID(set []uint64, id uint64) []uint64 {
	var out []uint64
	for _, v := range set {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// UnionIDs 合并多个集合并去重排序
func UnionIDs(sets ...[]uint64) []uint64 {
	seen := map[uint64]struct{}{}
	var out []uint64
	for _, set := range sets {
		for _, v := range set {
			if v == 0 {
				continue
			}
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// NormalizeIDs 旧数据可能乱序或重复
func NormalizeIDs(set []uint64) []uint64 {
	return UnionIDs(set)
}

func cloneIDs(set []uint64) []uint64 {
	if set == nil {
		return nil
	}
	out := make([]uint64, len(set))
	copy(out, set)
	return out
}
