package vectordb

import (
	"sort"
	"strings"

	"KnowledgeHub/internal/modules/knowledge/domain/repository"
)

const (
	MetricCosine = "COSINE"
	MetricIP     = "IP"
	MetricL2     = "L2"
)

// NormalizeMetric 未知度量按 COSINE 处理
func NormalizeMetric(metric string) string {
	switch m := strings.ToUpper(strings.TrimSpace(metric)); m {
	case MetricIP, MetricL2:
		return m
	default:
		return MetricCosine
	}
}

// ScoreToDistance 把后端返回的分数统一成"越小越近"的距离
// COSINE/IP 返回相似度，L2 本身就是距离
func ScoreToDistance(metric string, score float32) float64 {
	if NormalizeMetric(metric) == MetricL2 {
		return float64(score)
	}
	return 1 - float64(score)
}

// KeepHit 相似度 1-distance 不低于阈值时保留；threshold<=0 不过滤，缺失距离的命中只在不过滤时保留
func KeepHit(distance *float64, threshold float64) bool {
	if threshold <= 0 {
		return true
	}
	if distance == nil {
		return false
	}
	return 1-*distance >= threshold
}

// SortHits 按距离升序，缺失距离排最后，距离相同按 id 升序
func SortHits[T any](hits []T, distanceOf func(T) *float64, idOf func(T) string) {
	sort.SliceStable(hits, func(i, j int) bool {
		di, dj := distanceOf(hits[i]), distanceOf(hits[j])
		switch {
		case di == nil && dj == nil:
			return idOf(hits[i]) < idOf(hits[j])
		case di == nil:
			return false
		case dj == nil:
			return true
		case *di != *dj:
			return *di < *dj
		default:
			return idOf(hits[i]) < idOf(hits[j])
		}
	})
}

func sortVectorHits(hits []repository.VectorHit) {
	SortHits(hits, func(h repository.VectorHit) *float64 { return h.Distance }, func(h repository.VectorHit) string { return h.ID })
}
