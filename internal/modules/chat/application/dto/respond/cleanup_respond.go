package respond

type CleanupStatsRespond struct {
	SessionsByStatus map[string]int64 `json:"sessionsByStatus"`
	SessionsLast7d   int64            `json:"sessionsLast7d"`
	CacheKeys        map[string]int64 `json:"cacheKeys"`
}

type FullCleanupRespond struct {
	InactiveSessions int64 `json:"inactiveSessions"`
	ExpiredMessages  int64 `json:"expiredMessages"`
	ArchivedSessions int64 `json:"archivedSessions"`
}
