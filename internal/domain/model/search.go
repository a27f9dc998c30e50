package model

import "time"

// CursorSource tells which upstream collection a pagination cursor belongs to.
type CursorSource string

const (
	CursorSourceNone    CursorSource = ""
	CursorSourceStreams CursorSource = "streams"
	CursorSourceVideos  CursorSource = "videos"
)

func (s CursorSource) IsValid() bool {
	switch s {
	case CursorSourceNone, CursorSourceStreams, CursorSourceVideos:
		return true
	default:
		return false
	}
}

// Pagination carries the cursor for the next page together with its source.
type Pagination struct {
	Cursor *string      `json:"cursor"`
	Source CursorSource `json:"source,omitempty"`
}

// NewPagination returns an empty Pagination when cursor is empty.
func NewPagination(cursor string, source CursorSource) Pagination {
	if cursor == "" {
		return Pagination{}
	}
	return Pagination{Cursor: &cursor, Source: source}
}

// SearchResult is the aggregated answer to a game search.
// Game is nil when the name did not resolve to any category.
type SearchResult struct {
	GameName    string     `json:"game_name"`
	Game        *Game      `json:"game"`
	Videos      []Video    `json:"videos"`
	TotalCount  int        `json:"total_count"`
	LastUpdated time.Time  `json:"last_updated"`
	Pagination  Pagination `json:"pagination"`
}

// NewSearchResult builds a result whose TotalCount matches its videos.
func NewSearchResult(gameName string, game *Game, videos []Video, pagination Pagination, now time.Time) *SearchResult {
	if videos == nil {
		videos = []Video{}
	}
	return &SearchResult{
		GameName:    gameName,
		Game:        game,
		Videos:      videos,
		TotalCount:  len(videos),
		LastUpdated: now,
		Pagination:  pagination,
	}
}

// Covers reports whether a result fetched for fetchLimit videos can answer a
// request for limit videos. A full page may be hiding further videos.
func (r *SearchResult) Covers(fetchLimit, limit int) bool {
	return limit <= fetchLimit || len(r.Videos) < fetchLimit
}

// EmptySearchResult is the canonical result for a game that does not exist.
func EmptySearchResult(gameName string, now time.Time) *SearchResult {
	return NewSearchResult(gameName, nil, nil, Pagination{}, now)
}

// Truncate returns a copy limited to at most limit videos. Dropping videos
// also drops the cursor, which points past the last video of the full page.
func (r *SearchResult) Truncate(limit int) *SearchResult {
	out := *r
	if limit > 0 && len(r.Videos) > limit {
		out.Videos = append([]Video(nil), r.Videos[:limit]...)
		out.Pagination = Pagination{}
	} else {
		out.Videos = append([]Video{}, r.Videos...)
	}
	out.TotalCount = len(out.Videos)
	return &out
}
