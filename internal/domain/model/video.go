package model

import (
	"sort"
	"time"
)

// VideoType distinguishes live streams from archived broadcasts.
type VideoType string

const (
	VideoTypeLive    VideoType = "live"
	VideoTypeArchive VideoType = "archive"
)

// LiveDuration is the duration sentinel carried by live streams.
const LiveDuration = "live"

func (t VideoType) IsValid() bool {
	switch t {
	case VideoTypeLive, VideoTypeArchive:
		return true
	default:
		return false
	}
}

func (t VideoType) String() string {
	return string(t)
}

// Video is the normalized shape shared by live streams and archived videos.
type Video struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	UserName     string    `json:"user_name"`
	URL          string    `json:"url"`
	ThumbnailURL string    `json:"thumbnail_url"`
	ViewCount    *int      `json:"view_count"`
	Language     string    `json:"language"`
	CreatedAt    time.Time `json:"created_at"`
	Duration     string    `json:"duration"`
	Type         VideoType `json:"type"`
	GameID       string    `json:"game_id"`
	GameName     string    `json:"game_name"`
}

// IsLive returns true if the video is a live stream.
func (v *Video) IsLive() bool {
	return v.Type == VideoTypeLive
}

// Views returns the view count, treating an unknown count as zero.
func (v *Video) Views() int {
	if v.ViewCount == nil {
		return 0
	}
	return *v.ViewCount
}

// RankVideos orders videos in place: live streams first, then by view count
// descending. The sort is stable so equal keys keep upstream order.
func RankVideos(videos []Video) {
	sort.SliceStable(videos, func(i, j int) bool {
		a, b := &videos[i], &videos[j]
		if a.IsLive() != b.IsLive() {
			return a.IsLive()
		}
		return a.Views() > b.Views()
	})
}

// IntPtr returns a pointer to n.
func IntPtr(n int) *int {
	return &n
}
