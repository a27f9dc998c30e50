package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/flozac77/StreamZilla/internal/domain/model"
	"github.com/flozac77/StreamZilla/internal/domain/repository"
)

func ids(videos []model.Video) []string {
	out := make([]string, len(videos))
	for i, v := range videos {
		out[i] = v.ID
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestVideoAggregator_FetchVideos_MergesAndDeduplicates(t *testing.T) {
	catalog := &mockVideoCatalog{
		getStreamsFn: func(ctx context.Context, q repository.VideoQuery) (*repository.VideoPage, error) {
			return &repository.VideoPage{Videos: []model.Video{liveVideo("s1", 100), liveVideo("v2", 30)}}, nil
		},
		getArchivesFn: func(ctx context.Context, q repository.VideoQuery) (*repository.VideoPage, error) {
			return &repository.VideoPage{Videos: []model.Video{
				archiveVideo("a1", 5000),
				archiveVideo("v2", 9999),
				archiveVideo("a3", 10),
			}}, nil
		},
	}
	agg := NewVideoAggregator(catalog)

	videos, page, err := agg.FetchVideos(context.Background(), "27471", 100, model.Pagination{})
	if err != nil {
		t.Fatalf("FetchVideos() error = %v", err)
	}

	want := []string{"s1", "v2", "a1", "a3"}
	if got := ids(videos); !equalIDs(got, want) {
		t.Errorf("ids = %v, want %v", got, want)
	}
	if !videos[1].IsLive() {
		t.Errorf("colliding id v2 has type %v, want live", videos[1].Type)
	}
	if page.Cursor != nil {
		t.Errorf("Cursor = %v, want nil", *page.Cursor)
	}
}

func TestVideoAggregator_FetchVideos_RespectsLimit(t *testing.T) {
	catalog := &mockVideoCatalog{
		getStreamsFn: func(ctx context.Context, q repository.VideoQuery) (*repository.VideoPage, error) {
			if q.First != 3 {
				t.Errorf("streams first = %d, want 3", q.First)
			}
			return &repository.VideoPage{
				Videos: []model.Video{liveVideo("s1", 1), liveVideo("s2", 2), liveVideo("s3", 3), liveVideo("s4", 4)},
				Cursor: "next-streams",
			}, nil
		},
	}
	agg := NewVideoAggregator(catalog)

	videos, page, err := agg.FetchVideos(context.Background(), "33214", 3, model.Pagination{})
	if err != nil {
		t.Fatalf("FetchVideos() error = %v", err)
	}

	if len(videos) != 3 {
		t.Errorf("len(videos) = %d, want 3", len(videos))
	}
	if len(catalog.archiveQuery) != 0 {
		t.Error("archives should not be fetched when live streams fill the page")
	}
	if page.Cursor == nil || *page.Cursor != "next-streams" || page.Source != model.CursorSourceStreams {
		t.Errorf("page = %+v, want streams cursor next-streams", page)
	}
}

func TestVideoAggregator_FetchVideos_ArchivesFillRemainder(t *testing.T) {
	catalog := &mockVideoCatalog{
		getStreamsFn: func(ctx context.Context, q repository.VideoQuery) (*repository.VideoPage, error) {
			return &repository.VideoPage{Videos: []model.Video{liveVideo("s1", 1), liveVideo("s2", 2)}}, nil
		},
		getArchivesFn: func(ctx context.Context, q repository.VideoQuery) (*repository.VideoPage, error) {
			return &repository.VideoPage{Videos: []model.Video{archiveVideo("a1", 1)}, Cursor: "next-videos"}, nil
		},
	}
	agg := NewVideoAggregator(catalog)

	_, page, err := agg.FetchVideos(context.Background(), "33214", 10, model.Pagination{})
	if err != nil {
		t.Fatalf("FetchVideos() error = %v", err)
	}

	if len(catalog.archiveQuery) != 1 || catalog.archiveQuery[0].First != 8 {
		t.Errorf("archive queries = %+v, want one with first 8", catalog.archiveQuery)
	}
	if page.Cursor == nil || *page.Cursor != "next-videos" || page.Source != model.CursorSourceVideos {
		t.Errorf("page = %+v, want videos cursor next-videos", page)
	}
}

func TestVideoAggregator_FetchVideos_CursorRouting(t *testing.T) {
	tests := []struct {
		name             string
		page             model.Pagination
		wantStreamCalls  int
		wantStreamAfter  string
		wantArchiveAfter string
	}{
		{"first page", model.Pagination{}, 1, "", ""},
		{"streams cursor", model.NewPagination("c-streams", model.CursorSourceStreams), 1, "c-streams", ""},
		{"videos cursor skips streams", model.NewPagination("c-videos", model.CursorSourceVideos), 0, "", "c-videos"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			catalog := &mockVideoCatalog{}
			agg := NewVideoAggregator(catalog)

			if _, _, err := agg.FetchVideos(context.Background(), "27471", 20, tt.page); err != nil {
				t.Fatalf("FetchVideos() error = %v", err)
			}

			if len(catalog.streamQueries) != tt.wantStreamCalls {
				t.Fatalf("stream calls = %d, want %d", len(catalog.streamQueries), tt.wantStreamCalls)
			}
			if tt.wantStreamCalls > 0 && catalog.streamQueries[0].After != tt.wantStreamAfter {
				t.Errorf("streams after = %q, want %q", catalog.streamQueries[0].After, tt.wantStreamAfter)
			}
			if len(catalog.archiveQuery) != 1 {
				t.Fatalf("archive calls = %d, want 1", len(catalog.archiveQuery))
			}
			if catalog.archiveQuery[0].After != tt.wantArchiveAfter {
				t.Errorf("archives after = %q, want %q", catalog.archiveQuery[0].After, tt.wantArchiveAfter)
			}
		})
	}
}

func TestVideoAggregator_FetchVideos_FailedSourceIsEmpty(t *testing.T) {
	catalog := &mockVideoCatalog{
		getStreamsFn: func(ctx context.Context, q repository.VideoQuery) (*repository.VideoPage, error) {
			return nil, &repository.UpstreamError{Endpoint: "streams", StatusCode: 503}
		},
		getArchivesFn: func(ctx context.Context, q repository.VideoQuery) (*repository.VideoPage, error) {
			return &repository.VideoPage{Videos: []model.Video{archiveVideo("a1", 1), archiveVideo("a2", 9)}}, nil
		},
	}
	agg := NewVideoAggregator(catalog)

	videos, _, err := agg.FetchVideos(context.Background(), "27471", 10, model.Pagination{})
	if err != nil {
		t.Fatalf("FetchVideos() error = %v", err)
	}

	if want := []string{"a2", "a1"}; !equalIDs(ids(videos), want) {
		t.Errorf("ids = %v, want %v", ids(videos), want)
	}
}

func TestVideoAggregator_FetchVideos_BothSourcesFail(t *testing.T) {
	catalog := &mockVideoCatalog{
		getStreamsFn: func(ctx context.Context, q repository.VideoQuery) (*repository.VideoPage, error) {
			return nil, errors.New("timeout")
		},
		getArchivesFn: func(ctx context.Context, q repository.VideoQuery) (*repository.VideoPage, error) {
			return nil, errors.New("timeout")
		},
	}
	agg := NewVideoAggregator(catalog)

	videos, page, err := agg.FetchVideos(context.Background(), "27471", 10, model.Pagination{})
	if err != nil {
		t.Fatalf("FetchVideos() error = %v", err)
	}
	if videos == nil || len(videos) != 0 {
		t.Errorf("videos = %v, want empty non-nil slice", videos)
	}
	if page.Cursor != nil {
		t.Error("no cursor expected when every source failed")
	}
}

func TestVideoAggregator_FetchVideos_AuthErrorAborts(t *testing.T) {
	catalog := &mockVideoCatalog{
		getStreamsFn: func(ctx context.Context, q repository.VideoQuery) (*repository.VideoPage, error) {
			return nil, newAuthError(AuthErrorRateLimited, errors.New("429"))
		},
	}
	agg := NewVideoAggregator(catalog)

	_, _, err := agg.FetchVideos(context.Background(), "27471", 10, model.Pagination{})

	var authErr *AuthError
	if !errors.As(err, &authErr) || authErr.Kind != AuthErrorRateLimited {
		t.Fatalf("error = %v, want rate-limited *AuthError", err)
	}
	if len(catalog.archiveQuery) != 0 {
		t.Error("archives should not be fetched after a token failure")
	}
}
