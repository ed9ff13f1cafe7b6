package dedup_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/linkwatch/internal/dedup"
	"github.com/timmy/linkwatch/internal/domain"
	"github.com/timmy/linkwatch/internal/repository"
	"github.com/timmy/linkwatch/internal/repository/repotest"
)

func TestCanonicalize(t *testing.T) {
	testCases := []struct {
		name string
		a, b string
	}{
		{"scheme and www", "http://www.instagram.com/p/ABC/", "https://instagram.com/p/ABC"},
		{"tracking params", "https://www.instagram.com/p/ABC/?utm_source=ig&igshid=xyz", "https://instagram.com/p/ABC"},
		{"fragment", "https://x.com/carol/status/5#reply", "https://twitter.com/carol/status/5"},
		{"host case", "https://WWW.TikTok.com/@bob/video/1", "https://tiktok.com/@bob/video/1"},
		{"short youtube", "https://youtu.be/dQw4w9WgXcQ", "https://www.youtube.com/watch?v=dQw4w9WgXcQ&feature=share"},
		{"mobile facebook", "https://m.facebook.com/story.php?story_fbid=1&id=2&ref=bookmarks", "https://www.facebook.com/story.php?id=2&story_fbid=1"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			a, err := dedup.Canonicalize(tc.a)
			require.NoError(t, err)
			b, err := dedup.Canonicalize(tc.b)
			require.NoError(t, err)
			assert.Equal(t, a, b)

			fa, err := dedup.Fingerprint(tc.a)
			require.NoError(t, err)
			fb, err := dedup.Fingerprint(tc.b)
			require.NoError(t, err)
			assert.Equal(t, fa, fb)
			assert.Len(t, fa, 64)
		})
	}
}

func TestCanonicalizeDistinguishesPosts(t *testing.T) {
	a, err := dedup.Fingerprint("https://www.youtube.com/watch?v=one")
	require.NoError(t, err)
	b, err := dedup.Fingerprint("https://www.youtube.com/watch?v=two")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestCanonicalizeRejectsInvalid(t *testing.T) {
	for _, raw := range []string{"", "/p/ABC", "://bad"} {
		_, err := dedup.Canonicalize(raw)
		assert.ErrorIs(t, err, dedup.ErrInvalidURL, "input %q", raw)
	}
}

func TestRecordIfNewConcurrentEquivalentURLs(t *testing.T) {
	ctx := context.Background()
	db := repotest.NewDB(t)
	acc, _, err := repository.NewAccountRepository(db).GetOrCreate(ctx, "https://www.instagram.com/alice", domain.ProviderInstagram, "alice")
	require.NoError(t, err)

	d := dedup.New(repository.NewItemRepository(db))
	urls := []string{
		"https://www.instagram.com/p/ABC/",
		"http://instagram.com/p/ABC",
		"https://instagram.com/p/ABC/?utm_source=share",
		"https://m.instagram.com/p/ABC#comments",
	}

	var (
		wg     sync.WaitGroup
		newCnt int32
	)
	for i := 0; i < 3; i++ {
		for _, u := range urls {
			wg.Add(1)
			go func(u string) {
				defer wg.Done()
				res, err := d.RecordIfNew(ctx, acc.ID, u, nil)
				assert.NoError(t, err)
				if res.New {
					atomic.AddInt32(&newCnt, 1)
				}
			}(u)
		}
	}
	wg.Wait()

	assert.EqualValues(t, 1, newCnt)
	count, err := repository.NewItemRepository(db).CountByAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestRecordIfNewScopedPerAccount(t *testing.T) {
	ctx := context.Background()
	db := repotest.NewDB(t)
	accounts := repository.NewAccountRepository(db)
	a, _, err := accounts.GetOrCreate(ctx, "https://x.com/a", domain.ProviderX, "a")
	require.NoError(t, err)
	b, _, err := accounts.GetOrCreate(ctx, "https://x.com/b", domain.ProviderX, "b")
	require.NoError(t, err)

	d := dedup.New(repository.NewItemRepository(db))
	for _, id := range []uint{a.ID, b.ID} {
		res, err := d.RecordIfNew(ctx, id, "https://x.com/a/status/1", nil)
		require.NoError(t, err)
		assert.True(t, res.New)
	}
}

type failingStore struct{}

func (failingStore) InsertIfAbsent(context.Context, *domain.DiscoveredItem) (bool, error) {
	return false, errors.New("disk full")
}

func TestRecordIfNewPersistenceError(t *testing.T) {
	_, err := dedup.New(failingStore{}).RecordIfNew(context.Background(), 1, "https://x.com/a/status/1", nil)
	require.Error(t, err)
	assert.True(t, domain.IsPersistence(err))
}
