package nav

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryReplaceDoesNotNotify(t *testing.T) {
	m := NewMemory(nil)
	calls := 0
	m.Subscribe(func(url.Values) { calls++ })

	m.Replace(url.Values{"repo": {"octo/cat"}})
	assert.Equal(t, 0, calls)
	assert.Equal(t, "repo=octo%2Fcat", m.Encode())
}

func TestMemoryNavigateNotifiesOnChange(t *testing.T) {
	m := NewMemory(url.Values{"q": {"bug"}})
	var got []url.Values
	cancel := m.Subscribe(func(v url.Values) { got = append(got, v) })

	m.Navigate(url.Values{"q": {"bug"}})
	assert.Empty(t, got, "same state is not a navigation")

	m.Navigate(url.Values{"q": {"login"}, "page": {"2"}})
	require.Len(t, got, 1)
	assert.Equal(t, "login", got[0].Get("q"))

	cancel()
	m.Navigate(url.Values{})
	assert.Len(t, got, 1)
}

func TestMemoryQueryIsACopy(t *testing.T) {
	m := NewMemory(url.Values{"labels": {"1,2"}})
	q := m.Query()
	q.Set("labels", "9")
	assert.Equal(t, "1,2", m.Query().Get("labels"))
}

func TestParse(t *testing.T) {
	m, err := Parse("?repo=a%2Fb&q=x+y")
	require.NoError(t, err)
	assert.Equal(t, "a/b", m.Query().Get("repo"))
	assert.Equal(t, "x y", m.Query().Get("q"))

	_, err = Parse("%zz")
	assert.Error(t, err)
}

func TestFileLocationRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "location")

	f, err := OpenFile(path, nil)
	require.NoError(t, err)
	assert.Empty(t, f.Query())

	f.Replace(url.Values{"repo": {"octo/cat"}, "page": {"3"}})
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "page=3&repo=octo%2Fcat", strings.TrimSpace(string(data)))

	g, err := OpenFile(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "octo/cat", g.Query().Get("repo"))
	assert.Equal(t, "3", g.Query().Get("page"))
}

func TestFileLocationFollowsExternalEdits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "location")
	f, err := OpenFile(path, nil)
	require.NoError(t, err)
	require.NoError(t, f.Watch())
	defer f.Close()

	var mu sync.Mutex
	var seen []string
	f.Subscribe(func(v url.Values) {
		mu.Lock()
		seen = append(seen, v.Get("q"))
		mu.Unlock()
	})

	// Own write: never echoed back as a navigation.
	f.Replace(url.Values{"q": {"mine"}})
	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	assert.Empty(t, seen)
	mu.Unlock()

	require.NoError(t, os.WriteFile(path, []byte("q=theirs\n"), 0o600))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) > 0 && seen[len(seen)-1] == "theirs"
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "theirs", f.Query().Get("q"))
}

func TestFileLocationCloseIdempotent(t *testing.T) {
	f, err := OpenFile(filepath.Join(t.TempDir(), "location"), nil)
	require.NoError(t, err)
	require.NoError(t, f.Watch())
	require.NoError(t, f.Close())
	require.NoError(t, f.Close())
}
