package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanweaver/mewscast/internal/config"
	"github.com/bryanweaver/mewscast/internal/infrastructure/storage"
)

func feedBody() string {
	stamp := time.Now().UTC().Add(-time.Hour).Format(time.RFC1123Z)
	return fmt.Sprintf(`<?xml version="1.0"?>
<rss version="2.0"><channel><title>t</title>
<item><title>Storm makes landfall in Florida - Reuters</title><link>https://example.com/storm</link><pubDate>%[1]s</pubDate></item>
<item><title>Stock market rallies on jobs data</title><link>https://example.com/stocks</link><pubDate>%[1]s</pubDate></item>
</channel></rss>`, stamp)
}

var generatedPosts = []string{
	"Hurricane winds batter the Gulf coast overnight",
	"Investors cheer a surprise surge in hiring figures",
}

type fakeAPIs struct {
	server   *httptest.Server
	sent     atomic.Int32
	prompted atomic.Int32
}

func startAPIs(t *testing.T) *fakeAPIs {
	t.Helper()
	apis := &fakeAPIs{}
	body := feedBody()
	mux := http.NewServeMux()
	mux.HandleFunc("/feed", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		n := int(apis.prompted.Add(1))
		fmt.Fprintf(w, `{"choices":[{"message":{"content":%q}}]}`, generatedPosts[(n-1)%len(generatedPosts)])
	})
	mux.HandleFunc("/bottoken/sendMessage", func(w http.ResponseWriter, r *http.Request) {
		n := apis.sent.Add(1)
		fmt.Fprintf(w, `{"ok":true,"result":{"message_id":%d}}`, 100+n)
	})
	apis.server = httptest.NewServer(mux)
	t.Cleanup(apis.server.Close)
	return apis
}

func writeConfig(t *testing.T, apis *fakeAPIs, backend, path string) config.Config {
	t.Helper()
	yaml := fmt.Sprintf(`
logging:
  level: error
storage:
  backend: %s
  path: %s
chatgpt:
  endpoint: %s/v1/chat/completions
  apiKey: sk-test
notifications:
  telegram:
    botToken: token
    chatId: "42"
    apiBase: %s
    messagesPerMinute: 0
sites:
  - name: wire
    scanner: rss
    categories:
      - name: top
        url: %s/feed
`, backend, path, apis.server.URL, apis.server.URL, apis.server.URL)
	cfgPath := filepath.Join(t.TempDir(), "mewscast.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(yaml), 0o600))
	cfg, err := config.LoadFile(cfgPath)
	require.NoError(t, err)
	return cfg
}

func TestApplicationPublishesAcrossRuns(t *testing.T) {
	t.Parallel()

	apis := startAPIs(t)
	historyPath := filepath.Join(t.TempDir(), "posts_history.json")
	cfg := writeConfig(t, apis, config.BackendJSONFile, historyPath)
	ctx := context.Background()

	for run := 1; run <= 2; run++ {
		application, err := New(ctx, cfg, nil, Options{Once: true})
		require.NoError(t, err)
		require.NoError(t, application.Run(ctx))
		require.NoError(t, application.Close())
	}

	assert.EqualValues(t, 2, apis.sent.Load())

	posts, err := storage.NewJSONFileStore(historyPath, nil).Load(ctx)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "https://example.com/storm", posts[0].URL)
	assert.Equal(t, "Reuters", posts[0].Source)
	assert.Equal(t, "101", posts[0].PlatformIDs["telegram"])
	assert.Equal(t, "https://example.com/stocks", posts[1].URL)
	assert.NotEmpty(t, posts[1].PostText)

	// A third run finds nothing new to post.
	application, err := New(ctx, cfg, nil, Options{Once: true, Prune: true})
	require.NoError(t, err)
	defer application.Close()
	require.NoError(t, application.Run(ctx))
	assert.EqualValues(t, 2, apis.sent.Load())
	assert.Len(t, application.Tracker().History(), 2)
}

func TestApplicationDryRun(t *testing.T) {
	t.Parallel()

	apis := startAPIs(t)
	cfg := writeConfig(t, apis, config.BackendMemory, "")
	cfg.ChatGPT.APIKey = ""
	cfg.Notifications.Telegram = config.TelegramConfig{}
	ctx := context.Background()

	application, err := New(ctx, cfg, nil, Options{DryRun: true, Prune: true})
	require.NoError(t, err)
	defer application.Close()

	require.NoError(t, application.Run(ctx))
	assert.Empty(t, application.Tracker().History())
	assert.Zero(t, apis.prompted.Load())
	assert.Zero(t, apis.sent.Load())
}

func TestApplicationSQLite(t *testing.T) {
	t.Parallel()

	apis := startAPIs(t)
	cfg := writeConfig(t, apis, config.BackendSQLite, filepath.Join(t.TempDir(), "history.db"))
	ctx := context.Background()

	application, err := New(ctx, cfg, nil, Options{Once: true})
	require.NoError(t, err)
	defer application.Close()
	require.NoError(t, application.Run(ctx))
	assert.Len(t, application.Tracker().History(), 1)
}

func TestNewRejectsIncompleteSetup(t *testing.T) {
	t.Parallel()

	apis := startAPIs(t)
	ctx := context.Background()

	noKey := writeConfig(t, apis, config.BackendMemory, "")
	noKey.ChatGPT.APIKey = ""
	_, err := New(ctx, noKey, nil, Options{})
	require.Error(t, err)

	noPublisher := writeConfig(t, apis, config.BackendMemory, "")
	noPublisher.Notifications.Telegram = config.TelegramConfig{}
	_, err = New(ctx, noPublisher, nil, Options{})
	require.Error(t, err)

	invalid := writeConfig(t, apis, config.BackendMemory, "")
	invalid.Deduplication.DuplicateThreshold = 2
	_, err = New(ctx, invalid, nil, Options{})
	var verr *config.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestApplicationSchedulerStopsWithContext(t *testing.T) {
	t.Parallel()

	apis := startAPIs(t)
	cfg := writeConfig(t, apis, config.BackendMemory, "")
	cfg.Scheduler.IntervalMinutes = 60

	application, err := New(context.Background(), cfg, nil, Options{})
	require.NoError(t, err)
	defer application.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- application.Run(ctx) }()

	require.Eventually(t, func() bool { return apis.sent.Load() == 1 }, 5*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
