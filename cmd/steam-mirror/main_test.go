package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSteam struct {
	*httptest.Server
	appRequests atomic.Int64
}

func reviewPage(appID string, n int) []any {
	reviews := make([]any, 0, n)
	for i := n; i > 0; i-- {
		reviews = append(reviews, map[string]any{
			"recommendationid": appID + strconv.Itoa(i),
			"author":           map[string]any{"steamid": "76561198000000042"},
			"language":         "english",
			"review":           fmt.Sprintf("review %d", i),
			"voted_up":         i%2 == 0,
		})
	}
	return reviews
}

func newFakeSteam(t *testing.T) *fakeSteam {
	t.Helper()
	f := &fakeSteam{}
	names := map[string]string{"400": "Portal", "620": "Portal 2"}
	counts := map[string]int{"400": 3, "620": 12}
	mux := http.NewServeMux()
	reply := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(v)
	}
	mux.HandleFunc("/IPlayerService/GetOwnedGames/v0001/", func(w http.ResponseWriter, r *http.Request) {
		reply(w, map[string]any{"response": map[string]any{
			"game_count": 3,
			"games": []any{
				map[string]any{"appid": 400, "playtime_forever": 30},
				map[string]any{"appid": 999, "playtime_forever": 0},
				map[string]any{"appid": 620, "playtime_forever": 5},
			},
		}})
	})
	mux.HandleFunc("/api/appdetails", func(w http.ResponseWriter, r *http.Request) {
		f.appRequests.Add(1)
		id := r.URL.Query().Get("appids")
		name, ok := names[id]
		if !ok {
			reply(w, map[string]any{id: map[string]any{"success": false}})
			return
		}
		reply(w, map[string]any{id: map[string]any{
			"success": true,
			"data":    map[string]any{"type": "game", "name": name, "steam_appid": json.Number(id)},
		}})
	})
	mux.HandleFunc("/ISteamApps/GetAppList/v2/", func(w http.ResponseWriter, r *http.Request) {
		reply(w, map[string]any{"applist": map[string]any{"apps": []any{
			map[string]any{"appid": 400, "name": "Portal"},
			map[string]any{"appid": 620, "name": "Portal 2"},
		}}})
	})
	mux.HandleFunc("/appreviews/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		reviews := []any{}
		cursor := "end"
		if r.URL.Query().Get("cursor") == "*" {
			reviews = reviewPage(id, counts[id])
			cursor = "next"
		}
		reply(w, map[string]any{
			"success":       1,
			"query_summary": map[string]any{"num_reviews": len(reviews), "total_reviews": counts[id]},
			"reviews":       reviews,
			"cursor":        cursor,
		})
	})
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

type harness struct {
	envFile  string
	cacheDir string
	stopFile string
}

func newHarness(t *testing.T, f *fakeSteam) *harness {
	t.Helper()
	dir := t.TempDir()
	h := &harness{
		envFile:  filepath.Join(dir, ".env"),
		cacheDir: filepath.Join(dir, "cache"),
		stopFile: filepath.Join(dir, "stop"),
	}
	settings := strings.Join([]string{
		"STEAM_API_KEY=test-key",
		"STEAM_MY_ID=76561198000000001",
		"STEAM_MIRROR_CACHE_DIR=" + h.cacheDir,
		"STEAM_MIRROR_STORE_URL=" + f.URL,
		"STEAM_MIRROR_API_URL=${STEAM_MIRROR_STORE_URL}",
		"STEAM_MIRROR_STOP_FILE=" + h.stopFile,
	}, "\n")
	require.NoError(t, os.WriteFile(h.envFile, []byte(settings+"\n"), 0o644))
	return h
}

func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--env-file", h.envFile, "--log-level", "error"}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestDownloadReviews(t *testing.T) {
	f := newFakeSteam(t)
	h := newHarness(t, f)

	out, err := h.run(t, "download-reviews")
	require.NoError(t, err)
	assert.Contains(t, out, "999 NOT FOUND")
	assert.Contains(t, out, "Portal 2 (620): 12 reviews")
	assert.Contains(t, out, "Portal (400): 3 reviews")
	// Least played first.
	assert.Less(t, strings.Index(out, "999"), strings.Index(out, "(620)"))
	assert.Less(t, strings.Index(out, "(620)"), strings.Index(out, "(400)"))
	assert.FileExists(t, filepath.Join(h.cacheDir, "reviews", "620.yml"))
	assert.FileExists(t, filepath.Join(h.cacheDir, "reviews", "400.yml"))

	appRequests := f.appRequests.Load()
	out, err = h.run(t, "download-reviews")
	require.NoError(t, err)
	assert.Contains(t, out, "Portal 2 (620) already stored")
	assert.Contains(t, out, "Portal (400) already stored")
	// Only the missing app is asked for again.
	assert.Equal(t, appRequests+1, f.appRequests.Load())
}

func TestDownloadReviewsStopFile(t *testing.T) {
	f := newFakeSteam(t)
	h := newHarness(t, f)
	require.NoError(t, os.WriteFile(h.stopFile, nil, 0o644))

	out, err := h.run(t, "download-reviews")
	require.NoError(t, err)
	assert.Contains(t, out, "stopping")
	assert.NoFileExists(t, h.stopFile)
	assert.NoFileExists(t, filepath.Join(h.cacheDir, "reviews", "620.yml"))
}

func TestAppCommand(t *testing.T) {
	f := newFakeSteam(t)
	h := newHarness(t, f)

	out, err := h.run(t, "app", "400")
	require.NoError(t, err)
	assert.Contains(t, out, "Portal 400\n")
	assert.Contains(t, out, "name: Portal")
	assert.Contains(t, out, "steam_appid: 400")

	out, err = h.run(t, "app", "Portal 2")
	require.NoError(t, err)
	assert.Contains(t, out, "steam_appid: 620")

	_, err = h.run(t, "app", "abc")
	assert.ErrorContains(t, err, "unknown app name")

	_, err = h.run(t, "app", "0")
	assert.ErrorContains(t, err, "invalid app id")
}

func TestNameCorrections(t *testing.T) {
	f := newFakeSteam(t)
	h := newHarness(t, f)
	corrections := filepath.Join(filepath.Dir(h.envFile), "name_to_id_correction.yml")
	require.NoError(t, os.WriteFile(corrections, []byte("Portal Two: 620\n"), 0o644))
	settings, err := os.ReadFile(h.envFile)
	require.NoError(t, err)
	settings = append(settings, "STEAM_MIRROR_NAME_CORRECTIONS="+corrections+"\n"...)
	require.NoError(t, os.WriteFile(h.envFile, settings, 0o644))

	out, err := h.run(t, "reviews", "Portal Two")
	require.NoError(t, err)
	assert.Contains(t, out, "12 reviews of 620")
	assert.FileExists(t, filepath.Join(h.cacheDir, "reviews", "620.yml"))
}

func TestReviewsAndForget(t *testing.T) {
	f := newFakeSteam(t)
	h := newHarness(t, f)

	out, err := h.run(t, "reviews", "620", "--print", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "review 12")
	assert.Contains(t, out, "review 11")
	assert.NotContains(t, out, "review 10")
	assert.Contains(t, out, "12 reviews of 620")

	out, err = h.run(t, "forget", "reviews", "620", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "removed the reviews of 620")
	assert.NoFileExists(t, filepath.Join(h.cacheDir, "reviews", "620.yml"))

	out, err = h.run(t, "forget", "reviews", "620", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "nothing stored")
}

func TestNameMapAndOwned(t *testing.T) {
	f := newFakeSteam(t)
	h := newHarness(t, f)

	out, err := h.run(t, "name-map")
	require.NoError(t, err)
	assert.Contains(t, out, "Portal 2")
	assert.Contains(t, out, "620")
	assert.NotContains(t, out, "999")
	assert.FileExists(t, filepath.Join(h.cacheDir, "game_name_id_map.yml"))

	out, err = h.run(t, "owned")
	require.NoError(t, err)
	assert.Contains(t, out, "Games owned by 76561198000000001")
	assert.Contains(t, out, "3 games")
}

func TestMissingSettings(t *testing.T) {
	f := newFakeSteam(t)
	h := newHarness(t, f)
	require.NoError(t, os.WriteFile(h.envFile, []byte("STEAM_MY_ID=1\n"), 0o644))

	_, err := h.run(t, "owned")
	assert.ErrorContains(t, err, "STEAM_API_KEY")
}
