package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/loqalabs/loqa-reader/internal/config"
	"github.com/loqalabs/loqa-reader/internal/pipeline"
	"github.com/loqalabs/loqa-reader/internal/playback"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Library.Path = filepath.Join(dir, "library.db")
	cfg.Storage.Directory = filepath.Join(dir, "audio")
	cfg.Storage.TempDirectory = dir
	cfg.Chunker.MaxChunkSize = 30
	return cfg
}

func newTestServer(t *testing.T) (*httptest.Server, *Components) {
	t.Helper()
	logger := newLogger()
	components, err := OpenComponents(context.Background(), testConfig(t), logger)
	if err != nil {
		t.Fatalf("open components: %v", err)
	}
	t.Cleanup(func() { components.Close() })

	rt := &Runtime{
		logger:     logger,
		components: components,
		session:    newSession(playback.NopReporter{}, 0, logger),
	}
	srv := httptest.NewServer(rt.handler())
	t.Cleanup(srv.Close)
	return srv, components
}

func do(t *testing.T, method, url string, body any, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, url, err)
		}
	}
	return resp.StatusCode
}

func TestLibraryAndPlaybackAPI(t *testing.T) {
	srv, components := newTestServer(t)

	conv, err := components.Converter.Convert(context.Background(), pipeline.Request{
		Title: "Essay",
		Text:  "One two three four five. Six seven eight nine ten.",
	})
	if err != nil {
		t.Fatalf("convert: %v", err)
	}

	var entries []entryView
	if code := do(t, http.MethodGet, srv.URL+"/v1/library", nil, &entries); code != http.StatusOK {
		t.Fatalf("list status %d", code)
	}
	if len(entries) != 1 || entries[0].ID != conv.ID || entries[0].TotalMS != 4000 {
		t.Fatalf("unexpected entries %+v", entries)
	}
	if got := entries[0].SegmentDurationsMS; len(got) != 2 || got[0] != 2000 || got[1] != 2000 {
		t.Fatalf("segment durations = %v", got)
	}

	var st statusView
	if code := do(t, http.MethodPost, srv.URL+"/v1/playback/load", map[string]string{"entry_id": conv.ID}, &st); code != http.StatusOK {
		t.Fatalf("load status %d", code)
	}
	if st.EntryID != conv.ID || st.TotalMS != 4000 || st.Segment != 0 || st.Rate != 0 {
		t.Fatalf("unexpected status after load %+v", st)
	}

	do(t, http.MethodPost, srv.URL+"/v1/playback/seek", map[string]int64{"at_ms": 3000}, &st)
	if st.ElapsedMS != 3000 || st.Segment != 1 || st.RemainingMS != 1000 {
		t.Fatalf("unexpected status after seek %+v", st)
	}

	do(t, http.MethodPost, srv.URL+"/v1/playback/play", nil, &st)
	if st.Rate != 1 {
		t.Fatalf("expected playing, got %+v", st)
	}

	do(t, http.MethodPost, srv.URL+"/v1/playback/skip-backward", nil, &st)
	if st.ElapsedMS != 0 || st.Segment != 0 {
		t.Fatalf("skip backward should clamp to start, got %+v", st)
	}

	if code := do(t, http.MethodPost, srv.URL+"/v1/playback/rewind", nil, nil); code != http.StatusNotFound {
		t.Fatalf("unknown action status %d", code)
	}

	if code := do(t, http.MethodDelete, srv.URL+"/v1/library/"+conv.ID, nil, nil); code != http.StatusNoContent {
		t.Fatalf("delete status %d", code)
	}
	if code := do(t, http.MethodGet, srv.URL+"/v1/library/"+conv.ID, nil, nil); code != http.StatusNotFound {
		t.Fatalf("get after delete status %d", code)
	}
	if code := do(t, http.MethodPost, srv.URL+"/v1/playback/load", map[string]string{"entry_id": conv.ID}, nil); code != http.StatusNotFound {
		t.Fatalf("load deleted entry status %d", code)
	}
}

func TestReadyRequiresBus(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("readyz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("readyz status %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status %d", resp.StatusCode)
	}
}
