package media

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"kynews/internal/core"
)

type mockStore struct {
	objects  map[string][]byte
	types    map[string]string
	metadata map[string]map[string]string
}

func newMockStore() *mockStore {
	return &mockStore{
		objects:  make(map[string][]byte),
		types:    make(map[string]string),
		metadata: make(map[string]map[string]string),
	}
}

func (m *mockStore) Put(_ context.Context, key string, body io.Reader, contentType string, metadata map[string]string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.objects[key] = data
	m.types[key] = contentType
	m.metadata[key] = metadata
	return nil
}

func (m *mockStore) Get(_ context.Context, key string) (io.ReadCloser, string, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, "", io.EOF
	}
	return io.NopCloser(bytes.NewReader(data)), m.types[key], nil
}

type mockRecords struct {
	rows map[string]*core.ItemMedia
}

func newMockRecords() *mockRecords {
	return &mockRecords{rows: make(map[string]*core.ItemMedia)}
}

func (m *mockRecords) Upsert(_ context.Context, media *core.ItemMedia) error {
	m.rows[media.Key] = media
	return nil
}

func (m *mockRecords) Get(_ context.Context, itemID string) (*core.ItemMedia, error) {
	for _, row := range m.rows {
		if row.ItemID == itemID {
			return row, nil
		}
	}
	return nil, nil
}

func (m *mockRecords) GetByKey(_ context.Context, key string) (*core.ItemMedia, error) {
	return m.rows[key], nil
}

type mockItems struct {
	urls map[string]string
}

func newMockItems() *mockItems {
	return &mockItems{urls: make(map[string]string)}
}

func (m *mockItems) UpdateImageURL(_ context.Context, id, imageURL string) error {
	m.urls[id] = imageURL
	return nil
}

func newTestMirror(t *testing.T, handler http.Handler) (*Mirror, *mockStore, *mockRecords, *mockItems, *httptest.Server) {
	t.Helper()
	srv := httptest.NewTLSServer(handler)
	t.Cleanup(srv.Close)

	store := newMockStore()
	records := newMockRecords()
	items := newMockItems()
	mirror := New(store, records, items, Options{
		UserAgent:    "test",
		HTTPClient:   srv.Client(),
		AllowPrivate: true,
	})
	return mirror, store, records, items, srv
}

func TestMirrorImage(t *testing.T) {
	imageData := bytes.Repeat([]byte{0xFF}, 2048)
	mirror, store, records, items, srv := newTestMirror(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(imageData)
	}))

	got, err := mirror.MirrorImage(context.Background(), "item-1", srv.URL+"/hero.jpg")
	if err != nil {
		t.Fatalf("MirrorImage returned error: %v", err)
	}

	wantKey := "news/item-1.jpg"
	if got != ServePrefix+wantKey {
		t.Errorf("served URL = %q", got)
	}
	if !bytes.Equal(store.objects[wantKey], imageData) {
		t.Error("object bytes do not match the source image")
	}
	if store.types[wantKey] != "image/jpeg" {
		t.Errorf("stored content type = %q", store.types[wantKey])
	}
	meta := store.metadata[wantKey]
	if meta["item_id"] != "item-1" || meta["source_url"] != srv.URL+"/hero.jpg" {
		t.Errorf("object metadata = %v", meta)
	}

	record := records.rows[wantKey]
	if record == nil {
		t.Fatal("mirror row not recorded")
	}
	if record.ByteCount != int64(len(imageData)) {
		t.Errorf("byte count = %d, want %d", record.ByteCount, len(imageData))
	}
	if items.urls["item-1"] != got {
		t.Errorf("item image URL not rewritten: %q", items.urls["item-1"])
	}
}

func TestMirrorImageRejectsNonImage(t *testing.T) {
	mirror, store, _, _, srv := newTestMirror(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>not an image</html>"))
	}))

	if _, err := mirror.MirrorImage(context.Background(), "item-1", srv.URL+"/hero.jpg"); err == nil {
		t.Fatal("expected content-type rejection")
	}
	if len(store.objects) != 0 {
		t.Error("rejected image was still uploaded")
	}
}

func TestMirrorImageRejectsOversize(t *testing.T) {
	big := bytes.Repeat([]byte{0x01}, MaxImageBytes+1)
	mirror, store, _, _, srv := newTestMirror(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(big)
	}))

	if _, err := mirror.MirrorImage(context.Background(), "item-1", srv.URL+"/huge.png"); err == nil {
		t.Fatal("expected size rejection")
	}
	if len(store.objects) != 0 {
		t.Error("oversize image was still uploaded")
	}
}

func TestMirrorImageRejectsEmptyBody(t *testing.T) {
	mirror, store, _, _, srv := newTestMirror(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
	}))

	if _, err := mirror.MirrorImage(context.Background(), "item-1", srv.URL+"/blank.png"); err == nil {
		t.Fatal("expected empty-body rejection")
	}
	if len(store.objects) != 0 {
		t.Error("empty image was still uploaded")
	}
}

func TestMirrorImageShortCircuitsRecordedSource(t *testing.T) {
	var fetches int
	mirror, store, records, _, srv := newTestMirror(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches++
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte{0xFF, 0xD8})
	}))

	sourceURL := srv.URL + "/hero.jpg"
	records.rows["news/item-1.jpg"] = &core.ItemMedia{
		ItemID:    "item-1",
		SourceURL: sourceURL,
		Key:       "news/item-1.jpg",
	}

	got, err := mirror.MirrorImage(context.Background(), "item-1", sourceURL)
	if err != nil {
		t.Fatalf("MirrorImage returned error: %v", err)
	}
	if got != ServePrefix+"news/item-1.jpg" {
		t.Errorf("served URL = %q", got)
	}
	if fetches != 0 {
		t.Errorf("upstream fetched %d times for an already-mirrored source", fetches)
	}
	if len(store.objects) != 0 {
		t.Error("already-mirrored image was re-uploaded")
	}

	// A changed upstream URL re-mirrors under the item's key.
	if _, err := mirror.MirrorImage(context.Background(), "item-1", srv.URL+"/hero-v2.jpg"); err != nil {
		t.Fatalf("re-mirror failed: %v", err)
	}
	if fetches != 1 {
		t.Errorf("fetches = %d, want the new source downloaded once", fetches)
	}
}

func TestMirrorImageSkipsAlreadyMirrored(t *testing.T) {
	mirror := New(newMockStore(), newMockRecords(), newMockItems(), Options{})
	got, err := mirror.MirrorImage(context.Background(), "item-1", ServePrefix+"news/item-1.jpg")
	if err != nil {
		t.Fatalf("MirrorImage returned error: %v", err)
	}
	if !strings.HasPrefix(got, ServePrefix) {
		t.Errorf("got %q", got)
	}
}

func TestMirrorImageRefusesHTTP(t *testing.T) {
	mirror := New(newMockStore(), newMockRecords(), newMockItems(), Options{})
	if _, err := mirror.MirrorImage(context.Background(), "item-1", "http://example.com/a.jpg"); err == nil {
		t.Fatal("expected https requirement")
	}
}

func TestMirrorImageRefusesPrivateHost(t *testing.T) {
	mirror := New(newMockStore(), newMockRecords(), newMockItems(), Options{})
	if _, err := mirror.MirrorImage(context.Background(), "item-1", "https://192.168.1.5/a.jpg"); err == nil {
		t.Fatal("expected private-host rejection")
	}
}

func TestKeyFor(t *testing.T) {
	tests := []struct {
		contentType string
		want        string
	}{
		{"image/jpeg", "news/abc.jpg"},
		{"image/png", "news/abc.png"},
		{"image/webp", "news/abc.webp"},
		{"image/jpeg; charset=binary", "news/abc.jpg"},
		{"image/x-exotic", "news/abc.bin"},
	}
	for _, tt := range tests {
		if got := KeyFor("abc", tt.contentType); got != tt.want {
			t.Errorf("KeyFor(abc, %q) = %q, want %q", tt.contentType, got, tt.want)
		}
	}
}

func TestOpenUnknownKey(t *testing.T) {
	mirror := New(newMockStore(), newMockRecords(), newMockItems(), Options{})
	if _, _, err := mirror.Open(context.Background(), "news/ghost.jpg"); err == nil {
		t.Fatal("expected unknown-key rejection")
	}
}

func TestResolveStaleKey(t *testing.T) {
	records := newMockRecords()
	records.rows["news/item-7.webp"] = &core.ItemMedia{ItemID: "item-7", Key: "news/item-7.webp"}
	mirror := New(newMockStore(), records, newMockItems(), Options{})

	// The item was re-mirrored as webp; the old jpg key resolves to the
	// current record.
	record, err := mirror.Resolve(context.Background(), "news/item-7.jpg")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if record == nil || record.Key != "news/item-7.webp" {
		t.Fatalf("record = %+v, want the current webp key", record)
	}

	record, err = mirror.Resolve(context.Background(), "news/ghost.png")
	if err != nil || record != nil {
		t.Errorf("unknown item resolved to %+v, err %v", record, err)
	}
}
