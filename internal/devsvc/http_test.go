package devsvc

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"mediactl/internal/models"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMedia — MediaOpener поверх карты path -> содержимое.
type fakeMedia struct {
	files map[string]string
}

type readSeekCloser struct{ *strings.Reader }

func (readSeekCloser) Close() error { return nil }

func (m *fakeMedia) Open(path string) (io.ReadSeekCloser, error) {
	body, ok := m.files[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	return readSeekCloser{strings.NewReader(body)}, nil
}

type httpFixture struct {
	store  *memStore
	svc    *Service
	router *mux.Router
	media  *fakeMedia
	now    time.Time
}

func newHTTPFixture(t *testing.T) *httpFixture {
	t.Helper()
	f := &httpFixture{
		store: NewMemStore(),
		media: &fakeMedia{files: map[string]string{}},
		now:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(f.store, 5*time.Minute)
	f.svc.now = func() time.Time { return f.now }
	f.router = mux.NewRouter()
	RegisterRoutes(f.router, f.svc, f.media)
	return f
}

func (f *httpFixture) postJSON(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

func TestSyncCredentialActual(t *testing.T) {
	f := newHTTPFixture(t)
	acc := f.store.AddAccount("T1")
	f.store.AddDevice(DeviceFields{DeviceID: "dev-1", Status: models.DeviceActive, UserID: acc.ID})

	rr := f.postJSON(t, "/sync-credential", map[string]string{"token": "T1", "id": "dev-1"})
	require.Equal(t, http.StatusOK, rr.Code)
	out := decode(t, rr)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "actual", out["status"])
	assert.NotContains(t, out, "new_token")
}

func TestSyncCredentialUpdated(t *testing.T) {
	f := newHTTPFixture(t)
	acc := f.store.AddAccount("T1")
	f.store.AddDevice(DeviceFields{DeviceID: "dev-1", Status: models.DeviceActive, UserID: acc.ID})
	t2, err := f.svc.Rotate(acc.ID)
	require.NoError(t, err)
	f.now = f.now.Add(time.Minute)

	rr := f.postJSON(t, "/sync-credential", map[string]string{"token": "T1", "id": "dev-1"})
	require.Equal(t, http.StatusOK, rr.Code)
	out := decode(t, rr)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "updated", out["status"])
	assert.Equal(t, t2, out["new_token"])
}

func TestSyncCredentialDeclined(t *testing.T) {
	f := newHTTPFixture(t)
	acc := f.store.AddAccount("T1")
	f.store.AddDevice(DeviceFields{DeviceID: "dev-1", Status: models.DeviceBlocked, UserID: acc.ID})

	cases := []struct {
		name    string
		token   string
		device  string
		message string
	}{
		{"invalid token", "nope", "dev-1", "Invalid token"},
		{"unknown device", "T1", "ghost", "Неизвестное устройство"},
		{"blocked device", "T1", "dev-1", "Устройство не активно"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := f.postJSON(t, "/sync-credential", map[string]string{"token": tc.token, "id": tc.device})
			out := decode(t, rr)
			assert.Equal(t, false, out["success"])
			assert.Equal(t, tc.message, out["message"])
		})
	}
}

func TestNewDeviceAndDuplicate(t *testing.T) {
	f := newHTTPFixture(t)
	f.store.AddAccount("T1")

	rr := f.postJSON(t, "/newdevice", map[string]string{"token": "T1", "id": "player-1"})
	require.Equal(t, http.StatusOK, rr.Code)
	out := decode(t, rr)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "Запрос на добавление отправлен", out["message"])

	rr = f.postJSON(t, "/newdevice", map[string]string{"token": "T1", "id": "player-1"})
	out = decode(t, rr)
	assert.Equal(t, false, out["success"])
	assert.Equal(t, "deviceID уже существует", out["message"])
}

func TestCheckVideosActual(t *testing.T) {
	f := newHTTPFixture(t)
	acc := f.store.AddAccount("T1")
	f.store.AddDevice(DeviceFields{DeviceID: "dev-1", Status: models.DeviceActive, UserID: acc.ID})
	f.store.AddContent(ContentFields{FileID: "a", Path: "uploads/videos/a.mp4", UserID: acc.ID})

	rr := f.postJSON(t, "/check-videos", map[string]any{
		"token": "T1", "id": "dev-1", "videos": []string{"a"},
	})
	require.Equal(t, http.StatusOK, rr.Code)
	out := decode(t, rr)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, true, out["actual"])
	assert.Equal(t, "Список актуален", out["message"])
	assert.NotContains(t, out, "videos")
}

func TestCheckVideosDiff(t *testing.T) {
	f := newHTTPFixture(t)
	acc := f.store.AddAccount("T1")
	f.store.AddDevice(DeviceFields{DeviceID: "dev-1", Status: models.DeviceActive, UserID: acc.ID})
	f.store.AddContent(ContentFields{FileID: "a", Path: "uploads/videos/a.mp4", UserID: acc.ID})
	f.store.AddContent(ContentFields{FileID: "c", Path: "uploads/videos/c.mp4", UserID: acc.ID})

	rr := f.postJSON(t, "/check-videos", map[string]any{
		"token": "T1", "id": "dev-1", "videos": []string{"a", "b"},
	})
	out := decode(t, rr)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, false, out["actual"])
	assert.Equal(t, "Список не актуален", out["message"])
	assert.Equal(t, []any{"c"}, out["to_fetch"])
	assert.Equal(t, []any{"b"}, out["to_delete"])

	videos, ok := out["videos"].([]any)
	require.True(t, ok)
	require.Len(t, videos, 2)
	first := videos[0].(map[string]any)
	assert.Equal(t, "a", first["id"])
	assert.Equal(t, "uploads/videos/a.mp4", first["url"])
}

// После ротации check-videos со старым токеном внутри окна несёт и дифф, и новый токен.
func TestCheckVideosSupersededCarriesNewToken(t *testing.T) {
	f := newHTTPFixture(t)
	acc := f.store.AddAccount("T1")
	f.store.AddDevice(DeviceFields{DeviceID: "dev-1", Status: models.DeviceActive, UserID: acc.ID})
	t2, err := f.svc.Rotate(acc.ID)
	require.NoError(t, err)
	f.now = f.now.Add(time.Minute)

	rr := f.postJSON(t, "/check-videos", map[string]any{
		"token": "T1", "id": "dev-1", "videos": []string{},
	})
	out := decode(t, rr)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, t2, out["new_token"])
}

// vanishingStore — кабинет находится при аутентификации, но исчезает к
// повторному чтению (параллельная вычистка/удаление).
type vanishingStore struct {
	*memStore
	calls int
}

func (s *vanishingStore) AccountByToken(token string) (AccountFields, TokenKind, bool, error) {
	s.calls++
	if s.calls > 1 {
		return AccountFields{}, TokenCurrent, false, nil
	}
	return s.memStore.AccountByToken(token)
}

// Исчезнувший между чтениями токен — это невалидный токен, а не сбой хранилища:
// 503 приглашал бы устройство ретраить запрос, который не может пройти.
func TestCheckVideosCredentialVanishesBetweenReads(t *testing.T) {
	f := newHTTPFixture(t)
	acc := f.store.AddAccount("T1")
	f.store.AddDevice(DeviceFields{DeviceID: "dev-1", Status: models.DeviceActive, UserID: acc.ID})
	f.svc.store = &vanishingStore{memStore: f.store}

	rr := f.postJSON(t, "/check-videos", map[string]any{
		"token": "T1", "id": "dev-1", "videos": []string{},
	})
	require.Equal(t, http.StatusOK, rr.Code)
	out := decode(t, rr)
	assert.Equal(t, false, out["success"])
	assert.Equal(t, "Invalid token", out["message"])
}

func TestDownloadCredentialVanishesBetweenReads(t *testing.T) {
	f := newHTTPFixture(t)
	acc := f.store.AddAccount("T1")
	f.store.AddDevice(DeviceFields{DeviceID: "dev-1", Status: models.DeviceActive, UserID: acc.ID})
	f.store.AddContent(ContentFields{FileID: "a", Path: "a.mp4", UserID: acc.ID})
	f.svc.store = &vanishingStore{memStore: f.store}

	req := httptest.NewRequest(http.MethodGet, "/download/a?token=T1&id=dev-1", nil)
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestDownload(t *testing.T) {
	f := newHTTPFixture(t)
	acc := f.store.AddAccount("T1")
	f.store.AddDevice(DeviceFields{DeviceID: "dev-1", Status: models.DeviceActive, UserID: acc.ID})
	f.store.AddContent(ContentFields{FileID: "a", Path: "uploads/videos/a.mp4", UserID: acc.ID})
	f.media.files["uploads/videos/a.mp4"] = "MEDIA-BYTES"

	get := func(url string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, url, nil)
		rr := httptest.NewRecorder()
		f.router.ServeHTTP(rr, req)
		return rr
	}

	rr := get("/download/a?token=T1&id=dev-1")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "MEDIA-BYTES", rr.Body.String())
	assert.Equal(t, "application/octet-stream", rr.Header().Get("Content-Type"))

	// авторизация: чужой токен, неизвестное устройство
	assert.Equal(t, http.StatusForbidden, get("/download/a?token=bad&id=dev-1").Code)
	assert.Equal(t, http.StatusForbidden, get("/download/a?token=T1&id=ghost").Code)

	// нет такой записи каталога
	assert.Equal(t, http.StatusNotFound, get("/download/zzz?token=T1&id=dev-1").Code)

	// запись есть, blob отсутствует
	f.store.AddContent(ContentFields{FileID: "lost", Path: "uploads/videos/lost.mp4", UserID: acc.ID})
	assert.Equal(t, http.StatusInternalServerError, get("/download/lost?token=T1&id=dev-1").Code)
}

func TestDownloadBlockedDevice(t *testing.T) {
	f := newHTTPFixture(t)
	acc := f.store.AddAccount("T1")
	dev := f.store.AddDevice(DeviceFields{DeviceID: "dev-1", Status: models.DeviceActive, UserID: acc.ID})
	f.store.AddContent(ContentFields{FileID: "a", Path: "a.mp4", UserID: acc.ID})
	f.media.files["a.mp4"] = "x"

	f.store.SetDeviceStatus(dev.ID, models.DeviceBlocked)

	req := httptest.NewRequest(http.MethodGet, "/download/a?token=T1&id=dev-1", nil)
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}
