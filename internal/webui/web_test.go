package webui

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"mediactl/internal/blob"
	"mediactl/internal/devsvc"
	"mediactl/internal/models"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakeStore — кабинетное хранилище в памяти: один владелец, одно устройство.
type fakeStore struct {
	account   *models.Account
	device    *models.Device
	statusErr error
	deleteErr error

	gotStatus string
	deleted   bool
}

func (s *fakeStore) GetAccountByCurrentTokenModel(token string) (*models.Account, error) {
	if s.account != nil && s.account.Token == token {
		return s.account, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *fakeStore) GetAccountByUsername(string) (*models.Account, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *fakeStore) ListAccountDevices(uint) ([]models.Device, error) { return nil, nil }

func (s *fakeStore) ListAccountContent(uint) ([]models.ContentItem, error) { return nil, nil }

func (s *fakeStore) GetAccountDevice(id, accountID uint) (*models.Device, error) {
	if s.device != nil && s.device.ID == id && s.device.UserID == accountID {
		return s.device, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *fakeStore) UpdateDeviceStatus(_ uint, status string) error {
	if s.statusErr != nil {
		return s.statusErr
	}
	s.gotStatus = status
	return nil
}

func (s *fakeStore) DeleteDevice(uint) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.deleted = true
	return nil
}

func (s *fakeStore) GetAccountContent(string, uint) (*models.ContentItem, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *fakeStore) CreateContent(*models.ContentItem) error { return nil }
func (s *fakeStore) DeleteContent(uint) error                { return nil }

func newWebFixture(t *testing.T, store *fakeStore) *mux.Router {
	t.Helper()
	blobs, err := blob.NewStore(t.TempDir())
	require.NoError(t, err)
	svc := devsvc.NewService(devsvc.NewMemStore(), 0)
	router := mux.NewRouter()
	New(store, svc, blobs).RegisterRoutes(router)
	return router
}

func postForm(t *testing.T, router *mux.Router, path, token string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if token != "" {
		req.AddCookie(&http.Cookie{Name: cookieName, Value: token})
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func ownerFixture() *fakeStore {
	return &fakeStore{
		account: &models.Account{Model: gorm.Model{ID: 1}, Username: "owner", Token: "T1"},
		device:  &models.Device{Model: gorm.Model{ID: 7}, DeviceID: "dev-1", Status: models.DeviceActive, UserID: 1},
	}
}

func TestDeviceActionBlock(t *testing.T) {
	store := ownerFixture()
	router := newWebFixture(t, store)

	rr := postForm(t, router, "/web/device/action", "T1",
		url.Values{"device_id": {"7"}, "action": {"block"}})
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, models.DeviceBlocked, store.gotStatus)
}

// Отказ хранилища при действии над устройством не маскируется редиректом:
// владелец видит ошибку, а не "успех".
func TestDeviceActionSurfacesStoreError(t *testing.T) {
	store := ownerFixture()
	store.statusErr = errors.New("connection reset")
	router := newWebFixture(t, store)

	rr := postForm(t, router, "/web/device/action", "T1",
		url.Values{"device_id": {"7"}, "action": {"activate"}})
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), "connection reset")
	assert.Empty(t, store.gotStatus)
}

func TestDeviceActionDeleteError(t *testing.T) {
	store := ownerFixture()
	store.deleteErr = errors.New("fk violation")
	router := newWebFixture(t, store)

	rr := postForm(t, router, "/web/device/action", "T1",
		url.Values{"device_id": {"7"}, "action": {"delete"}})
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.False(t, store.deleted)
}

func TestDeviceActionForeignDevice(t *testing.T) {
	store := ownerFixture()
	store.device.UserID = 2 // чужой кабинет
	router := newWebFixture(t, store)

	rr := postForm(t, router, "/web/device/action", "T1",
		url.Values{"device_id": {"7"}, "action": {"delete"}})
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.False(t, store.deleted)
	assert.Empty(t, store.gotStatus)
}

func TestDeviceActionUnauthenticated(t *testing.T) {
	router := newWebFixture(t, ownerFixture())

	rr := postForm(t, router, "/web/device/action", "",
		url.Values{"device_id": {"7"}, "action": {"block"}})
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/web/login", rr.Header().Get("Location"))
}
