package adminsvc

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"mediactl/internal/blob"
	"mediactl/internal/devsvc"
	"mediactl/internal/logs"
	"mediactl/internal/models"
	"mediactl/internal/repo"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

// HTTP — операторский CRUD: кабинеты, устройства, файлы + загрузка.
// Аутентификация и роли — в roleGate (X-Auth-Token действующим токеном кабинета).
type HTTP struct {
	repo  *repo.Store
	blobs *blob.Store
}

func NewHTTP(r *repo.Store, b *blob.Store) *HTTP { return &HTTP{repo: r, blobs: b} }

func (h *HTTP) RegisterRoutes(r *mux.Router) {
	api := r.PathPrefix("/api/admin").Subrouter()
	api.Use(h.roleGate)

	// users
	api.HandleFunc("/users", h.listUsers).Methods(http.MethodGet)
	api.HandleFunc("/users", h.createUser).Methods(http.MethodPost)
	api.HandleFunc("/users/{id}", h.getUser).Methods(http.MethodGet)
	api.HandleFunc("/users/{id}", h.deleteUser).Methods(http.MethodDelete)
	api.HandleFunc("/users/{id}/devices", h.listUserDevices).Methods(http.MethodGet)
	api.HandleFunc("/users/{id}/files", h.listUserFiles).Methods(http.MethodGet)

	// devices
	api.HandleFunc("/devices", h.listDevices).Methods(http.MethodGet)
	api.HandleFunc("/devices", h.createDevice).Methods(http.MethodPost)
	api.HandleFunc("/devices/{id}", h.deleteDevice).Methods(http.MethodDelete)
	api.HandleFunc("/devices/{id}/status", h.updateDeviceStatus).Methods(http.MethodPut, http.MethodPost)

	// files
	api.HandleFunc("/files", h.listFiles).Methods(http.MethodGet)
	api.HandleFunc("/files", h.createFile).Methods(http.MethodPost)
	api.HandleFunc("/files/upload", h.uploadFile).Methods(http.MethodPost)
	api.HandleFunc("/files/{file_id}", h.deleteFile).Methods(http.MethodDelete)
}

// roleGate — аутентификация оператора по X-Auth-Token + проверка роли.
// Загрузка файлов разрешена и video_uploader, остальное — admin/operator.
func (h *HTTP) roleGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			models.WriteProblem(w, http.StatusUnauthorized, "Unauthorized", "missing X-Auth-Token", nil)
			return
		}
		acc, err := h.repo.GetAccountByCurrentTokenModel(token)
		if err != nil {
			models.WriteProblem(w, http.StatusUnauthorized, "Unauthorized", "unrecognized token", nil)
			return
		}
		allowed := []string{models.RoleOperator}
		if strings.HasPrefix(r.URL.Path, "/api/admin/files") {
			allowed = append(allowed, models.RoleVideoUploader)
		}
		if !requireRole(acc, allowed...) {
			models.WriteProblem(w, http.StatusForbidden, "Forbidden", "role not allowed", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireRole — capability-check: admin проходит всюду, остальные по списку.
func requireRole(acc *models.Account, roles ...string) bool {
	if acc == nil {
		return false
	}
	if acc.Role == models.RoleAdmin {
		return true
	}
	for _, r := range roles {
		if acc.Role == r {
			return true
		}
	}
	return false
}

func parseID(r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// ── users ───────────────────────────────────────────────────

func (h *HTTP) listUsers(w http.ResponseWriter, _ *http.Request) {
	users, err := h.repo.ListAccounts()
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	_ = json.NewEncoder(w).Encode(users)
}

func (h *HTTP) getUser(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		http.Error(w, "invalid id", 400)
		return
	}
	u, err := h.repo.GetAccount(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			models.WriteProblem(w, http.StatusNotFound, "Not found", "user not found", nil)
			return
		}
		http.Error(w, err.Error(), 500)
		return
	}
	_ = json.NewEncoder(w).Encode(u)
}

func (h *HTTP) createUser(w http.ResponseWriter, r *http.Request) {
	var in struct {
		FullName string `json:"full_name"`
		Username string `json:"username"`
		Role     string `json:"role"`
		Token    string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid json", 400)
		return
	}
	if strings.TrimSpace(in.Username) == "" {
		http.Error(w, "username required", 400)
		return
	}
	if in.Role == "" {
		in.Role = models.RoleVideoUploader
	}
	u := &models.Account{
		FullName: in.FullName,
		Username: in.Username,
		Role:     in.Role,
		Token:    in.Token,
	}
	if err := h.repo.CreateAccount(u); err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	_ = json.NewEncoder(w).Encode(u)
}

func (h *HTTP) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		http.Error(w, "invalid id", 400)
		return
	}
	if _, err := h.repo.GetAccount(id); err != nil {
		models.WriteProblem(w, http.StatusNotFound, "Not found", "user not found", nil)
		return
	}
	if err := h.repo.DeleteAccount(id); err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
}

func (h *HTTP) listUserDevices(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		http.Error(w, "invalid id", 400)
		return
	}
	ds, err := h.repo.ListAccountDevices(id)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	_ = json.NewEncoder(w).Encode(ds)
}

func (h *HTTP) listUserFiles(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		http.Error(w, "invalid id", 400)
		return
	}
	fs, err := h.repo.ListAccountContent(id)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	_ = json.NewEncoder(w).Encode(fs)
}

// ── devices ─────────────────────────────────────────────────

func (h *HTTP) listDevices(w http.ResponseWriter, _ *http.Request) {
	ds, err := h.repo.ListDevices()
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	_ = json.NewEncoder(w).Encode(ds)
}

func (h *HTTP) createDevice(w http.ResponseWriter, r *http.Request) {
	var in struct {
		DeviceID    string `json:"device_id"`
		Description string `json:"description"`
		UserID      uint   `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid json", 400)
		return
	}
	if in.DeviceID == "" || in.UserID == 0 {
		http.Error(w, "device_id and user_id required", 400)
		return
	}
	d := &models.Device{
		DeviceID:    in.DeviceID,
		Description: in.Description,
		Status:      models.DeviceUnverified,
		UserID:      in.UserID,
	}
	if err := h.repo.CreateAdminDevice(d); err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	_ = json.NewEncoder(w).Encode(d)
}

func (h *HTTP) updateDeviceStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		http.Error(w, "invalid id", 400)
		return
	}
	var in struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid json", 400)
		return
	}
	switch in.Status {
	case models.DeviceActive, models.DeviceBlocked:
		// unverified извне не выставляется — это стартовое состояние регистрации
	default:
		http.Error(w, "status must be active|blocked", 400)
		return
	}
	if _, err := h.repo.GetDevice(id); err != nil {
		models.WriteProblem(w, http.StatusNotFound, "Not found", "device not found", nil)
		return
	}
	if err := h.repo.UpdateDeviceStatus(id, in.Status); err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTP) deleteDevice(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		http.Error(w, "invalid id", 400)
		return
	}
	if _, err := h.repo.GetDevice(id); err != nil {
		models.WriteProblem(w, http.StatusNotFound, "Not found", "device not found", nil)
		return
	}
	if err := h.repo.DeleteDevice(id); err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
}

// ── files ───────────────────────────────────────────────────

func (h *HTTP) listFiles(w http.ResponseWriter, _ *http.Request) {
	fs, err := h.repo.ListContent()
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	_ = json.NewEncoder(w).Encode(fs)
}

func (h *HTTP) createFile(w http.ResponseWriter, r *http.Request) {
	var in struct {
		FileID      string `json:"file_id"`
		URL         string `json:"url"`
		Description string `json:"description"`
		UserID      uint   `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid json", 400)
		return
	}
	if in.FileID == "" || in.UserID == 0 {
		http.Error(w, "file_id and user_id required", 400)
		return
	}
	f := &models.ContentItem{
		FileID:      in.FileID,
		Path:        in.URL,
		Description: in.Description,
		UserID:      in.UserID,
	}
	if err := h.repo.CreateContent(f); err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	_ = json.NewEncoder(w).Encode(f)
}

// uploadFile — multipart: user_id, description, file.
func (h *HTTP) uploadFile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(256 << 20); err != nil {
		http.Error(w, "cannot parse multipart form", 400)
		return
	}
	userID, err := strconv.ParseUint(r.FormValue("user_id"), 10, 64)
	if err != nil || userID == 0 {
		http.Error(w, "user_id required", 400)
		return
	}
	if _, err := h.repo.GetAccount(uint(userID)); err != nil {
		models.WriteProblem(w, http.StatusNotFound, "Not found", "user not found", nil)
		return
	}

	file, hdr, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file required", 400)
		return
	}
	defer file.Close()

	fileID := strings.ReplaceAll(uuid.NewString(), "-", "")
	path, err := h.blobs.Save(fileID, hdr.Filename, file)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}

	item := &models.ContentItem{
		FileID:      fileID,
		Path:        path,
		Description: r.FormValue("description"),
		UserID:      uint(userID),
	}
	if err := h.repo.CreateContent(item); err != nil {
		// запись не создалась — blob не должен остаться сиротой
		if rmErr := h.blobs.Remove(path); rmErr != nil {
			logs.Logger.Warnf("orphan blob %s after failed create: %v", path, rmErr)
		}
		http.Error(w, err.Error(), 500)
		return
	}

	_ = json.NewEncoder(w).Encode(map[string]any{
		"result":  "uploaded",
		"file_id": fileID,
		"path":    path,
	})
}

// deleteFile — сначала blob, потом запись каталога. Если blob не удалился,
// запись остаётся и ошибка уходит вызывающему (не глотаем).
func (h *HTTP) deleteFile(w http.ResponseWriter, r *http.Request) {
	fileID := mux.Vars(r)["file_id"]
	item, err := h.repo.GetContentByFileID(fileID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			models.WriteProblem(w, http.StatusNotFound, "Not found", "file not found", nil)
			return
		}
		http.Error(w, err.Error(), 500)
		return
	}

	if err := h.blobs.Remove(item.Path); err != nil {
		derr := &devsvc.BlobDeleteError{Path: item.Path, Err: err}
		logs.Logger.Errorf("delete %s: %v", fileID, derr)
		models.WriteProblem(w, http.StatusInternalServerError, "Blob delete failed",
			"failed to delete file from disk: "+err.Error(), map[string]string{"file_id": fileID})
		return
	}
	if err := h.repo.DeleteContent(item.ID); err != nil {
		http.Error(w, err.Error(), 500)
		return
	}

	_ = json.NewEncoder(w).Encode(map[string]string{
		"result":  "deleted",
		"file_id": fileID,
	})
}
