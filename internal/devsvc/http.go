package devsvc

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"mediactl/internal/logs"

	"github.com/gorilla/mux"
)

/*
Публичные ручки протокола устройств:

POST /sync-credential  {token, id}            -> {success, status: actual|updated, new_token?}
POST /newdevice        {token, id}            -> {success, message}
POST /check-videos     {token, id, videos[]}  -> {success, actual, message, videos?, to_fetch?, to_delete?}
GET  /download/{file_id}?token=...&id=...     -> бинарный поток | 403/404/500
*/

// MediaOpener — доступ к байтам медиафайла по локатору из каталога.
type MediaOpener interface {
	Open(path string) (io.ReadSeekCloser, error)
}

// Controller — HTTP-обвязка протокола устройств.
type Controller struct {
	svc   *Service
	media MediaOpener
}

func NewController(svc *Service, media MediaOpener) *Controller {
	return &Controller{svc: svc, media: media}
}

type deviceResponse struct {
	Success  bool           `json:"success"`
	Message  string         `json:"message,omitempty"`
	Status   string         `json:"status,omitempty"`
	NewToken string         `json:"new_token,omitempty"`
	Actual   *bool          `json:"actual,omitempty"`
	Videos   []ManifestItem `json:"videos,omitempty"`
	ToFetch  []string       `json:"to_fetch,omitempty"`
	ToDelete []string       `json:"to_delete,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// declined — отказ протокола в формате {success:false, message}.
// Авторизационные отказы отдаются как declined result, не как generic success.
func declined(w http.ResponseWriter, err error) {
	msg := deviceErrMessage(err)
	status := http.StatusOK
	if errors.Is(err, ErrStoreUnavailable) {
		// единственный класс, который устройству безопасно ретраить
		status = http.StatusServiceUnavailable
	}
	if errors.Is(err, ErrRotationStateInconsistent) {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, deviceResponse{Success: false, Message: msg})
}

func deviceErrMessage(err error) string {
	var na *NotActiveError
	switch {
	case errors.Is(err, ErrInvalidCredential):
		return "Invalid token"
	case errors.Is(err, ErrUnknownDevice):
		return "Неизвестное устройство"
	case errors.As(err, &na):
		return "Устройство не активно"
	case errors.Is(err, ErrGracePeriodExpired):
		return "Срок действия старого токена истёк"
	case errors.Is(err, ErrDuplicateDevice):
		return "deviceID уже существует"
	case errors.Is(err, ErrStoreUnavailable):
		return "Хранилище временно недоступно, повторите запрос"
	case errors.Is(err, ErrRotationStateInconsistent):
		return "Внутренняя ошибка"
	default:
		return "Внутренняя ошибка"
	}
}

// POST /sync-credential
func (c *Controller) handleSyncCredential(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Token string `json:"token"`
		ID    string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, deviceResponse{Success: false, Message: "invalid json"})
		return
	}

	res, err := c.svc.Authenticate(in.Token, in.ID)
	if err != nil {
		declined(w, err)
		return
	}

	switch res.Status {
	case StatusSuperseded:
		// устройство обязано перейти на new_token для всех последующих вызовов
		writeJSON(w, http.StatusOK, deviceResponse{Success: true, Status: "updated", NewToken: res.FreshToken})
	default:
		writeJSON(w, http.StatusOK, deviceResponse{Success: true, Status: "actual"})
	}
}

// POST /newdevice
func (c *Controller) handleNewDevice(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Token       string `json:"token"`
		ID          string `json:"id"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, deviceResponse{Success: false, Message: "invalid json"})
		return
	}
	if strings.TrimSpace(in.ID) == "" {
		writeJSON(w, http.StatusBadRequest, deviceResponse{Success: false, Message: "id required"})
		return
	}

	if _, err := c.svc.Register(in.Token, in.ID, in.Description); err != nil {
		declined(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deviceResponse{Success: true, Message: "Запрос на добавление отправлен"})
}

// POST /check-videos
func (c *Controller) handleCheckVideos(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Token  string   `json:"token"`
		ID     string   `json:"id"`
		Videos []string `json:"videos"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, deviceResponse{Success: false, Message: "invalid json"})
		return
	}

	// активность устройства проверяется тем же путём, что и sync-credential
	auth, err := c.svc.Authenticate(in.Token, in.ID)
	if err != nil {
		declined(w, err)
		return
	}

	acc, _, ok, err := c.svc.store.AccountByToken(in.Token)
	if err != nil {
		declined(w, ErrStoreUnavailable)
		return
	}
	if !ok {
		// токен вычищен между двумя чтениями; повтор того же запроса не поможет
		declined(w, ErrInvalidCredential)
		return
	}

	rec, err := c.svc.Reconcile(acc.ID, in.Videos)
	if err != nil {
		declined(w, err)
		return
	}

	resp := deviceResponse{Success: true, Actual: &rec.Actual}
	if auth.Status == StatusSuperseded {
		resp.NewToken = auth.FreshToken
	}
	if rec.Actual {
		resp.Message = "Список актуален"
	} else {
		resp.Message = "Список не актуален"
		resp.Videos = rec.Manifest
		resp.ToFetch = rec.ToFetch
		resp.ToDelete = rec.ToDelete
	}
	writeJSON(w, http.StatusOK, resp)
}

// GET /download/{file_id}?token=...&id=...
func (c *Controller) handleDownload(w http.ResponseWriter, r *http.Request) {
	fileID := mux.Vars(r)["file_id"]
	token := r.URL.Query().Get("token")
	deviceID := r.URL.Query().Get("id")

	if _, err := c.svc.Authenticate(token, deviceID); err != nil {
		var na *NotActiveError
		switch {
		case errors.Is(err, ErrStoreUnavailable):
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		case errors.Is(err, ErrInvalidCredential), errors.Is(err, ErrUnknownDevice),
			errors.Is(err, ErrGracePeriodExpired), errors.As(err, &na):
			http.Error(w, deviceErrMessage(err), http.StatusForbidden)
		default:
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	acc, _, ok, err := c.svc.store.AccountByToken(token)
	if err != nil {
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}
	if !ok {
		http.Error(w, deviceErrMessage(ErrInvalidCredential), http.StatusForbidden)
		return
	}

	item, err := c.svc.Content(acc.ID, fileID)
	if err != nil {
		if errors.Is(err, ErrContentMissing) {
			http.Error(w, "File not found", http.StatusNotFound)
			return
		}
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}

	f, err := c.media.Open(item.Path)
	if err != nil {
		if os.IsNotExist(err) {
			// каталог ссылается на отсутствующий blob — громко в лог
			logs.Logger.Errorf("download %s: blob missing at %s", fileID, item.Path)
			http.Error(w, "File missing on server", http.StatusInternalServerError)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", "attachment; filename="+filepath.Base(item.Path))
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, f)
}

// ─────────────────────────── route registrars ───────────────────────────

func RegisterRoutes(root *mux.Router, svc *Service, media MediaOpener) {
	ctrl := NewController(svc, media)

	root.HandleFunc("/sync-credential", ctrl.handleSyncCredential).Methods(http.MethodPost)
	root.HandleFunc("/newdevice", ctrl.handleNewDevice).Methods(http.MethodPost)
	root.HandleFunc("/check-videos", ctrl.handleCheckVideos).Methods(http.MethodPost)
	root.HandleFunc("/download/{file_id}", ctrl.handleDownload).Methods(http.MethodGet)
}
