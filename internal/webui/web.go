package webui

import (
	"embed"
	"errors"
	"html/template"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"mediactl/internal/blob"
	"mediactl/internal/devsvc"
	"mediactl/internal/logs"
	"mediactl/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

//go:embed templates/*
var tplFS embed.FS

const cookieName = "user_token"

// Store — операции хранилища, которые нужны кабинету. Реализуется repo.Store.
type Store interface {
	GetAccountByCurrentTokenModel(token string) (*models.Account, error)
	GetAccountByUsername(username string) (*models.Account, error)
	ListAccountDevices(accountID uint) ([]models.Device, error)
	ListAccountContent(accountID uint) ([]models.ContentItem, error)
	GetAccountDevice(id, accountID uint) (*models.Device, error)
	UpdateDeviceStatus(id uint, status string) error
	DeleteDevice(id uint) error
	GetAccountContent(fileID string, accountID uint) (*models.ContentItem, error)
	CreateContent(c *models.ContentItem) error
	DeleteContent(id uint) error
}

// Web — серверный кабинет владельца: логин по токену (или паролю), устройства,
// файлы, ротация токена.
type Web struct {
	repo  Store
	svc   *devsvc.Service
	blobs *blob.Store
	tpl   *template.Template
}

func New(r Store, svc *devsvc.Service, b *blob.Store) *Web {
	// если шаблоны не вшились в бинарь, дальше жить нельзя
	tpl := template.Must(template.ParseFS(tplFS, "templates/*.html"))
	return &Web{repo: r, svc: svc, blobs: b, tpl: tpl}
}

func (s *Web) RegisterRoutes(r *mux.Router) {
	web := r.PathPrefix("/web").Subrouter()

	web.HandleFunc("/login", s.loginPage).Methods(http.MethodGet)
	web.HandleFunc("/login", s.loginSubmit).Methods(http.MethodPost)
	web.HandleFunc("/logout", s.logout).Methods(http.MethodGet)
	web.HandleFunc("/dashboard", s.dashboard).Methods(http.MethodGet)
	web.HandleFunc("/device/action", s.deviceAction).Methods(http.MethodPost)
	web.HandleFunc("/file/upload", s.fileUpload).Methods(http.MethodPost)
	web.HandleFunc("/file/delete", s.fileDelete).Methods(http.MethodPost)
	web.HandleFunc("/stream/{file_id}", s.stream).Methods(http.MethodGet)
	web.HandleFunc("/user/refresh-token", s.refreshToken).Methods(http.MethodPost)

	// корень — в кабинет
	r.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, "/web/dashboard", http.StatusFound)
	})
}

// currentUser — владелец по cookie; nil, если сессии нет.
func (s *Web) currentUser(r *http.Request) *models.Account {
	c, err := r.Cookie(cookieName)
	if err != nil || c.Value == "" {
		return nil
	}
	acc, err := s.repo.GetAccountByCurrentTokenModel(c.Value)
	if err != nil {
		return nil
	}
	return acc
}

func setSession(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Web) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tpl.ExecuteTemplate(w, name, data); err != nil {
		logs.Logger.Errorf("template %s: %v", name, err)
	}
}

func (s *Web) loginPage(w http.ResponseWriter, _ *http.Request) {
	s.render(w, "login.html", map[string]any{})
}

// loginSubmit — вход по токену либо по username+password (bcrypt).
func (s *Web) loginSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "cannot parse form", http.StatusBadRequest)
		return
	}

	var acc *models.Account
	if token := r.Form.Get("token"); token != "" {
		a, err := s.repo.GetAccountByCurrentTokenModel(token)
		if err == nil {
			acc = a
		}
	} else if username := r.Form.Get("username"); username != "" {
		a, err := s.repo.GetAccountByUsername(username)
		if err == nil &&
			bcrypt.CompareHashAndPassword([]byte(a.HashedPassword), []byte(r.Form.Get("password"))) == nil {
			acc = a
		}
	}

	if acc == nil {
		s.render(w, "login.html", map[string]any{"Error": "Неверный токен"})
		return
	}

	setSession(w, acc.Token)
	http.Redirect(w, r, "/web/dashboard", http.StatusSeeOther)
}

func (s *Web) logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{Name: cookieName, Value: "", Path: "/", MaxAge: -1})
	http.Redirect(w, r, "/web/login", http.StatusFound)
}

func (s *Web) dashboard(w http.ResponseWriter, r *http.Request) {
	acc := s.currentUser(r)
	if acc == nil {
		http.Redirect(w, r, "/web/login", http.StatusFound)
		return
	}

	devices, err := s.repo.ListAccountDevices(acc.ID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	files, err := s.repo.ListAccountContent(acc.ID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.render(w, "dashboard.html", map[string]any{
		"User":    acc,
		"Devices": devices,
		"Files":   files,
	})
}

// deviceAction — activate / block / delete в пределах своего кабинета.
func (s *Web) deviceAction(w http.ResponseWriter, r *http.Request) {
	acc := s.currentUser(r)
	if acc == nil {
		http.Redirect(w, r, "/web/login", http.StatusSeeOther)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "cannot parse form", http.StatusBadRequest)
		return
	}
	id, _ := strconv.ParseUint(r.Form.Get("device_id"), 10, 64)
	action := r.Form.Get("action")
	dev, err := s.repo.GetAccountDevice(uint(id), acc.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// чужое или уже удалённое устройство — молча назад в кабинет
			http.Redirect(w, r, "/web/dashboard", http.StatusSeeOther)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	switch action {
	case "activate":
		err = s.repo.UpdateDeviceStatus(dev.ID, models.DeviceActive)
	case "block":
		err = s.repo.UpdateDeviceStatus(dev.ID, models.DeviceBlocked)
	case "delete":
		err = s.repo.DeleteDevice(dev.ID)
	}
	if err != nil {
		logs.Logger.Errorf("device action %q on %d: %v", action, dev.ID, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/web/dashboard", http.StatusSeeOther)
}

func (s *Web) fileUpload(w http.ResponseWriter, r *http.Request) {
	acc := s.currentUser(r)
	if acc == nil {
		http.Redirect(w, r, "/web/login", http.StatusSeeOther)
		return
	}
	if err := r.ParseMultipartForm(256 << 20); err != nil {
		http.Error(w, "cannot parse multipart form", http.StatusBadRequest)
		return
	}
	file, hdr, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	fileID := strings.ReplaceAll(uuid.NewString(), "-", "")
	path, err := s.blobs.Save(fileID, hdr.Filename, file)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	item := &models.ContentItem{
		FileID:      fileID,
		Path:        path,
		Description: r.FormValue("description"),
		UserID:      acc.ID,
	}
	if err := s.repo.CreateContent(item); err != nil {
		if rmErr := s.blobs.Remove(path); rmErr != nil {
			logs.Logger.Warnf("orphan blob %s after failed create: %v", path, rmErr)
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/web/dashboard", http.StatusSeeOther)
}

// fileDelete — blob сначала; если он не удалился, запись каталога остаётся
// и владелец видит ошибку.
func (s *Web) fileDelete(w http.ResponseWriter, r *http.Request) {
	acc := s.currentUser(r)
	if acc == nil {
		http.Redirect(w, r, "/web/login", http.StatusSeeOther)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "cannot parse form", http.StatusBadRequest)
		return
	}
	item, err := s.repo.GetAccountContent(r.Form.Get("file_id"), acc.ID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, "/web/dashboard", http.StatusSeeOther)
		return
	}
	if err := s.blobs.Remove(item.Path); err != nil {
		derr := &devsvc.BlobDeleteError{Path: item.Path, Err: err}
		logs.Logger.Errorf("delete %s: %v", item.FileID, derr)
		http.Error(w, "failed to delete file from disk: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if err := s.repo.DeleteContent(item.ID); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/web/dashboard", http.StatusSeeOther)
}

// stream — просмотр видео в браузере владельца (авторизация по cookie).
func (s *Web) stream(w http.ResponseWriter, r *http.Request) {
	acc := s.currentUser(r)
	if acc == nil {
		http.Error(w, "Not authenticated", http.StatusForbidden)
		return
	}
	item, err := s.repo.GetAccountContent(mux.Vars(r)["file_id"], acc.ID)
	if err != nil {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}
	f, err := s.blobs.Open(item.Path)
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "File missing on disk", http.StatusNotFound)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", "inline; filename="+filepath.Base(item.Path))
	_, _ = io.Copy(w, f)
}

// refreshToken — ротация токена кабинета. Старый токен продолжает работать
// у устройств в течение grace-окна; cookie сразу переводится на новый.
func (s *Web) refreshToken(w http.ResponseWriter, r *http.Request) {
	acc := s.currentUser(r)
	if acc == nil {
		http.Redirect(w, r, "/web/login", http.StatusSeeOther)
		return
	}
	newToken, err := s.svc.Rotate(acc.ID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	setSession(w, newToken)
	http.Redirect(w, r, "/web/dashboard", http.StatusSeeOther)
}
