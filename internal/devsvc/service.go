package devsvc

import (
	"fmt"
	"sort"
	"time"

	"mediactl/internal/logs"
	"mediactl/internal/models"
)

// GracePeriodDefault — окно, в течение которого старый токен ещё принимается
// после ротации и в ответ выдаётся свежий.
const GracePeriodDefault = 5 * time.Minute

// TokenKind — каким токеном кабинета предъявился клиент.
type TokenKind int

const (
	TokenCurrent TokenKind = iota
	TokenOld
)

// AccountFields — DTO кабинета, с которым работает сервис.
type AccountFields struct {
	ID             uint
	Token          string
	OldToken       *string
	TokenChangedAt *time.Time
}

// DeviceFields — DTO устройства.
type DeviceFields struct {
	ID          uint
	DeviceID    string
	Description string
	Status      string
	UserID      uint
}

// ContentFields — DTO записи каталога.
type ContentFields struct {
	FileID string
	Path   string
	UserID uint
}

// Store — контракт хранилища для протокола устройств. Каждый вызов читает
// актуальное состояние; кэша нет.
type Store interface {
	// AccountByToken ищет кабинет по текущему ИЛИ старому токену.
	AccountByToken(token string) (AccountFields, TokenKind, bool, error)
	// AccountByCurrentToken — только по текущему (регистрация устройств).
	AccountByCurrentToken(token string) (AccountFields, bool, error)
	// ClearOldToken вычищает старый токен при условии, что state не ушёл вперёд
	// (optimistic check: old_token и token_changed_at совпадают с прочитанными).
	// Возвращает false, если условие не сработало — кто-то успел раньше.
	ClearOldToken(accountID uint, oldToken string, changedAt time.Time) (bool, error)
	// RotateToken атомарно: token -> old_token, ставит отметку времени,
	// устанавливает новый токен. Прежний old_token при этом пропадает.
	RotateToken(accountID uint, newToken string, now time.Time) error

	DeviceByOwner(deviceID string, accountID uint) (DeviceFields, bool, error)
	CreateDevice(d DeviceFields) (DeviceFields, error)

	ContentByOwner(accountID uint) ([]ContentFields, error)
	ContentByFileID(fileID string, accountID uint) (ContentFields, bool, error)
}

// AuthResult — исход проверки токена устройством.
type AuthResult struct {
	// "current" — предъявлен действующий токен; "superseded" — старый, но в окне
	Status string
	// заполнен только при "superseded": устройство обязано перейти на него
	FreshToken string
}

const (
	StatusCurrent    = "current"
	StatusSuperseded = "superseded"
)

// ManifestItem — позиция авторитетного списка контента.
type ManifestItem struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// ReconcileResult — ответ сверки: либо Actual, либо точный дифф + полный манифест
// (обе кодировки сразу — устройству хватает одного round trip).
type ReconcileResult struct {
	Actual   bool
	ToFetch  []string
	ToDelete []string
	Manifest []ManifestItem
}

// Service — аутентификация устройств, ротация токенов, регистрация и сверка.
type Service struct {
	store Store
	grace time.Duration
	now   func() time.Time
}

func NewService(store Store, grace time.Duration) *Service {
	if grace <= 0 {
		grace = GracePeriodDefault
	}
	return &Service{store: store, grace: grace, now: time.Now}
}

// Authenticate проверяет предъявленный токен для устройства deviceID.
// Побочный эффект ровно один: вычистка старого токена по истечении окна.
// Вызов безопасен на каждом поллинге.
func (s *Service) Authenticate(token, deviceID string) (AuthResult, error) {
	acc, kind, ok, err := s.store.AccountByToken(token)
	if err != nil {
		return AuthResult{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		return AuthResult{}, ErrInvalidCredential
	}

	dev, ok, err := s.store.DeviceByOwner(deviceID, acc.ID)
	if err != nil {
		return AuthResult{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		return AuthResult{}, ErrUnknownDevice
	}
	if dev.Status != models.DeviceActive {
		return AuthResult{}, &NotActiveError{Status: dev.Status}
	}

	if kind == TokenOld {
		if acc.TokenChangedAt == nil {
			// old_token без отметки ротации — нарушен инвариант модели
			logs.Logger.Errorf("account %d: old token present without token_changed_at", acc.ID)
			return AuthResult{}, ErrRotationStateInconsistent
		}
		if s.now().Sub(*acc.TokenChangedAt) > s.grace {
			cleared, err := s.store.ClearOldToken(acc.ID, token, *acc.TokenChangedAt)
			if err != nil {
				return AuthResult{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			}
			if !cleared {
				// проиграли гонку параллельной вычистке или свежей ротации;
				// для клиента исход тот же
				logs.Logger.Debugf("account %d: stale old-token purge lost the race", acc.ID)
			}
			return AuthResult{}, ErrGracePeriodExpired
		}
		return AuthResult{Status: StatusSuperseded, FreshToken: acc.Token}, nil
	}

	return AuthResult{Status: StatusCurrent}, nil
}

// Rotate архивирует действующий токен кабинета и устанавливает новый.
// Удерживается ровно одно предыдущее поколение: устройство, пропустившее две
// ротации подряд, возвращается только через оператора.
func (s *Service) Rotate(accountID uint) (string, error) {
	newToken := NewToken()
	if err := s.store.RotateToken(accountID, newToken, s.now()); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return newToken, nil
}

// Register — самостоятельная регистрация устройства. Принимается только
// действующий токен; устройство создаётся в статусе unverified, активирует
// его оператор в кабинете.
func (s *Service) Register(token, deviceID, description string) (DeviceFields, error) {
	acc, ok, err := s.store.AccountByCurrentToken(token)
	if err != nil {
		return DeviceFields{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		return DeviceFields{}, ErrInvalidCredential
	}

	if _, exists, err := s.store.DeviceByOwner(deviceID, acc.ID); err != nil {
		return DeviceFields{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	} else if exists {
		return DeviceFields{}, ErrDuplicateDevice
	}

	return s.store.CreateDevice(DeviceFields{
		DeviceID:    deviceID,
		Description: description,
		Status:      models.DeviceUnverified,
		UserID:      acc.ID,
	})
}

// Reconcile сверяет множество id контента устройства с авторитетным множеством
// кабинета. Чистая функция от текущего состояния: ничего не пишет.
func (s *Service) Reconcile(accountID uint, reportedIDs []string) (ReconcileResult, error) {
	items, err := s.store.ContentByOwner(accountID)
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	server := make(map[string]ContentFields, len(items))
	for _, it := range items {
		server[it.FileID] = it
	}
	reported := make(map[string]struct{}, len(reportedIDs))
	for _, id := range reportedIDs {
		reported[id] = struct{}{}
	}

	res := ReconcileResult{}
	for id := range server {
		if _, ok := reported[id]; !ok {
			res.ToFetch = append(res.ToFetch, id)
		}
	}
	for id := range reported {
		if _, ok := server[id]; !ok {
			res.ToDelete = append(res.ToDelete, id)
		}
	}
	if len(res.ToFetch) == 0 && len(res.ToDelete) == 0 {
		res.Actual = true
		return res, nil
	}

	res.Manifest = make([]ManifestItem, 0, len(server))
	for id, it := range server {
		res.Manifest = append(res.Manifest, ManifestItem{ID: id, URL: it.Path})
	}
	// детерминированный порядок в ответе
	sort.Strings(res.ToFetch)
	sort.Strings(res.ToDelete)
	sort.Slice(res.Manifest, func(i, j int) bool { return res.Manifest[i].ID < res.Manifest[j].ID })
	return res, nil
}

// Content — запись каталога для отдачи файла устройству (после Authenticate).
func (s *Service) Content(accountID uint, fileID string) (ContentFields, error) {
	it, ok, err := s.store.ContentByFileID(fileID, accountID)
	if err != nil {
		return ContentFields{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		return ContentFields{}, ErrContentMissing
	}
	return it, nil
}
