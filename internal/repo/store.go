package repo

import (
	"errors"
	"time"

	"mediactl/internal/devsvc"
	"mediactl/internal/models"

	"gorm.io/gorm"
)

// Store — gorm-реализация devsvc.Store плюс запросы операторского API и кабинета.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func accountFields(m models.Account) devsvc.AccountFields {
	return devsvc.AccountFields{
		ID:             m.ID,
		Token:          m.Token,
		OldToken:       m.OldToken,
		TokenChangedAt: m.TokenChangedAt,
	}
}

func deviceFields(m models.Device) devsvc.DeviceFields {
	return devsvc.DeviceFields{
		ID:          m.ID,
		DeviceID:    m.DeviceID,
		Description: m.Description,
		Status:      m.Status,
		UserID:      m.UserID,
	}
}

// ── devsvc.Store ────────────────────────────────────────────

func (s *Store) AccountByToken(token string) (devsvc.AccountFields, devsvc.TokenKind, bool, error) {
	var m models.Account
	err := s.db.Where("token = ?", token).First(&m).Error
	if err == nil {
		return accountFields(m), devsvc.TokenCurrent, true, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return devsvc.AccountFields{}, devsvc.TokenCurrent, false, err
	}

	err = s.db.Where("old_token = ?", token).First(&m).Error
	if err == nil {
		return accountFields(m), devsvc.TokenOld, true, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return devsvc.AccountFields{}, devsvc.TokenCurrent, false, err
	}
	return devsvc.AccountFields{}, devsvc.TokenCurrent, false, nil
}

func (s *Store) AccountByCurrentToken(token string) (devsvc.AccountFields, bool, error) {
	var m models.Account
	if err := s.db.Where("token = ?", token).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return devsvc.AccountFields{}, false, nil
		}
		return devsvc.AccountFields{}, false, err
	}
	return accountFields(m), true, nil
}

// ClearOldToken — условный UPDATE: вычистка не пройдёт, если состояние уже
// изменила параллельная ротация либо другая вычистка (RowsAffected == 0).
func (s *Store) ClearOldToken(accountID uint, oldToken string, changedAt time.Time) (bool, error) {
	res := s.db.Model(&models.Account{}).
		Where("id = ? AND old_token = ? AND token_changed_at = ?", accountID, oldToken, changedAt).
		Updates(map[string]any{"old_token": nil, "token_changed_at": nil})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// RotateToken — одна атомарная запись: token -> old_token, отметка времени,
// новый токен. Прежний old_token затирается (хранится ровно одно поколение).
func (s *Store) RotateToken(accountID uint, newToken string, now time.Time) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var m models.Account
		if err := tx.First(&m, accountID).Error; err != nil {
			return err
		}
		return tx.Model(&m).Updates(map[string]any{
			"old_token":        m.Token,
			"token_changed_at": now,
			"token":            newToken,
		}).Error
	})
}

func (s *Store) DeviceByOwner(deviceID string, accountID uint) (devsvc.DeviceFields, bool, error) {
	var m models.Device
	err := s.db.Where("device_id = ? AND user_id = ?", deviceID, accountID).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return devsvc.DeviceFields{}, false, nil
		}
		return devsvc.DeviceFields{}, false, err
	}
	return deviceFields(m), true, nil
}

func (s *Store) CreateDevice(d devsvc.DeviceFields) (devsvc.DeviceFields, error) {
	m := models.Device{
		DeviceID:    d.DeviceID,
		Description: d.Description,
		Status:      d.Status,
		UserID:      d.UserID,
	}
	if err := s.db.Create(&m).Error; err != nil {
		return devsvc.DeviceFields{}, err
	}
	return deviceFields(m), nil
}

func (s *Store) ContentByOwner(accountID uint) ([]devsvc.ContentFields, error) {
	var list []models.ContentItem
	if err := s.db.Where("user_id = ?", accountID).Order("file_id").Find(&list).Error; err != nil {
		return nil, err
	}
	out := make([]devsvc.ContentFields, 0, len(list))
	for _, it := range list {
		out = append(out, devsvc.ContentFields{FileID: it.FileID, Path: it.Path, UserID: it.UserID})
	}
	return out, nil
}

func (s *Store) ContentByFileID(fileID string, accountID uint) (devsvc.ContentFields, bool, error) {
	var m models.ContentItem
	err := s.db.Where("file_id = ? AND user_id = ?", fileID, accountID).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return devsvc.ContentFields{}, false, nil
		}
		return devsvc.ContentFields{}, false, err
	}
	return devsvc.ContentFields{FileID: m.FileID, Path: m.Path, UserID: m.UserID}, true, nil
}

// ── операторские запросы (admin API и web-кабинет) ──────────

func (s *Store) ListAccounts() ([]models.Account, error) {
	var out []models.Account
	err := s.db.Order("id").Find(&out).Error
	return out, err
}

func (s *Store) GetAccount(id uint) (*models.Account, error) {
	var m models.Account
	if err := s.db.First(&m, id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// GetAccountByCurrentTokenModel — полная модель по действующему токену
// (cookie кабинета, X-Auth-Token операторского API).
func (s *Store) GetAccountByCurrentTokenModel(token string) (*models.Account, error) {
	var m models.Account
	if err := s.db.Where("token = ?", token).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) GetAccountByUsername(username string) (*models.Account, error) {
	var m models.Account
	if err := s.db.Where("username = ?", username).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) CreateAccount(a *models.Account) error { return s.db.Create(a).Error }
func (s *Store) DeleteAccount(id uint) error           { return s.db.Delete(&models.Account{}, id).Error }

func (s *Store) ListDevices() ([]models.Device, error) {
	var out []models.Device
	err := s.db.Order("id").Find(&out).Error
	return out, err
}

func (s *Store) ListAccountDevices(accountID uint) ([]models.Device, error) {
	var out []models.Device
	err := s.db.Where("user_id = ?", accountID).Order("id").Find(&out).Error
	return out, err
}

func (s *Store) GetDevice(id uint) (*models.Device, error) {
	var m models.Device
	if err := s.db.First(&m, id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// GetAccountDevice — строка устройства в пределах кабинета (действия в кабинете).
func (s *Store) GetAccountDevice(id, accountID uint) (*models.Device, error) {
	var m models.Device
	if err := s.db.Where("id = ? AND user_id = ?", id, accountID).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) CreateAdminDevice(d *models.Device) error { return s.db.Create(d).Error }
func (s *Store) UpdateDeviceStatus(id uint, status string) error {
	return s.db.Model(&models.Device{}).Where("id = ?", id).Update("status", status).Error
}
func (s *Store) DeleteDevice(id uint) error { return s.db.Delete(&models.Device{}, id).Error }

func (s *Store) ListContent() ([]models.ContentItem, error) {
	var out []models.ContentItem
	err := s.db.Order("id").Find(&out).Error
	return out, err
}

func (s *Store) ListAccountContent(accountID uint) ([]models.ContentItem, error) {
	var out []models.ContentItem
	err := s.db.Where("user_id = ?", accountID).Order("id").Find(&out).Error
	return out, err
}

func (s *Store) GetContentByFileID(fileID string) (*models.ContentItem, error) {
	var m models.ContentItem
	if err := s.db.Where("file_id = ?", fileID).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// GetAccountContent — запись каталога в пределах кабинета.
func (s *Store) GetAccountContent(fileID string, accountID uint) (*models.ContentItem, error) {
	var m models.ContentItem
	if err := s.db.Where("file_id = ? AND user_id = ?", fileID, accountID).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) CreateContent(c *models.ContentItem) error { return s.db.Create(c).Error }
func (s *Store) DeleteContent(id uint) error {
	return s.db.Delete(&models.ContentItem{}, id).Error
}
