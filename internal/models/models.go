package models

import (
	"time"

	"gorm.io/gorm"
)

// Статусы устройства. Только active проходит авторизацию устройства.
const (
	DeviceUnverified = "unverified"
	DeviceActive     = "active"
	DeviceBlocked    = "blocked"
)

// Роли кабинета (на операторских ручках, к протоколу устройств отношения не имеют).
const (
	RoleAdmin         = "admin"
	RoleOperator      = "operator"
	RoleVideoUploader = "video_uploader"
)

// Account — владелец устройств и контента.
// Инвариант: OldToken и TokenChangedAt либо оба заданы, либо оба пусты.
type Account struct {
	gorm.Model
	FullName       string
	Username       string `gorm:"uniqueIndex;size:191"`
	HashedPassword string `json:"-"`
	Role           string `gorm:"default:video_uploader"`

	Token          string     `gorm:"uniqueIndex;size:191" json:"-"`
	OldToken       *string    `gorm:"uniqueIndex;size:191" json:"-"`
	TokenChangedAt *time.Time `json:"-"`
}

func (Account) TableName() string { return "users" }

// Device — плеер в кабинете владельца. DeviceID уникален в пределах кабинета.
type Device struct {
	gorm.Model
	DeviceID    string `gorm:"column:device_id;uniqueIndex:ux_device_owner,priority:1;size:191"`
	Description string
	Status      string `gorm:"default:unverified"`
	UserID      uint   `gorm:"uniqueIndex:ux_device_owner,priority:2;index"`
}

// ContentItem — запись каталога; сам файл лежит в blob-хранилище по Path.
type ContentItem struct {
	gorm.Model
	FileID      string `gorm:"column:file_id;uniqueIndex;size:191"`
	Path        string `gorm:"column:url"`
	Description string
	UserID      uint   `gorm:"index"`
}

func (ContentItem) TableName() string { return "files" }
