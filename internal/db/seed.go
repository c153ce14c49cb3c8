package db

import (
	"mediactl/internal/devsvc"
	"mediactl/internal/logs"
	"mediactl/internal/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Seed — первичный кабинет администратора, если таблица пуста.
// Токен генерируется и один раз печатается в лог: без него в систему не войти.
func Seed(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	var count int64
	if err := db.Model(&models.Account{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("admin"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	token := devsvc.NewToken()
	admin := models.Account{
		FullName:       "Administrator",
		Username:       "admin",
		Role:           models.RoleAdmin,
		HashedPassword: string(hash),
		Token:          token,
	}
	if err := db.Create(&admin).Error; err != nil {
		return err
	}
	logs.Logger.Warnf("seeded admin account; token: %s (change the default password)", token)
	return nil
}
