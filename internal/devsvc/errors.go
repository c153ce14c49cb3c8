package devsvc

import (
	"errors"
	"fmt"
)

// Таксономия отказов протокола устройств. Хендлеры транслируют их в
// {success:false, message} либо в HTTP-статус, но никогда в "успех с пустым телом".
var (
	ErrInvalidCredential = errors.New("invalid credential")
	ErrUnknownDevice     = errors.New("unknown device")
	ErrDuplicateDevice   = errors.New("duplicate device")
	// окно после ротации истекло; старый токен вычищен и больше не существует
	ErrGracePeriodExpired = errors.New("grace period expired")
	// нарушен инвариант old_token <-> token_changed_at; это баг, а не ошибка клиента
	ErrRotationStateInconsistent = errors.New("rotation state inconsistent")
	ErrContentMissing            = errors.New("content item missing")
	// транзиент: устройству безопасно повторить тот же запрос
	ErrStoreUnavailable = errors.New("backing store unavailable")
)

// NotActiveError — устройство найдено, но не в статусе active.
type NotActiveError struct {
	Status string
}

func (e *NotActiveError) Error() string {
	return fmt.Sprintf("device not active: %s", e.Status)
}

// BlobDeleteError — blob не удалился при удалении записи каталога.
// Запись остаётся, ошибка обязана дойти до вызывающего.
type BlobDeleteError struct {
	Path string
	Err  error
}

func (e *BlobDeleteError) Error() string {
	return fmt.Sprintf("blob delete failed: %s: %v", e.Path, e.Err)
}

func (e *BlobDeleteError) Unwrap() error { return e.Err }
