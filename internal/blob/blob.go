package blob

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Store — дисковое хранилище медиафайлов. Каталог хранит только метаданные,
// байты живут здесь; локатор (path) — непрозрачная строка для остального кода.
type Store struct {
	dir string
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blob dir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Save кладёт содержимое под именем "<fileID>_<origName>" и возвращает локатор.
func (s *Store) Save(fileID, origName string, r io.Reader) (string, error) {
	name := fileID + "_" + sanitize(origName)
	path := filepath.Join(s.dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("blob create: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("blob write: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("blob close: %w", err)
	}
	return path, nil
}

func (s *Store) Open(path string) (io.ReadSeekCloser, error) {
	return os.Open(path)
}

// Remove удаляет blob. Отсутствующий файл — не ошибка (запись каталога могла
// пережить частично выполненное удаление); всё остальное отдаётся наверх.
func (s *Store) Remove(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// sanitize — не даём имени файла вытащить blob из каталога.
func sanitize(name string) string {
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, string(os.PathSeparator), "_")
	if name == "." || name == ".." || name == "" {
		return "file"
	}
	return name
}
