// Package session 録画セッションのメタデータディレクトリを管理する
package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Store はセッションディレクトリの作成・改名・削除を担う
// 1セッション = 1ディレクトリという単純な構成で、録画内容そのものは
// ワーカースクリプトが書き込む
type Store struct {
	dir string
}

// NewStore は新しいStoreを作成する
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Create はセッションディレクトリを作成する
// 同名のセッションが既に存在する場合はエラーを返す
func (s *Store) Create(name string) error {
	if err := validateName(name); err != nil {
		return err
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("セッション保存先の作成に失敗: %w", err)
	}

	path := filepath.Join(s.dir, name)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("セッション %s は既に存在します", name)
	}

	if err := os.Mkdir(path, 0755); err != nil {
		return fmt.Errorf("セッションの作成に失敗: %w", err)
	}
	return nil
}

// Rename はセッションを改名する
func (s *Store) Rename(oldName, newName string) error {
	if err := validateName(oldName); err != nil {
		return err
	}
	if err := validateName(newName); err != nil {
		return err
	}

	oldPath := filepath.Join(s.dir, oldName)
	if _, err := os.Stat(oldPath); os.IsNotExist(err) {
		return fmt.Errorf("セッション %s が見つかりません", oldName)
	}

	newPath := filepath.Join(s.dir, newName)
	if _, err := os.Stat(newPath); err == nil {
		return fmt.Errorf("セッション %s は既に存在します", newName)
	}

	if err := os.Rename(oldPath, newPath); err != nil {
		return fmt.Errorf("セッションの改名に失敗: %w", err)
	}
	return nil
}

// Delete はセッションを削除する
func (s *Store) Delete(name string) error {
	if err := validateName(name); err != nil {
		return err
	}

	path := filepath.Join(s.dir, name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("セッション %s が見つかりません", name)
	}

	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("セッションの削除に失敗: %w", err)
	}
	return nil
}

// List はセッション名の一覧を名前順で返す
// 保存先ディレクトリが存在しない場合は空のリストを返す
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("セッション一覧の取得に失敗: %w", err)
	}

	names := []string{}
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// NewName は重複しにくいデフォルトのセッション名を生成する
func (s *Store) NewName() string {
	return "Capture_" + uuid.New().String()[:8]
}

// validateName はセッション名の妥当性を検証する
func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("セッション名が空です")
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("無効なセッション名: %s", name)
	}
	return nil
}
