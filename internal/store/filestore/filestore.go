// Package filestore 维护两个平铺文件：凭据清册 accounts.txt（每行 email:password，
// 只追加不改写）与邀请链接缓存 .last_link（整文件覆写）。
package filestore

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

type Files struct {
	mu           sync.Mutex
	accountsPath string
	linkPath     string
}

func New(accountsPath, linkPath string) (*Files, error) {
	if accountsPath == "" {
		return nil, errors.New("accounts path is required")
	}
	if linkPath == "" {
		return nil, errors.New("link path is required")
	}
	return &Files{accountsPath: accountsPath, linkPath: linkPath}, nil
}

// AppendAccount 成功一个写一个，O_APPEND 加进程内互斥保证行不交错。
func (f *Files) AppendAccount(email, password string) error {
	if email == "" || password == "" {
		return errors.New("email and password are required")
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if dir := filepath.Dir(f.accountsPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	file, err := os.OpenFile(f.accountsPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	if _, err := fmt.Fprintf(file, "%s:%s\n", email, password); err != nil {
		return err
	}
	return file.Sync()
}

// CountAccounts 数清册里已有多少条凭据，空行不算。文件不存在按 0 处理。
func (f *Files) CountAccounts() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.Open(f.accountsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	defer file.Close()

	count := 0
	sc := bufio.NewScanner(file)
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) != "" {
			count++
		}
	}
	return count, sc.Err()
}

// LoadLink 读上次缓存的邀请链接，没有或为空就返回 fallback。
func (f *Files) LoadLink(fallback string) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.linkPath)
	if err != nil {
		return fallback
	}
	link := strings.TrimSpace(string(data))
	if link == "" {
		return fallback
	}
	return link
}

// SaveLink 覆写缓存。失败只影响下次的默认值，调用方按非致命处理。
func (f *Files) SaveLink(link string) error {
	if strings.TrimSpace(link) == "" {
		return errors.New("link is empty")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return os.WriteFile(f.linkPath, []byte(strings.TrimSpace(link)+"\n"), 0o644)
}
