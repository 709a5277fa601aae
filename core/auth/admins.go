package auth

import (
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// Admins 管理员账号：用户名 -> bcrypt hash，来自 ADMIN_USERS
type Admins map[string]string

var (
	decoyOnce sync.Once
	decoyHash []byte
)

// decoy 未知用户也做一次 bcrypt 比较，响应时间不暴露用户名是否存在
func decoy() []byte {
	decoyOnce.Do(func() {
		decoyHash, _ = bcrypt.GenerateFromPassword([]byte("songcatalog-decoy"), bcrypt.DefaultCost)
	})
	return decoyHash
}

// Has reports whether username is a configured admin.
func (a Admins) Has(username string) bool {
	_, ok := a[username]
	return ok
}

// Verify checks the password of a configured admin.
func (a Admins) Verify(username, password string) bool {
	hash, ok := a[username]
	if !ok {
		_ = bcrypt.CompareHashAndPassword(decoy(), []byte(password))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// HashPassword 生成 ADMIN_USERS 使用的 bcrypt hash
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}
