package utils

import (
	"crypto/rand"
	"math/big"
)

const (
	passwordLetters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	passwordDigits  = "0123456789"
	// PasswordSymbols 注册密码允许的符号集合（与目标站点的密码规则保持一致）。
	PasswordSymbols = "!@#$%^&*"

	DefaultPasswordLength = 12
)

// GeneratePassword 生成注册用随机密码。useSymbols=false 时只含字母和数字。
// 使用 crypto/rand，避免并发 worker 之间产生相同密码。
func GeneratePassword(length int, useSymbols bool) string {
	if length <= 0 {
		length = DefaultPasswordLength
	}
	charset := passwordLetters + passwordDigits
	if useSymbols {
		charset += PasswordSymbols
	}

	max := big.NewInt(int64(len(charset)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand 基本不会失败；兜底用固定字符，保证长度不变。
			out[i] = charset[0]
			continue
		}
		out[i] = charset[n.Int64()]
	}
	return string(out)
}
