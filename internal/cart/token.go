package cart

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// GenerateToken は新しいカートトークンを生成する。
// UUID v4を生成し、そのMD5を16進32文字で返す。保存されるのはハッシュ値のみで元の乱数には戻せない。
func GenerateToken() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("カートトークンの生成に失敗しました: %w", err)
	}
	sum := md5.Sum([]byte(id.String()))
	return hex.EncodeToString(sum[:]), nil
}

// FormatUserIP はカンマ区切りで複数のIPが含まれる場合に先頭のみを返す。
func FormatUserIP(raw string) string {
	first, _, _ := strings.Cut(raw, ",")
	return strings.TrimSpace(first)
}
