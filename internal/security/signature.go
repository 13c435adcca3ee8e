package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign はdataに対するHMAC-SHA256を16進文字列で返す。
func Sign(data, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

// Verify はsignatureがdataの正しい署名かを定数時間で比較する。
// 16進として解釈できない署名は不一致とする。
func Verify(data, signature, secret string) bool {
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	want, _ := hex.DecodeString(Sign(data, secret))
	return hmac.Equal(got, want)
}
