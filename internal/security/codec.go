package security

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gowebpki/jcs"
	"github.com/hitoshi/cartsync/internal/model"
)

const (
	// payloadDelimiter はiv・HMAC・暗号文を連結する区切り文字列。リモート側との送信契約。
	payloadDelimiter = ":retainful:"
	// cipherKeySize はAES-256の鍵長。
	cipherKeySize = 32
)

// Codec は送信データの暗号化と認証付き復号を行う。
// AES-256-CBCで暗号化し、暗号文に対するHMAC-SHA256を付与する（Encrypt-then-MAC）。
type Codec struct {
	secret string
}

// NewCodec は指定シークレットを使用するCodecを生成する。
func NewCodec(secret string) *Codec {
	return &Codec{secret: secret}
}

// Encrypt はpayloadを暗号化してbase64文字列を返す。
func (c *Codec) Encrypt(payload any) (string, error) {
	return Encrypt(payload, c.secret)
}

// Decrypt はEncryptが生成した文字列を検証・復号する。
func (c *Codec) Decrypt(blob string) ([]byte, error) {
	return Decrypt(blob, c.secret)
}

// Encrypt はpayloadを暗号化する。
// 構造化データはRFC 8785の正規化JSONにシリアライズしてから暗号化する。
// 出力形式: base64( hex(iv) + 区切り + hex(hmac) + 区切り + hex(暗号文) )
// HMACは暗号文のみを対象とし、ivは含めない。
func Encrypt(payload any, secret string) (string, error) {
	plaintext, err := serializePayload(payload)
	if err != nil {
		return "", fmt.Errorf("送信データのシリアライズに失敗しました: %w", err)
	}

	block, err := aes.NewCipher(deriveCipherKey(secret))
	if err != nil {
		return "", fmt.Errorf("暗号器の初期化に失敗しました: %w", err)
	}

	iv := make([]byte, block.BlockSize())
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("ivの生成に失敗しました: %w", err)
	}

	padded := pkcs7Pad(plaintext, block.BlockSize())
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	mac := computeMAC(ciphertext, secret)

	packed := strings.Join([]string{
		hex.EncodeToString(iv),
		hex.EncodeToString(mac),
		hex.EncodeToString(ciphertext),
	}, payloadDelimiter)

	return base64.StdEncoding.EncodeToString([]byte(packed)), nil
}

// Decrypt はEncryptの出力を復号する。
// HMACを定数時間で比較し、一致しない場合は復号を試みずにErrInvalidPayloadを返す。
// 形式不正・パディング不正などのあらゆる失敗もErrInvalidPayloadとなり、部分的な平文は返さない。
func Decrypt(blob, secret string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, model.ErrInvalidPayload
	}

	parts := strings.Split(string(raw), payloadDelimiter)
	if len(parts) != 3 {
		return nil, model.ErrInvalidPayload
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil || len(iv) != aes.BlockSize {
		return nil, model.ErrInvalidPayload
	}
	mac, err := hex.DecodeString(parts[1])
	if err != nil {
		return nil, model.ErrInvalidPayload
	}
	ciphertext, err := hex.DecodeString(parts[2])
	if err != nil {
		return nil, model.ErrInvalidPayload
	}

	if !hmac.Equal(computeMAC(ciphertext, secret), mac) {
		return nil, model.ErrInvalidPayload
	}

	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, model.ErrInvalidPayload
	}

	block, err := aes.NewCipher(deriveCipherKey(secret))
	if err != nil {
		return nil, model.ErrInvalidPayload
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	unpadded, ok := pkcs7Unpad(plaintext, aes.BlockSize)
	if !ok {
		return nil, model.ErrInvalidPayload
	}
	return unpadded, nil
}

// serializePayload はpayloadを暗号化対象のバイト列に変換する。
// 文字列・バイト列はそのまま、それ以外は正規化JSONにする。
func serializePayload(payload any) ([]byte, error) {
	switch v := payload.(type) {
	case nil:
		return nil, model.ErrEmptyPayload
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return jcs.Transform(encoded)
}

// deriveCipherKey はシークレットを32バイトの鍵に整形する。
// 短い場合はゼロ埋め、長い場合は切り詰める。
func deriveCipherKey(secret string) []byte {
	key := make([]byte, cipherKeySize)
	copy(key, secret)
	return key
}

func computeMAC(data []byte, secret string) []byte {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(data)
	return h.Sum(nil)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(append([]byte{}, data...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, bool) {
	if len(data) == 0 {
		return nil, false
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, false
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, false
		}
	}
	return data[:len(data)-n], true
}
