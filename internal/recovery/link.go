// Package recovery は放棄カートのリカバリーURLの生成と検証を行う。
package recovery

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/hitoshi/cartsync/internal/model"
	"github.com/hitoshi/cartsync/internal/security"
)

// endpointName はサイト側のリカバリー受付エンドポイント名。
const endpointName = "retainful"

// linkData はリカバリーURLのtokenパラメータに埋め込むデータ。
type linkData struct {
	CartToken string `json:"cart_token"`
}

// Builder はサイト固有のシークレットで署名したリカバリーURLを生成する。
type Builder struct {
	siteURL          string
	secret           string
	prettyPermalinks bool
}

// NewBuilder はBuilderを生成する。siteURLの末尾のスラッシュは除去する。
func NewBuilder(siteURL, secret string, prettyPermalinks bool) *Builder {
	return &Builder{
		siteURL:          strings.TrimRight(siteURL, "/"),
		secret:           secret,
		prettyPermalinks: prettyPermalinks,
	}
}

// BuildLink はカートトークンからリカバリーURLを生成する。
// {"cart_token": ...} をbase64化したものをtoken、そのHMAC-SHA256をhashとして付与する。
func (b *Builder) BuildLink(cartToken string) (string, error) {
	if cartToken == "" {
		return "", model.ErrEmptyPayload
	}

	raw, err := json.Marshal(linkData{CartToken: cartToken})
	if err != nil {
		return "", fmt.Errorf("リカバリーデータのシリアライズに失敗しました: %w", err)
	}
	token := base64.StdEncoding.EncodeToString(raw)

	endpoint, err := b.endpointURL()
	if err != nil {
		return "", err
	}
	q := endpoint.Query()
	q.Set("token", token)
	q.Set("hash", security.Sign(token, b.secret))
	endpoint.RawQuery = q.Encode()
	return endpoint.String(), nil
}

// ParseLink はリカバリーURLのtoken・hashを検証し、カートトークンを返す。
// 署名不一致・デコード失敗・トークン欠落はいずれもErrTamperedLinkとする。
func (b *Builder) ParseLink(token, hash string) (string, error) {
	if token == "" || hash == "" || !security.Verify(token, hash, b.secret) {
		return "", model.ErrTamperedLink
	}

	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrTamperedLink, err)
	}
	var data linkData
	if err := json.Unmarshal(raw, &data); err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrTamperedLink, err)
	}
	if data.CartToken == "" {
		return "", model.ErrTamperedLink
	}
	return data.CartToken, nil
}

// endpointURL はパーマリンク設定に応じたリカバリー受付URLを返す。
//
//	有効: https://example.com/wc-api/retainful
//	無効: https://example.com?wc-api=retainful
func (b *Builder) endpointURL() (*url.URL, error) {
	if b.siteURL == "" {
		return nil, fmt.Errorf("サイトURLが設定されていません")
	}
	u, err := url.Parse(b.siteURL)
	if err != nil {
		return nil, fmt.Errorf("サイトURLの解析に失敗しました: %w", err)
	}
	if b.prettyPermalinks {
		u.Path = strings.TrimRight(u.Path, "/") + "/wc-api/" + endpointName
		return u, nil
	}
	q := u.Query()
	q.Set("wc-api", endpointName)
	u.RawQuery = q.Encode()
	return u, nil
}
