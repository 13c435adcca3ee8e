// Package cart はカートトークンの発行・カート状態の追跡・カート内容のフィンガープリント計算を提供する。
package cart

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"

	"github.com/gowebpki/jcs"
	"github.com/hitoshi/cartsync/internal/model"
)

// Fingerprint はカート内容のハッシュを返す。カートが空の場合は空文字を返す。
// 明細はカートキーで索引したRFC 8785の正規化JSONにし、小数桁数で整形した合計金額を連結してSHA-256を取る。
// 商品オブジェクト参照（CartItem.Product）はJSONに含まれないため、同一内容なら常に同じ値になる。
func Fingerprint(c *model.Cart, priceDecimals int32) string {
	if c.IsEmpty() {
		return ""
	}

	items := make(map[string]model.CartItem, len(c.Items))
	for i, item := range c.Items {
		key := item.Key
		if key == "" {
			key = fallbackItemKey(i)
		}
		items[key] = item
	}

	encoded, err := json.Marshal(items)
	if err != nil {
		return ""
	}
	canonical, err := jcs.Transform(encoded)
	if err != nil {
		return ""
	}

	h := sha256.New()
	h.Write(canonical)
	h.Write([]byte(c.Total.StringFixed(priceDecimals)))
	return hex.EncodeToString(h.Sum(nil))
}

// fallbackItemKey はカートキーを持たない明細に位置ベースのキーを割り当てる。
func fallbackItemKey(i int) string {
	return "#" + strconv.Itoa(i)
}
