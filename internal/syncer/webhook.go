package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hitoshi/cartsync/internal/cart"
	"github.com/hitoshi/cartsync/internal/model"
)

// WebhookRequest はホスト側Webhookに差し込むヘッダーとボディ。
type WebhookRequest struct {
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
}

// PrepareWebhook はホスト側の注文Webhookに同期APIの認証ヘッダーと暗号化ボディを付与するための値を構築する。
// カートトークンのない注文はForceGenerateTokenフックがtrueを返した場合のみトークンを発行する。
// 対象外の注文にはnilを返す。
func (s *Service) PrepareWebhook(ctx context.Context, orderID int64) (*WebhookRequest, error) {
	if orderID <= 0 {
		return nil, nil
	}
	o, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("注文の取得に失敗しました: %w", err)
	}
	if o == nil {
		return nil, nil
	}

	token, err := s.orders.GetMeta(ctx, orderID, model.MetaCartToken)
	if err != nil {
		return nil, fmt.Errorf("カートトークンの取得に失敗しました: %w", err)
	}
	if token == "" && s.hooks.ForceGenerateToken != nil && s.hooks.ForceGenerateToken(orderID) {
		// 通常は発行しない。過去の注文がステータス変更のたびに同期されるのを防ぐ
		if token, err = cart.GenerateToken(); err != nil {
			return nil, err
		}
		if err := s.SetOrderCartToken(ctx, orderID, token); err != nil {
			return nil, err
		}
		s.logger.Info("Webhook送信のためカートトークンを発行しました", slog.Int64("order_id", orderID))
	}
	if token == "" {
		return nil, nil
	}

	payload, err := s.mapper.MapOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, nil
	}

	blob, err := s.codec.Encrypt(payload)
	if err != nil {
		return nil, fmt.Errorf("送信データの暗号化に失敗しました: %w", err)
	}
	body, err := json.Marshal(map[string]string{"data": blob})
	if err != nil {
		return nil, fmt.Errorf("Webhookボディの生成に失敗しました: %w", err)
	}

	headers := s.syncHeaders(token, payload.ClientDetails.UserIP)
	headers["app-id"] = s.cfg.AppID
	headers["app_id"] = s.cfg.AppID
	headers["Content-Type"] = "application/json"

	return &WebhookRequest{Headers: headers, Body: string(body)}, nil
}
