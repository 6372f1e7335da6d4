// Package service exposes the gateway over HTTP. It maps transport DTOs to
// biz types and nothing more; all availability logic lives in biz.
package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"RelayGate/internal/biz"
	"RelayGate/internal/data"
	"RelayGate/internal/model"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/google/wire"
)

// ProviderSet is service providers.
var ProviderSet = wire.NewSet(NewGatewayService)

// GatewayService handles the HTTP surface: generation, health snapshot and
// administrative reset.
type GatewayService struct {
	gateway *biz.GatewayUsecase
	status  *biz.StatusUsecase
	data    *data.Data
	logger  *log.Helper
}

// NewGatewayService creates a new GatewayService instance.
func NewGatewayService(gateway *biz.GatewayUsecase, status *biz.StatusUsecase, d *data.Data, logger log.Logger) *GatewayService {
	return &GatewayService{
		gateway: gateway,
		status:  status,
		data:    d,
		logger:  log.NewHelper(logger),
	}
}

// GenerateRequest is the POST /v1/generate body.
type GenerateRequest struct {
	Prompt      string `json:"prompt"`
	Mode        string `json:"mode,omitempty"`
	ImageMIME   string `json:"image_mime,omitempty"`
	ImageBase64 string `json:"image_base64,omitempty"`
}

// GenerateResponse is the POST /v1/generate reply.
type GenerateResponse struct {
	Text         string `json:"text"`
	UsedKeyID    string `json:"used_key_id,omitempty"`
	Degraded     bool   `json:"degraded"`
	Category     string `json:"category,omitempty"`
	RetryAfterMs int64  `json:"retry_after_ms,omitempty"`
}

// StatusResponse is the GET /v1/status reply.
type StatusResponse struct {
	Keys []biz.KeyStatus `json:"keys"`
}

// ResetResponse is the POST /v1/reset reply.
type ResetResponse struct {
	KeysReset int `json:"keys_reset"`
}

// Generate handles POST /v1/generate. The biz call runs through the server
// middleware chain via ctx.Middleware, which raw-routed handlers must invoke
// themselves.
func (s *GatewayService) Generate(ctx http.Context) error {
	var in GenerateRequest
	if err := ctx.Bind(&in); err != nil {
		return kerrors.BadRequest("INVALID_BODY", err.Error())
	}

	req := &biz.Request{
		Prompt:    in.Prompt,
		Mode:      model.Mode(in.Mode),
		ImageMIME: in.ImageMIME,
	}
	if in.ImageBase64 != "" {
		img, err := base64.StdEncoding.DecodeString(in.ImageBase64)
		if err != nil {
			return kerrors.BadRequest("INVALID_IMAGE", fmt.Sprintf("image_base64 is not valid base64: %v", err))
		}
		req.ImageData = img
	}

	h := ctx.Middleware(func(c context.Context, _ interface{}) (interface{}, error) {
		result, err := s.gateway.Generate(c, req)
		if err != nil {
			return nil, err
		}
		return &GenerateResponse{
			Text:         result.Text,
			UsedKeyID:    result.UsedKeyID,
			Degraded:     result.Degraded,
			Category:     string(result.Category),
			RetryAfterMs: result.RetryAfter.Milliseconds(),
		}, nil
	})

	out, err := h(ctx, req)
	if err != nil {
		return err
	}
	return ctx.Result(200, out)
}

// Status handles GET /v1/status.
func (s *GatewayService) Status(ctx http.Context) error {
	h := ctx.Middleware(func(c context.Context, _ interface{}) (interface{}, error) {
		return &StatusResponse{Keys: s.status.Status(c)}, nil
	})

	out, err := h(ctx, nil)
	if err != nil {
		return err
	}
	return ctx.Result(200, out)
}

// Reset handles POST /v1/reset.
func (s *GatewayService) Reset(ctx http.Context) error {
	s.logger.Infow("msg", "ResetAll called")

	h := ctx.Middleware(func(c context.Context, _ interface{}) (interface{}, error) {
		return &ResetResponse{KeysReset: s.status.ResetAll(c)}, nil
	})

	out, err := h(ctx, nil)
	if err != nil {
		return err
	}
	return ctx.Result(200, out)
}

// Health handles GET /healthz. When Redis backs the rate-limit window its
// connectivity is reported alongside, without failing the probe: the gateway
// keeps serving on the in-memory window if Redis goes away.
func (s *GatewayService) Health(ctx http.Context) error {
	out := map[string]string{"status": "ok"}
	if rdb := s.data.GetRedisClient(); rdb != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			out["redis"] = "unreachable"
		} else {
			out["redis"] = "ok"
		}
	}
	return ctx.Result(200, out)
}
