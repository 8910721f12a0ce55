package api

import (
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/entitlements/core"
	"github.com/dmitrymomot/entitlements/pkg/entitlement"
	"github.com/dmitrymomot/entitlements/pkg/quota"
)

type usageRequest struct {
	Amount int64 `json:"amount" validate:"required,gt=0"`
}

type usageResponse struct {
	Allowed bool             `json:"allowed"`
	Metric  quota.Metric     `json:"metric"`
	Tier    entitlement.Tier `json:"tier"`
	Used    int64            `json:"used"`
	Limit   int64            `json:"limit"`
}

// consumeUsage answers 200 when the action may proceed and 429 when the
// free-tier limit would be exceeded. Daily denials carry reset_at and a
// Retry-After header; the lifetime photo cap is reported as permanent.
func (rt *router) consumeUsage(ctx Context, req usageRequest) core.Response {
	metric, err := quota.ParseMetric(chi.URLParam(ctx.Request(), "metric"))
	if err != nil {
		return rt.fail(ctx, err)
	}

	d, err := rt.quota.CheckAndConsume(ctx, ctx.UserID(), metric, req.Amount)
	if err != nil {
		return rt.fail(ctx, err)
	}

	if d.Allowed {
		return core.JSON(usageResponse{
			Allowed: true,
			Metric:  d.Metric,
			Tier:    d.Tier,
			Used:    d.Used,
			Limit:   d.Limit,
		})
	}

	details := map[string]any{
		"metric": d.Metric,
		"limit":  d.Limit,
		"used":   d.Used,
	}
	if reason := d.Reason; reason != nil && reason.ResetAt != nil {
		details["reset_at"] = reason.ResetAt.UTC().Format(time.RFC3339)
		retry := max(int64(time.Until(*reason.ResetAt).Seconds()), 1)
		ctx.ResponseWriter().Header().Set("Retry-After", strconv.FormatInt(retry, 10))
	} else {
		details["permanent"] = true
	}

	msg := "quota exceeded"
	if d.Reason != nil {
		msg = d.Reason.Error()
	}
	return core.JSONError(errQuotaExceeded.WithMessage(msg), core.WithErrorDetails(details))
}
