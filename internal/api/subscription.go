package api

import (
	"net/http"

	"github.com/dmitrymomot/entitlements/core"
)

type createSubscriptionRequest struct {
	PaymentMethodID string `json:"payment_method_id" validate:"required,max=255"`
	PlanID          string `json:"plan_id" validate:"required,max=64"`
}

func (rt *router) createSubscription(ctx Context, req createSubscriptionRequest) core.Response {
	res, err := rt.svc.Create(ctx, ctx.UserID(), req.PaymentMethodID, req.PlanID)
	if err != nil {
		return rt.fail(ctx, err)
	}
	return core.JSON(res, core.WithJSONStatus(http.StatusCreated))
}

func (rt *router) cancelSubscription(ctx Context, _ struct{}) core.Response {
	res, err := rt.svc.Cancel(ctx, ctx.UserID())
	if err != nil {
		return rt.fail(ctx, err)
	}
	return core.JSON(res)
}

func (rt *router) getEntitlement(ctx Context, _ struct{}) core.Response {
	status, err := rt.svc.GetStatus(ctx, ctx.UserID())
	if err != nil {
		return rt.fail(ctx, err)
	}
	return core.JSON(status)
}
