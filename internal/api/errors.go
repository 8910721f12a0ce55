package api

import (
	"errors"
	"net/http"

	"github.com/dmitrymomot/entitlements/core"
	"github.com/dmitrymomot/entitlements/pkg/quota"
	"github.com/dmitrymomot/entitlements/pkg/subscription"
)

var (
	errPlanNotFound      = core.NewHTTPError(http.StatusNotFound, "plan_not_found")
	errAlreadySubscribed = core.NewHTTPError(http.StatusConflict, "already_subscribed")
	errNoSubscription    = core.NewHTTPError(http.StatusConflict, "no_active_subscription")
	errProvider          = core.NewHTTPError(http.StatusBadGateway, "provider_error").WithMessage("billing provider is unavailable, try again later").AsRetryable()
	errUnknownMetric     = core.NewHTTPError(http.StatusNotFound, "unknown_metric")
	errBadSignature      = core.NewHTTPError(http.StatusBadRequest, "bad_signature").WithMessage("webhook signature verification failed")
	errQuotaExceeded     = core.NewHTTPError(http.StatusTooManyRequests, "quota_exceeded")
)

// httpError maps domain errors to client-facing HTTP errors. The original
// error stays in the chain for logging.
func httpError(err error) error {
	var mapped core.HTTPError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, subscription.ErrPlanNotFound):
		mapped = errPlanNotFound
	case errors.Is(err, subscription.ErrAlreadySubscribed):
		mapped = errAlreadySubscribed
	case errors.Is(err, subscription.ErrNoActiveSubscription):
		mapped = errNoSubscription
	case errors.Is(err, subscription.ErrProviderError):
		mapped = errProvider
	case errors.Is(err, subscription.ErrMissingPaymentMethod),
		errors.Is(err, quota.ErrInvalidAmount):
		mapped = core.ErrUnprocessableEntity.WithMessage(err.Error())
	case errors.Is(err, subscription.ErrMissingUserID),
		errors.Is(err, quota.ErrMissingUserID):
		mapped = core.ErrUnauthorized
	case errors.Is(err, quota.ErrUnknownMetric):
		mapped = errUnknownMetric
	case errors.Is(err, subscription.ErrBadSignature):
		mapped = errBadSignature
	default:
		return err
	}
	return errors.Join(mapped, err)
}
