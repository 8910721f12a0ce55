// Package core turns typed handler functions into http.HandlerFunc values and
// renders their results as JSON.
//
// A handler receives a Context and a request value already decoded by one or
// more binders, and returns a Response:
//
//	type UsageRequest struct {
//		Amount int64 `json:"amount" validate:"required,gt=0"`
//	}
//
//	func consume(ctx core.Context, req UsageRequest) core.Response {
//		d, err := engine.CheckAndConsume(ctx, userID, metric, req.Amount)
//		if err != nil {
//			return core.JSONError(err)
//		}
//		return core.JSON(d)
//	}
//
//	r.Post("/usage/{metric}", core.Wrap(consume,
//		core.WithBinders[core.Context, UsageRequest](binder.BindJSON(), binder.Validate(v)),
//	))
//
// Errors are rendered as {"error": {"code", "message"}}. HTTPError carries the
// status code; anything else becomes a 500 with a generic message so internal
// details never reach the client.
package core
