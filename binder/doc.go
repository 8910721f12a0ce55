// Package binder decodes and validates HTTP request bodies for core.Wrap.
//
//	core.Wrap(h, core.WithBinders[core.Context, Req](
//		binder.BindJSON(),
//		binder.Validate(binder.NewValidator()),
//	))
package binder
