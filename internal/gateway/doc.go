// Package gateway owns the lifecycle of a running dynproxy instance.
//
// A Gateway serves the proxy listener and, when configured, the admin
// listener. Requests are dispatched to an immutable snapshot holding the
// reverse proxy and its rate limiter; Reload builds a new snapshot and
// swaps it in atomically, so in-flight requests finish on the snapshot
// they started with.
//
//	gw, err := gateway.New(cfg,
//	    gateway.WithLogger(logger),
//	    gateway.WithMiddlewares(middlewares...),
//	    gateway.WithAdminHandler(adminRouter),
//	)
//	if err != nil {
//	    logger.Fatal("failed to create gateway", observability.Error(err))
//	}
//
//	if err := gw.Start(ctx); err != nil {
//	    logger.Fatal("failed to start gateway", observability.Error(err))
//	}
//	defer gw.Stop(ctx)
package gateway
