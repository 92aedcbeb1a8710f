/*
Package monitoring provides Prometheus metrics for the gateway.

Each Metrics instance owns its own registry; the server exposes it at
/metrics via promhttp. Collected series cover HTTP requests, live sessions,
WebSocket traffic, and generation outcomes.

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{})))
*/
package monitoring
