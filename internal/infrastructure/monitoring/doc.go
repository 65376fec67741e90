/*
Package monitoring provides Prometheus metrics for the browser source.

# Overview

Metrics cover the HTTP control API, the envelope bridge between the two
engine roles, painted frames and texture churn, audio republishing, page
console relays and the source lifecycle.

All collectors register on the prometheus.Registerer passed to NewMetrics,
so tests can use a private registry. Every recording method accepts a nil
receiver.

# Usage

	metrics := monitoring.NewMetrics(prometheus.DefaultRegisterer)
	router.Use(monitoring.Middleware(metrics, "/metrics"))

	timer := monitoring.NewTimer(metrics, "source", "create_browser")
	// ... perform operation ...
	timer.Stop("success")

# Metrics Endpoint

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
*/
package monitoring
