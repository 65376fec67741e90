// Package server assembles the browser source service: the headless engine
// on its UI-affinity queue, the source plugin, the software canvas, and the
// HTTP control API with its vendor socket and Prometheus endpoint.
package server
