/*
Package server owns the HTTP listener and rebinds it when the configured
address changes.

A Manager runs at most one listener at a time. Routes are supplied once, as a
function, and replayed onto a fresh gorilla/mux router on every start so that
nothing is lost across a rebind:

	m := server.NewManager(store)
	m.SetRouteRegistrar(h.RegisterRoutes)
	m.Use(middleware.Logger(cfg), middleware.Metrics)
	if err := m.Start(host, port); err != nil { ... }

Start binds synchronously, so an address already in use is reported to the
caller. Serving then happens on its own goroutine.

# Reconfiguration

Reconfigure stops the current listener and starts one on the new address.
Only one reconfiguration runs at a time; a second attempt made meanwhile
fails with ErrReconfigureInProgress rather than waiting. When the new address
cannot be bound the previous one is restored. If that fails too, the manager
is left stopped and the error is logged.

A Manager registered on the configuration bus follows server_host and
server_port. The rebind runs on a separate goroutine, which lets a request
served by the listener itself change the address.
*/
package server
