/*
Package pool provides a generic, resizable pool of reusable handles.

A Pool lends handles produced by a Factory. It moves through the states
Uninitialized, Initialized, Resizing and Shutdown:

	p := pool.New("db-read", pool.ConnectionBounds, openConn, pool.WithDestroy(closeConn))
	if err := p.Initialize(4); err != nil { ... }
	conn, err := p.Acquire()
	defer p.Release(conn)

Acquire blocks until a handle is free; AcquireContext bounds the wait. Release
hands the handle straight to the longest waiting caller, if any.

# Resizing

Resize grows by creating handles and shrinks by destroying idle handles first.
Handles still on loan when the pool shrinks are destroyed as they come back,
so Available()+Active() always equals Capacity(). A failed factory call rolls
the pool back to the size it had before.

Sizes outside the pool's Bounds are rejected. Sizes above twice GOMAXPROCS are
allowed but logged.

# Configuration

A Binding resizes a pool whenever its configuration key changes:

	bus.Subscribe(pool.Bind(p, store, config.KeyDatabaseThreads, 4))

Token pools (NewTokenPool) lend plain counters and are used to cap how many
scan or processing tasks run at once.
*/
package pool
