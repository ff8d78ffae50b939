// Package syncqueue stores mutations made while the backend is unreachable
// and replays them, oldest first, once connectivity returns.
//
// Items live in a badger database so they survive restarts. A Service owns
// the drain loop: it listens to a Monitor, dispatches through a Dispatcher
// (normally HTTPDispatcher, guarded by a circuit breaker), and moves items
// that fail MaxRetries times aside as stuck until an operator retries or
// discards them.
//
//	store, _ := syncqueue.OpenStore(syncqueue.StoreConfig{Path: "data/sync"})
//	monitor := syncqueue.NewMonitor(false, logger)
//	svc, _ := syncqueue.NewService(store, dispatcher, monitor, syncqueue.DefaultConfig())
//	defer svc.Close()
//
//	svc.AddToQueue(ctx, syncqueue.ActionCreate, syncqueue.TypeResident, "", resident)
package syncqueue
