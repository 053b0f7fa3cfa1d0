// Package reactor provides the single-threaded event loop that drives the
// ingest pipeline.
//
// Every packet arrival, periodic tick and emission path of a publisher runs on
// one Loop goroutine, so publisher state needs no locking. Components receive
// the Loop explicitly at construction; there is no process-wide instance.
//
//	loop := reactor.NewLoop(reactor.RealTimeProvider{})
//	timer := loop.Every(500*time.Millisecond, publisher.OnTimer)
//	defer timer.Stop()
//	go loop.Run(ctx)
//	loop.Post(func() { publisher.HandleRTP(pkt) })
//
// # Deterministic Testing
//
// A Loop does not need to be running. Tests inject a TimeProvider whose Now
// they control and call Advance to fire due timers and Drain to execute
// queued tasks on the test goroutine.
package reactor
