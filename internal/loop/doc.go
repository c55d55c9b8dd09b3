// Package loop provides the cooperative, single-threaded event loop that owns
// all mutable state of the completion core.
//
// Components never lock their own state. Instead every mutation is expressed
// as a task posted to a Loop; tasks run one at a time, in posting order, on
// whichever goroutine is currently driving the loop (Run or Drain). Provider
// adapters and timers live on other goroutines and only ever call Post.
//
// Time is abstracted behind Clock so that tests can drive timers manually:
//
//	clock := loop.NewFakeClock(time.Unix(0, 0))
//	l := loop.New()
//	clock.AfterFunc(100*time.Millisecond, func() { l.Post(onTimeout) })
//	clock.Advance(100 * time.Millisecond)
//	l.Drain()
package loop
