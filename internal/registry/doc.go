// Package registry owns provider lifecycles.
//
// Each registered provider moves through the state machine
//
//	Stopped    -> Starting    Start
//	Starting   -> Running     ready signal
//	Starting   -> Down        start failed
//	Running    -> Restarting  heartbeat failed or provider reported down
//	Restarting -> Running     ready signal during a restart attempt
//	Restarting -> Down        restart attempts exhausted
//	Down       -> Starting    manual restart
//	any        -> Stopped     Stop
//
// The registry is confined to the core loop: every method must be called
// from a loop task, and provider signals are posted onto the loop before they
// touch any state. Heartbeat and restart timers come from a loop.Clock so
// tests can drive them deterministically.
package registry
