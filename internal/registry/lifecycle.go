package registry

import (
	"fmt"

	"github.com/dshills/codeintel/internal/provider"
)

// sink marshals provider signals onto the loop. It is bound to one instance
// generation; signals from a replaced instance are dropped.
type sink struct {
	r    *Registry
	name string
	gen  uint64
}

func (s *sink) Ready(_ string, languages []string) {
	langs := append([]string(nil), languages...)
	s.r.loop.Post(func() { s.r.handleReady(s.name, s.gen, langs) })
}

func (s *sink) Response(_ string, id int64, body any) {
	s.r.loop.Post(func() { s.r.handleResponse(s.name, s.gen, id, body) })
}

func (s *sink) Down(_ string, err error) {
	s.r.loop.Post(func() { s.r.handleDown(s.name, s.gen, err) })
}

func (r *Registry) current(name string, gen uint64) *entry {
	e, ok := r.entries[name]
	if !ok || e.gen != gen {
		r.logger.WithFields(map[string]any{"provider": name, "generation": gen}).
			Debug("dropping signal from replaced instance")
		return nil
	}
	return e
}

func (r *Registry) handleReady(name string, gen uint64, languages []string) {
	e := r.current(name, gen)
	if e == nil {
		return
	}
	switch e.status {
	case provider.StatusStarting, provider.StatusRestarting:
		e.languages = provider.NewLanguageSet(languages...)
		r.cancelRestart(e)
		e.attemptsLeft = r.cfg.MaxRestartAttempts
		r.setStatus(e, provider.StatusRunning, nil)
		r.armHeartbeat(e)
	case provider.StatusRunning:
		e.languages = provider.NewLanguageSet(languages...)
		r.logger.WithField("provider", name).Debug("duplicate ready signal")
	default:
		r.logger.WithFields(map[string]any{"provider": name, "status": e.status.String()}).
			Debug("ignoring ready signal")
	}
}

func (r *Registry) handleResponse(name string, gen uint64, id int64, body any) {
	if r.current(name, gen) == nil || r.responses == nil {
		return
	}
	r.responses(name, id, body)
}

func (r *Registry) handleDown(name string, gen uint64, err error) {
	e := r.current(name, gen)
	if e == nil {
		return
	}
	switch e.status {
	case provider.StatusRunning:
		r.beginRestart(e, err)
	case provider.StatusStarting:
		r.fail(e, err)
	default:
		r.logger.WithFields(map[string]any{"provider": name, "status": e.status.String()}).
			Debug("ignoring down signal: %v", err)
	}
}

func (r *Registry) armHeartbeat(e *entry) {
	r.cancelHeartbeat(e)
	token := e.heartbeatToken
	name := e.name
	e.heartbeat = r.clock.AfterFunc(r.cfg.HeartbeatInterval, func() {
		r.loop.Post(func() { r.heartbeatTick(name, token) })
	})
}

func (r *Registry) heartbeatTick(name string, token uint64) {
	e, ok := r.entries[name]
	if !ok || e.heartbeatToken != token || e.status != provider.StatusRunning {
		return
	}
	e.heartbeat = nil

	alive := false
	inst := e.instance
	err := provider.Safe(func() error {
		alive = inst.IsAlive()
		return nil
	})
	if err == nil && alive {
		r.armHeartbeat(e)
		return
	}
	if err == nil {
		err = errHeartbeatFailed
	}
	r.beginRestart(e, err)
}

func (r *Registry) beginRestart(e *entry, cause error) {
	r.cancelHeartbeat(e)
	e.attemptsLeft = r.cfg.MaxRestartAttempts
	r.setStatus(e, provider.StatusRestarting, cause)
	r.armRestart(e)
}

func (r *Registry) armRestart(e *entry) {
	r.cancelRestart(e)
	token := e.restartToken
	name := e.name
	e.restart = r.clock.AfterFunc(r.cfg.RestartInterval, func() {
		r.loop.Post(func() { r.restartTick(name, token) })
	})
}

func (r *Registry) restartTick(name string, token uint64) {
	e, ok := r.entries[name]
	if !ok || e.restartToken != token || e.status != provider.StatusRestarting {
		return
	}
	e.restart = nil

	if e.attemptsLeft <= 0 {
		r.setStatus(e, provider.StatusDown, fmt.Errorf("%w (%d)", errRestartExhausted, r.cfg.MaxRestartAttempts))
		if e.instance != nil {
			_ = provider.Safe(e.instance.Shutdown)
		}
		return
	}

	e.attemptsLeft--
	e.restarts++
	log := r.logger.WithFields(map[string]any{"provider": name, "attempts_left": e.attemptsLeft})
	log.Info("restart attempt")

	inst := e.instance
	if err := provider.Safe(inst.Shutdown); err != nil {
		log.Debug("shutdown before restart: %v", err)
	}
	if err := provider.Safe(inst.Start); err != nil {
		log.Debug("restart attempt failed: %v", err)
	}
	r.armRestart(e)
}

func (r *Registry) cancelHeartbeat(e *entry) {
	e.heartbeatToken++
	if e.heartbeat != nil {
		e.heartbeat.Stop()
		e.heartbeat = nil
	}
}

func (r *Registry) cancelRestart(e *entry) {
	e.restartToken++
	if e.restart != nil {
		e.restart.Stop()
		e.restart = nil
	}
}

func (r *Registry) cancelTimers(e *entry) {
	r.cancelHeartbeat(e)
	r.cancelRestart(e)
}
