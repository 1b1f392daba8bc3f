package server

import (
	"time"
)

// Tick timing.
const (
	tickPeriod = 50 * time.Millisecond
	targetTPS  = 20.0
)

// idleKickAfter is the inactivity window before a session is kicked.
const idleKickAfter = 30 * time.Minute

// tickLoop is the fixed-rate scheduler: players, entities, world, perf, in
// that order, every 50 ms. A panic in one subsystem is logged and the tick
// continues with the next.
func (s *Server) tickLoop() {
	defer s.wg.Done()

	lastTickStart := time.Now()

	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		tickStart := time.Now()

		s.runSubsystem("players", s.tickPlayers)
		s.runSubsystem("entities", s.tickEntities)
		s.runSubsystem("world", s.tickWorld)
		s.runSubsystem("perf", s.tickPerf)

		tick := s.currentTick.Add(1)

		// TPS from the spacing of consecutive tick starts, capped at target.
		elapsedUS := tickStart.Sub(lastTickStart).Microseconds()
		tps := targetTPS
		if elapsedUS > 0 {
			tps = 1e6 / float64(elapsedUS)
			if tps > targetTPS {
				tps = targetTPS
			}
		}
		s.perf.RecordTPS(tps)
		lastTickStart = tickStart

		if tick%20 == 0 {
			s.perf.UpdateNetworkRates()
		}

		if remaining := tickPeriod - time.Since(tickStart); remaining > 0 {
			select {
			case <-s.stopCh:
				return
			case <-time.After(remaining):
			}
		}
	}
}

func (s *Server) runSubsystem(name string, f func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorf("panic in %s tick: %v", name, r)
		}
	}()
	f()
}

// tickPlayers refreshes every online player's chunk view, kicks idle
// sessions and drops long-offline ones.
func (s *Server) tickPlayers() {
	cutoff := time.Now().Add(-idleKickAfter).UnixMilli()

	for _, p := range s.players.Online() {
		p.UpdateChunkView(s.store)

		if p.LastActivity() < cutoff {
			s.log.Infof("kicking %s for inactivity", p.Profile().Username)
			p.Disconnect()
		}
	}

	s.players.CleanupOffline()
}

func (s *Server) tickEntities() {
	s.entities.TickAll()
}

// tickWorld sweeps the online players' chunk windows every 20 ticks and
// submits an async persist for each dirty chunk found.
func (s *Server) tickWorld() {
	if s.currentTick.Load()%20 != 0 {
		return
	}

	seen := make(map[[2]int32]struct{})
	for _, p := range s.players.Online() {
		for pos := range p.LoadedChunks() {
			key := [2]int32{pos.X, pos.Z}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			chunk, ok := s.store.Get(pos)
			if !ok || !chunk.Dirty() {
				continue
			}
			c := chunk
			s.pool.Submit(func() {
				if err := s.regions.Save(c); err != nil {
					s.log.Errorf("persist chunk %d,%d: %v", c.Pos().X, c.Pos().Z, err)
				}
			})
		}
	}
}

func (s *Server) tickPerf() {
	s.perf.SetActiveConnections(s.ActiveConnections())
}

// autoSaveLoop flushes all dirty chunks on the configured interval.
func (s *Server) autoSaveLoop() {
	defer s.wg.Done()

	interval := time.Duration(s.cfg.Performance.AutoSaveInterval) * time.Millisecond
	if interval <= 0 {
		return
	}

	lastSave := time.Now()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if time.Since(lastSave) < interval {
				continue
			}
			start := time.Now()
			saved := s.store.SaveAll()
			s.log.Infof("auto-save wrote %d chunks in %s", saved, time.Since(start).Round(time.Millisecond))
			lastSave = time.Now()
		}
	}
}
