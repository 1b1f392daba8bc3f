package server

import (
	"fmt"
	"net"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stonehollow/craftd/pkg/config"
	"github.com/stonehollow/craftd/pkg/log"
	"github.com/stonehollow/craftd/pkg/playerdb"
	"github.com/stonehollow/craftd/pkg/protocol"
	"github.com/stonehollow/craftd/pkg/worker"
	"github.com/stonehollow/craftd/pkg/world"
)

// Server owns every subsystem: the acceptor, connection set, player
// registry, chunk store, entity table, worker pool and perf monitor.
// Components receive it by reference instead of reaching for globals, so
// tests can run several independent instances.
type Server struct {
	cfg     *config.Config
	cfgPath string
	log     *log.Logger

	packets *protocol.Registry

	listener net.Listener

	connsMu sync.Mutex
	conns   map[*Conn]struct{}
	perIP   map[string]int
	lastIP  map[string]time.Time

	totalConns atomic.Uint64

	players  *PlayerRegistry
	entities *EntityTable
	store    *world.Store
	regions  *world.RegionManager
	blocks   *world.BlockRegistry
	pool     *worker.Pool
	perf     *PerfMonitor
	profiles *playerdb.DB

	spawn Location

	running     atomic.Bool
	stopCh      chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
	currentTick atomic.Uint64
	start       time.Time
}

// maxEntities caps the entity table.
const maxEntities = 10000

// New wires a server from configuration. Nothing listens yet; call Start.
func New(cfg *config.Config, cfgPath string, logger *log.Logger) (*Server, error) {
	s := &Server{
		cfg:     cfg,
		cfgPath: cfgPath,
		log:     logger,
		packets: protocol.NewRegistry(),
		conns:   make(map[*Conn]struct{}),
		perIP:   make(map[string]int),
		lastIP:  make(map[string]time.Time),
		stopCh:  make(chan struct{}),
		start:   time.Now(),
	}

	s.blocks = world.NewBlockRegistry()
	s.pool = worker.New(cfg.WorkerThreads())
	s.perf = NewPerfMonitor()
	s.players = NewPlayerRegistry(cfg.Server.MaxPlayers)
	s.entities = NewEntityTable(maxEntities)

	regions, err := world.NewRegionManager(cfg.World.Name)
	if err != nil {
		return nil, err
	}
	s.regions = regions

	s.store = world.NewStore(world.StoreOptions{
		Generator:   world.NewGenerator(cfg.World.Generator, cfg.World.Seed),
		Persistence: regions,
		Pool:        s.pool,
		Log:         logger,
		MaxLoaded:   cfg.Performance.MaxChunksLoaded,
		UnloadAfter: time.Duration(cfg.Performance.ChunkUnloadTimeout) * time.Millisecond,
	})

	profiles, err := playerdb.Open(filepath.Join(cfg.World.Name, "players.db"))
	if err != nil {
		logger.Warnf("player database unavailable: %v", err)
	} else {
		s.profiles = profiles
	}

	s.spawn = Location{
		X: float64(cfg.World.SpawnX) + 0.5,
		Y: float64(cfg.World.SpawnY),
		Z: float64(cfg.World.SpawnZ) + 0.5,
	}

	return s, nil
}

// Start binds the acceptor and launches the accept, tick, auto-save and
// janitor loops.
func (s *Server) Start() error {
	if s.running.Swap(true) {
		return fmt.Errorf("server already running")
	}

	ln, err := net.Listen("tcp", s.cfg.Address())
	if err != nil {
		s.running.Store(false)
		return fmt.Errorf("bind %s: %w", s.cfg.Address(), err)
	}
	s.listener = ln
	s.log.Infof("listening on %s", ln.Addr())

	s.wg.Add(4)
	go s.acceptLoop()
	go s.tickLoop()
	go s.autoSaveLoop()
	go s.janitorLoop()

	return nil
}

// Stop shuts everything down: acceptor, connections, loops, one final save,
// then the pool and persistence. Idempotent.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.log.Infof("stopping server")
		s.running.Store(false)
		close(s.stopCh)

		if s.listener != nil {
			s.listener.Close()
		}

		for _, p := range s.players.Online() {
			p.Disconnect()
		}
		s.connsMu.Lock()
		open := make([]*Conn, 0, len(s.conns))
		for c := range s.conns {
			open = append(open, c)
		}
		s.connsMu.Unlock()
		for _, c := range open {
			c.Close()
		}

		s.wg.Wait()

		saved := s.store.SaveAll()
		s.log.Infof("final save wrote %d chunks", saved)

		s.pool.Shutdown()
		s.regions.Close()
		if s.profiles != nil {
			s.profiles.Close()
		}
		s.log.Infof("server stopped")
	})
}

// Running reports whether the server accepts connections.
func (s *Server) Running() bool { return s.running.Load() }

// Addr returns the bound listen address, usable after Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		sock, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.stopCh:
				return
			default:
				s.log.Warnf("accept: %v", err)
				continue
			}
		}
		s.handleAccept(sock)
	}
}

func (s *Server) handleAccept(sock net.Conn) {
	ip := remoteIP(sock)

	if !s.admit(ip) {
		sock.Close()
		return
	}

	if tcp, ok := sock.(*net.TCPConn); ok {
		tcp.SetNoDelay(true)
		tcp.SetKeepAlive(true)
	}

	c := newConn(s, sock, ip, s.cfg.Security.PacketLimitPerSecond)

	s.connsMu.Lock()
	s.conns[c] = struct{}{}
	s.connsMu.Unlock()
	s.totalConns.Add(1)

	go c.run()
}

// admit enforces per-IP connection count and accept throttling.
func (s *Server) admit(ip string) bool {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()

	if max := s.cfg.Security.MaxConnectionsPerIP; max > 0 && s.perIP[ip] >= max {
		s.log.Warnf("too many connections from %s", ip)
		return false
	}
	if throttle := s.cfg.Security.ConnectionThrottle; throttle > 0 {
		if last, ok := s.lastIP[ip]; ok && time.Since(last) < time.Duration(throttle)*time.Millisecond {
			s.log.Debugf("throttling connection from %s", ip)
			return false
		}
	}
	s.perIP[ip]++
	s.lastIP[ip] = time.Now()
	return true
}

// connClosed detaches a closed connection: the per-IP count drops and the
// session, if any, goes offline with its profile persisted.
func (s *Server) connClosed(c *Conn) {
	s.connsMu.Lock()
	if _, ok := s.conns[c]; ok {
		if s.perIP[c.remoteIP] > 1 {
			s.perIP[c.remoteIP]--
		} else {
			delete(s.perIP, c.remoteIP)
		}
	}
	s.connsMu.Unlock()

	eid := c.EntityID()
	if eid == 0 {
		return
	}
	player, ok := s.players.ByEntityID(eid)
	if !ok {
		return
	}
	player.online.Store(false)
	player.TouchActivity()
	s.log.Infof("player %s disconnected", player.Profile().Username)

	if s.profiles != nil {
		loc := player.Location()
		s.profiles.Upsert(playerdb.Profile{
			UUID:      player.Profile().UUID.String(),
			Username:  player.Profile().Username,
			FirstSeen: time.UnixMilli(player.JoinTime()),
			LastSeen:  time.Now(),
			LastX:     loc.X,
			LastY:     loc.Y,
			LastZ:     loc.Z,
			GameMode:  player.GameMode().String(),
		})
	}
}

// janitorLoop sweeps closed connections out of the set every 30 seconds.
func (s *Server) janitorLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.connsMu.Lock()
			for c := range s.conns {
				if c.Closed() {
					delete(s.conns, c)
				}
			}
			s.connsMu.Unlock()
		}
	}
}

// ActiveConnections counts connections still in the set and open.
func (s *Server) ActiveConnections() int {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()

	n := 0
	for c := range s.conns {
		if !c.Closed() {
			n++
		}
	}
	return n
}

// PlayConnections counts connections that reached PLAY.
func (s *Server) PlayConnections() int {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()

	n := 0
	for c := range s.conns {
		if !c.Closed() && c.Phase() == protocol.PhasePlay {
			n++
		}
	}
	return n
}

// TotalConnections counts every connection ever accepted.
func (s *Server) TotalConnections() uint64 { return s.totalConns.Load() }

// BroadcastPacket sends a packet to every PLAY connection.
func (s *Server) BroadcastPacket(p protocol.Packet) {
	s.connsMu.Lock()
	targets := make([]*Conn, 0, len(s.conns))
	for c := range s.conns {
		if !c.Closed() && c.Phase() == protocol.PhasePlay {
			targets = append(targets, c)
		}
	}
	s.connsMu.Unlock()

	for _, c := range targets {
		c.Send(p)
	}
}

func remoteIP(sock net.Conn) string {
	host, _, err := net.SplitHostPort(sock.RemoteAddr().String())
	if err != nil {
		return sock.RemoteAddr().String()
	}
	return host
}

// Status is the snapshot returned to the console and admin endpoint.
type Status struct {
	Running           bool    `json:"running"`
	Uptime            float64 `json:"uptime_seconds"`
	CurrentTick       uint64  `json:"current_tick"`
	CurrentTPS        float64 `json:"current_tps"`
	AverageTPS        float64 `json:"average_tps"`
	MinTPS            float64 `json:"min_tps"`
	OnlinePlayers     int     `json:"online_players"`
	MaxPlayers        int     `json:"max_players"`
	LoadedChunks      int     `json:"loaded_chunks"`
	PendingChunks     int     `json:"pending_chunks"`
	Entities          int     `json:"entities"`
	ActiveConnections int     `json:"active_connections"`
	TotalConnections  uint64  `json:"total_connections"`
	PacketsPerSecond  uint64  `json:"packets_per_second"`
	BytesPerSecond    uint64  `json:"bytes_per_second"`
}

// Status gathers the live snapshot.
func (s *Server) Status() Status {
	return Status{
		Running:           s.Running(),
		Uptime:            time.Since(s.start).Seconds(),
		CurrentTick:       s.currentTick.Load(),
		CurrentTPS:        s.perf.CurrentTPS(),
		AverageTPS:        s.perf.AverageTPS(),
		MinTPS:            s.perf.MinTPS(),
		OnlinePlayers:     s.players.OnlineCount(),
		MaxPlayers:        s.cfg.Server.MaxPlayers,
		LoadedChunks:      s.store.LoadedCount(),
		PendingChunks:     s.store.PendingCount(),
		Entities:          s.entities.Count(),
		ActiveConnections: s.ActiveConnections(),
		TotalConnections:  s.TotalConnections(),
		PacketsPerSecond:  s.perf.PacketsPerSecond(),
		BytesPerSecond:    s.perf.BytesPerSecond(),
	}
}

// Kick disconnects a player by name. Returns false when nobody by that name
// is online.
func (s *Server) Kick(username, reason string) bool {
	player, ok := s.players.ByName(username)
	if !ok || !player.Online() {
		return false
	}
	s.log.Infof("kicking %s: %s", username, reason)
	player.Disconnect()
	return true
}

// Broadcast logs a server-wide message. Chat delivery is outside the wire
// surface; the console and log carry it.
func (s *Server) Broadcast(message string) {
	s.log.Infof("[broadcast] %s", message)
}

// ReloadConfig re-reads the configuration file and applies the runtime
// adjustable settings.
func (s *Server) ReloadConfig() error {
	cfg, err := config.Load(s.cfgPath)
	if err != nil {
		return err
	}
	s.cfg = cfg
	s.log.SetLevel(log.ParseLevel(cfg.Logging.Level))
	s.log.Infof("configuration reloaded")
	return nil
}

// Players exposes the registry.
func (s *Server) Players() *PlayerRegistry { return s.players }

// Entities exposes the entity table.
func (s *Server) Entities() *EntityTable { return s.entities }

// World exposes the chunk store.
func (s *Server) World() *world.Store { return s.store }

// Blocks exposes the block registry.
func (s *Server) Blocks() *world.BlockRegistry { return s.blocks }

// Perf exposes the performance monitor.
func (s *Server) Perf() *PerfMonitor { return s.perf }
