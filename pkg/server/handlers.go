package server

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/stonehollow/craftd/pkg/chat"
	"github.com/stonehollow/craftd/pkg/protocol"
)

// handlePacket routes a decoded serverbound packet through the phase
// machine. Returning an error closes the connection.
func (c *Conn) handlePacket(pkt protocol.Packet) error {
	switch c.Phase() {
	case protocol.PhaseHandshaking:
		return c.handleHandshake(pkt)
	case protocol.PhaseStatus:
		return c.handleStatus(pkt)
	case protocol.PhaseLogin:
		return c.handleLogin(pkt)
	case protocol.PhasePlay:
		return c.handlePlay(pkt)
	}
	return nil
}

func (c *Conn) handleHandshake(pkt protocol.Packet) error {
	hs, ok := pkt.(*protocol.Handshake)
	if !ok {
		return nil
	}

	if hs.ProtocolVersion != protocol.ProtocolVersion {
		return fmt.Errorf("protocol version mismatch: client %d, server %d",
			hs.ProtocolVersion, protocol.ProtocolVersion)
	}

	switch hs.NextState {
	case 1:
		c.setPhase(protocol.PhaseStatus)
	case 2:
		c.setPhase(protocol.PhaseLogin)
	default:
		return fmt.Errorf("bad next state %d", hs.NextState)
	}
	return nil
}

// statusJSON mirrors the server-list ping response shape.
type statusJSON struct {
	Version struct {
		Name     string `json:"name"`
		Protocol int    `json:"protocol"`
	} `json:"version"`
	Players struct {
		Max    int `json:"max"`
		Online int `json:"online"`
	} `json:"players"`
	Description chat.Message `json:"description"`
	Favicon     string       `json:"favicon"`
}

func (c *Conn) handleStatus(pkt protocol.Packet) error {
	switch p := pkt.(type) {
	case *protocol.StatusRequest:
		var status statusJSON
		status.Version.Name = protocol.VersionName
		status.Version.Protocol = protocol.ProtocolVersion
		status.Players.Max = c.srv.cfg.Server.MaxPlayers
		status.Players.Online = c.srv.players.OnlineCount()
		status.Description = chat.Text(c.srv.cfg.Server.MOTD)

		body, err := json.Marshal(status)
		if err != nil {
			return err
		}
		c.Send(&protocol.StatusResponse{JSON: string(body)})

	case *protocol.PingRequest:
		c.Send(&protocol.PingResponse{Payload: p.Payload})
		// STATUS ends here; flush the pong, then drop the connection.
		c.Shutdown()
	}
	return nil
}

func (c *Conn) handleLogin(pkt protocol.Packet) error {
	login, ok := pkt.(*protocol.LoginStart)
	if !ok {
		return nil
	}

	if !ValidUsername(login.Username) {
		return fmt.Errorf("invalid username %q", login.Username)
	}

	id := OfflineUUID(login.Username)
	if c.srv.cfg.Server.OnlineMode && login.UUID != ([16]byte{}) {
		copy(id[:], login.UUID[:])
	}

	profile := GameProfile{UUID: id, Username: login.Username}

	mode, _ := ParseGameMode(c.srv.cfg.Server.GameMode)
	viewDistance := c.srv.cfg.ClampedViewDistance(c.srv.cfg.Server.ViewDistance)
	player, err := c.srv.players.Create(c, profile, c.srv.spawn, mode, viewDistance)
	if err != nil {
		return fmt.Errorf("refusing login for %s: %w", login.Username, err)
	}

	c.profile = profile
	c.entityID.Store(player.EntityID())

	// Returning players pick up their last position from the profile cache.
	if c.srv.profiles != nil {
		if stored, ok, err := c.srv.profiles.Get(id.String()); err == nil && ok {
			player.SetLocation(Location{X: stored.LastX, Y: stored.LastY, Z: stored.LastZ})
		}
	}

	c.Send(&protocol.LoginSuccess{UUID: id, Username: login.Username})
	c.setPhase(protocol.PhasePlay)

	c.srv.log.Infof("player %s logged in from %s (eid %d)", login.Username, c.remoteIP, player.EntityID())

	init := func() { c.initializePlayState(player) }
	if err := c.srv.pool.Submit(init); err != nil {
		init()
	}
	return nil
}

// initializePlayState sends the join sequence and starts the keep-alive
// loop. Runs off the read loop, on the worker pool.
func (c *Conn) initializePlayState(player *Player) {
	cfg := c.srv.cfg

	c.Send(&protocol.JoinGame{
		EntityID:            player.EntityID(),
		Hardcore:            cfg.Server.Hardcore,
		GameMode:            uint8(player.GameMode()),
		PreviousGameMode:    uint8(player.GameMode()),
		WorldNames:          []string{"minecraft:overworld"},
		DimensionType:       "minecraft:overworld",
		DimensionName:       "minecraft:overworld",
		HashedSeed:          cfg.World.Seed,
		MaxPlayers:          int32(cfg.Server.MaxPlayers),
		ViewDistance:        int32(player.ViewDistance()),
		SimulationDistance:  int32(cfg.Server.SimulationDistance),
		EnableRespawnScreen: true,
		IsFlat:              cfg.World.Generator == "flat",
	})

	loc := player.Location()
	c.Send(&protocol.PlayerPositionAndLook{
		X: loc.X, Y: loc.Y, Z: loc.Z,
		Yaw: loc.Yaw, Pitch: loc.Pitch,
		TeleportID: 1,
	})

	player.viewReady.Store(true)
	player.UpdateChunkView(c.srv.store)
	c.startKeepAlive()

	c.srv.log.Infof("player %s joined the game", player.Profile().Username)
}

func (c *Conn) handlePlay(pkt protocol.Packet) error {
	player, _ := c.srv.players.ByEntityID(c.EntityID())

	switch p := pkt.(type) {
	case *protocol.KeepAliveServerbound:
		if p.KeepAliveID == c.lastKeepAliveSent.Load() {
			c.lastKeepAlive.Store(time.Now().UnixMilli())
		}
		if player != nil {
			player.TouchActivity()
		}

	case *protocol.PlayerPosition:
		if player == nil {
			return nil
		}
		old := player.Location()
		loc := old
		loc.X, loc.Y, loc.Z = p.X, p.Y, p.Z
		player.SetLocation(loc)

		// Crossing a chunk border refreshes the view window immediately
		// instead of waiting for the next tick.
		if old.ChunkPos() != loc.ChunkPos() {
			player.UpdateChunkView(c.srv.store)
		}
	}
	return nil
}
