package server

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// RunConsole reads commands line by line until r closes or a stop command
// arrives. Output goes to w.
func (s *Server) RunConsole(r io.Reader, w io.Writer) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if s.DispatchCommand(line, w) {
			return
		}
	}
}

// DispatchCommand executes one console command. Returns true when the
// command stops the server.
func (s *Server) DispatchCommand(line string, w io.Writer) bool {
	fields := strings.Fields(line)
	cmd := strings.ToLower(fields[0])
	args := fields[1:]

	switch cmd {
	case "stop":
		fmt.Fprintln(w, "Stopping server...")
		s.Stop()
		return true

	case "reload":
		if err := s.ReloadConfig(); err != nil {
			fmt.Fprintf(w, "Reload failed: %v\n", err)
		} else {
			fmt.Fprintln(w, "Configuration reloaded.")
		}

	case "kick":
		if len(args) == 0 {
			fmt.Fprintln(w, "Usage: kick <username> [reason]")
			break
		}
		reason := "Kicked by server"
		if len(args) > 1 {
			reason = strings.Join(args[1:], " ")
		}
		if s.Kick(args[0], reason) {
			fmt.Fprintf(w, "Kicked %s.\n", args[0])
		} else {
			fmt.Fprintf(w, "Player %s is not online.\n", args[0])
		}

	case "broadcast", "say":
		if len(args) == 0 {
			fmt.Fprintln(w, "Usage: broadcast <message>")
			break
		}
		s.Broadcast(strings.Join(args, " "))

	case "status":
		st := s.Status()
		fmt.Fprintf(w, "=== Server Status ===\n")
		fmt.Fprintf(w, "Running: %v\n", st.Running)
		fmt.Fprintf(w, "Uptime: %.0fs  Tick: %d\n", st.Uptime, st.CurrentTick)
		fmt.Fprintf(w, "TPS: %.2f (avg %.2f, min %.2f)\n", st.CurrentTPS, st.AverageTPS, st.MinTPS)
		fmt.Fprintf(w, "Players: %d/%d\n", st.OnlinePlayers, st.MaxPlayers)
		fmt.Fprintf(w, "Chunks: %d loaded, %d pending\n", st.LoadedChunks, st.PendingChunks)
		fmt.Fprintf(w, "Entities: %d\n", st.Entities)
		fmt.Fprintf(w, "Connections: %d active, %d total\n", st.ActiveConnections, st.TotalConnections)
		fmt.Fprintf(w, "Network: %d pkt/s, %d B/s\n", st.PacketsPerSecond, st.BytesPerSecond)

	case "help":
		fmt.Fprintln(w, "Commands: stop, reload, kick <name> [reason], broadcast <msg>, status, help")

	default:
		fmt.Fprintf(w, "Unknown command %q. Try \"help\".\n", cmd)
	}
	return false
}
