package ports

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"
)

// Listener is one listening TCP socket owned by a scanned process.
type Listener struct {
	PID         int
	ProcessName string
	Address     string
	Port        int
}

// Scanner discovers listening TCP sockets for a process tree by driving
// lsof, the same way the git package drives the git CLI. An agent's dev
// servers usually run as child processes, so scans cover descendants.
type Scanner struct {
	lsofPath  string
	pgrepPath string
}

// NewScanner locates the inspection tools. lsof is required; pgrep is
// optional and limits scans to the root process when absent.
func NewScanner() (*Scanner, error) {
	lsof, err := exec.LookPath("lsof")
	if err != nil {
		return nil, fmt.Errorf("lsof not found in PATH: %w", err)
	}
	s := &Scanner{lsofPath: lsof}
	if pgrep, err := exec.LookPath("pgrep"); err == nil {
		s.pgrepPath = pgrep
	}
	return s, nil
}

// Descendants returns pid plus every transitive child found via pgrep.
func (s *Scanner) Descendants(ctx context.Context, pid int) []int {
	pids := []int{pid}
	if s.pgrepPath == "" {
		return pids
	}

	queue := []int{pid}
	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]

		// pgrep exits 1 when a process has no children.
		out, err := exec.CommandContext(ctx, s.pgrepPath, "-P", strconv.Itoa(parent)).Output()
		if err != nil {
			continue
		}
		for _, field := range strings.Fields(string(out)) {
			child, err := strconv.Atoi(field)
			if err != nil {
				continue
			}
			pids = append(pids, child)
			queue = append(queue, child)
		}
	}
	return pids
}

// ListeningPorts reports the listening TCP sockets owned by pids.
func (s *Scanner) ListeningPorts(ctx context.Context, pids []int) ([]Listener, error) {
	if len(pids) == 0 {
		return nil, nil
	}

	pidArgs := make([]string, len(pids))
	for i, pid := range pids {
		pidArgs[i] = strconv.Itoa(pid)
	}

	cmd := exec.CommandContext(ctx, s.lsofPath,
		"-a", "-iTCP", "-sTCP:LISTEN", "-P", "-n", "-F", "pcn",
		"-p", strings.Join(pidArgs, ","))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// lsof exits 1 when nothing matches the filters.
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return nil, nil
		}
		return nil, fmt.Errorf("lsof failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return parseLsofOutput(stdout.Bytes()), nil
}

// parseLsofOutput decodes lsof -F pcn field output: p<pid> and c<name>
// lines set the current process, each n<addr:port> line is one socket.
// IPv4 and IPv6 sockets on the same port collapse to one listener.
func parseLsofOutput(out []byte) []Listener {
	var listeners []Listener
	seen := make(map[string]bool)

	pid := 0
	name := ""
	for _, line := range strings.Split(string(out), "\n") {
		if line == "" {
			continue
		}
		switch line[0] {
		case 'p':
			if n, err := strconv.Atoi(line[1:]); err == nil {
				pid = n
			}
		case 'c':
			name = line[1:]
		case 'n':
			addr := line[1:]
			idx := strings.LastIndex(addr, ":")
			if idx < 0 {
				continue
			}
			port, err := strconv.Atoi(addr[idx+1:])
			if err != nil || port <= 0 {
				continue
			}
			key := fmt.Sprintf("%d/%d", pid, port)
			if seen[key] {
				continue
			}
			seen[key] = true
			listeners = append(listeners, Listener{
				PID:         pid,
				ProcessName: name,
				Address:     addr[:idx],
				Port:        port,
			})
		}
	}

	sort.Slice(listeners, func(i, j int) bool { return listeners[i].Port < listeners[j].Port })
	return listeners
}

// SyncNode reconciles the registry with one scan of the process tree
// rooted at pid: new sockets are published, vanished ones removed.
func (s *Scanner) SyncNode(ctx context.Context, reg *Registry, nodeID string, pid int) error {
	listeners, err := s.ListeningPorts(ctx, s.Descendants(ctx, pid))
	if err != nil {
		return err
	}
	reconcile(reg, nodeID, listeners)
	return nil
}

// reconcile applies a scan result to the registry for one node. Ports
// already registered are left untouched so steady state emits no events.
func reconcile(reg *Registry, nodeID string, listeners []Listener) {
	current := make(map[int]bool)
	for _, dp := range reg.ByNode(nodeID) {
		current[dp.Port] = true
	}

	alive := make(map[int]bool)
	for _, l := range listeners {
		alive[l.Port] = true
		if current[l.Port] {
			continue
		}
		reg.Publish(DynamicPort{
			Port:        l.Port,
			NodeID:      nodeID,
			PID:         l.PID,
			ProcessName: l.ProcessName,
			Address:     l.Address,
		})
	}
	for port := range current {
		if !alive[port] {
			reg.Remove(nodeID, port)
		}
	}
}
