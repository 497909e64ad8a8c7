package telemetry

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/rileyhilliard/pyscope/internal/errors"
)

// CommandRunner runs a shell command and reports its output and exit code.
type CommandRunner interface {
	Run(ctx context.Context, cmd string, stdin io.Reader) (stdout, stderr []byte, exitCode int, err error)
}

const (
	// sectionSeparator splits the output of batched commands.
	sectionSeparator = "---"
	// goneExitCode is returned by the guard when /proc/<pid> is missing.
	goneExitCode = 3
	// clockTicks is USER_HZ, fixed at 100 on Linux.
	clockTicks = 100.0
)

// ProcfsInspector reads /proc of a Linux host through a CommandRunner, so the
// target can live on the machine reached by the runner.
type ProcfsInspector struct {
	runner CommandRunner
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewProcfsInspector creates an inspector that reads /proc through runner.
func NewProcfsInspector(runner CommandRunner) *ProcfsInspector {
	return &ProcfsInspector{runner: runner, sleep: sleepCtx}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// run executes script for pid behind a guard that detects a vanished process.
func (p *ProcfsInspector) run(ctx context.Context, pid int32, script string) (string, error) {
	cmd := fmt.Sprintf("[ -d /proc/%d ] || exit %d; %s", pid, goneExitCode, script)
	stdout, stderr, code, err := p.runner.Run(ctx, cmd, nil)
	if err != nil {
		return "", err
	}
	switch code {
	case 0:
		return string(stdout), nil
	case goneExitCode:
		return "", ErrNoSuchProcess
	default:
		return "", errors.New(errors.ErrSample,
			fmt.Sprintf("reading /proc/%d exited with %d", pid, code),
			strings.TrimSpace(string(stderr)))
	}
}

func (p *ProcfsInspector) stat(ctx context.Context, pid int32) ([]string, error) {
	out, err := p.run(ctx, pid, fmt.Sprintf("cat /proc/%d/stat", pid))
	if err != nil {
		return nil, err
	}
	return parseStatFields(out)
}

func (p *ProcfsInspector) CPUPercent(ctx context.Context, pid int32, interval time.Duration) (float64, error) {
	b, err := p.CPUTimes(ctx, pid)
	if err != nil {
		return 0, err
	}
	if err := p.sleep(ctx, interval); err != nil {
		return 0, err
	}
	a, err := p.CPUTimes(ctx, pid)
	if err != nil {
		return 0, err
	}
	elapsed := interval.Seconds()
	if elapsed <= 0 {
		return 0, nil
	}
	busy := (a.User + a.System) - (b.User + b.System)
	if busy < 0 {
		busy = 0
	}
	return busy / elapsed * 100, nil
}

func (p *ProcfsInspector) CPUTimes(ctx context.Context, pid int32) (CPUTimes, error) {
	fields, err := p.stat(ctx, pid)
	if err != nil {
		return CPUTimes{}, err
	}
	return statTimes(fields)
}

func (p *ProcfsInspector) Memory(ctx context.Context, pid int32) (MemoryInfo, error) {
	out, err := p.run(ctx, pid, fmt.Sprintf("cat /proc/%d/status; echo %s; cat /proc/meminfo", pid, sectionSeparator))
	if err != nil {
		return MemoryInfo{}, err
	}
	sections := splitSections(out)
	if len(sections) < 2 {
		return MemoryInfo{}, fmt.Errorf("unexpected memory output")
	}
	status := parseKeyValues(sections[0])
	meminfo := parseKeyValues(sections[1])

	mem := MemoryInfo{
		RSS: parseKB(status["VmRSS"]),
		VMS: parseKB(status["VmSize"]),
	}
	if total := parseKB(meminfo["MemTotal"]); total > 0 {
		mem.Percent = float64(mem.RSS) / float64(total) * 100
	}
	return mem, nil
}

func (p *ProcfsInspector) IOCounters(ctx context.Context, pid int32) (IOCounters, error) {
	out, err := p.run(ctx, pid, fmt.Sprintf("cat /proc/%d/io", pid))
	if err != nil {
		return IOCounters{}, err
	}
	kv := parseKeyValues(out)
	num := func(k string) uint64 {
		v, _ := strconv.ParseUint(kv[k], 10, 64)
		return v
	}
	return IOCounters{
		ReadBytes:  num("read_bytes"),
		WriteBytes: num("write_bytes"),
		ReadCount:  num("syscr"),
		WriteCount: num("syscw"),
	}, nil
}

func (p *ProcfsInspector) Threads(ctx context.Context, pid int32) ([]ThreadTimes, error) {
	out, err := p.run(ctx, pid, fmt.Sprintf(`for t in /proc/%d/task/*/stat; do cat "$t" 2>/dev/null; done`, pid))
	if err != nil {
		return nil, err
	}
	var threads []ThreadTimes
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		tid, err := strconv.ParseInt(strings.Fields(line)[0], 10, 32)
		if err != nil {
			continue
		}
		fields, err := parseStatFields(line)
		if err != nil {
			continue
		}
		t, err := statTimes(fields)
		if err != nil {
			continue
		}
		threads = append(threads, ThreadTimes{ID: int32(tid), User: t.User, System: t.System})
	}
	return threads, scanner.Err()
}

func (p *ProcfsInspector) fdTargets(ctx context.Context, pid int32) ([]string, error) {
	out, err := p.run(ctx, pid, fmt.Sprintf(`for f in /proc/%d/fd/*; do readlink "$f" 2>/dev/null; done`, pid))
	if err != nil {
		return nil, err
	}
	return nonEmptyLines(out), nil
}

func (p *ProcfsInspector) OpenFiles(ctx context.Context, pid int32) ([]string, error) {
	targets, err := p.fdTargets(ctx, pid)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, t := range targets {
		if strings.HasPrefix(t, "/") && !strings.HasPrefix(t, "/dev/") {
			files = append(files, t)
		}
	}
	return files, nil
}

func (p *ProcfsInspector) Connections(ctx context.Context, pid int32) ([]Connection, error) {
	targets, err := p.fdTargets(ctx, pid)
	if err != nil {
		return nil, err
	}
	inodes := socketInodes(targets)
	if len(inodes) == 0 {
		return nil, nil
	}

	tables := []string{"tcp", "tcp6", "udp", "udp6", "unix"}
	var script strings.Builder
	for i, name := range tables {
		if i > 0 {
			fmt.Fprintf(&script, "; echo %s; ", sectionSeparator)
		}
		fmt.Fprintf(&script, "cat /proc/%d/net/%s 2>/dev/null", pid, name)
	}
	out, err := p.run(ctx, pid, script.String())
	if err != nil {
		return nil, err
	}

	sections := splitSections(out)
	var conns []Connection
	for i, body := range sections {
		if i >= len(tables) {
			break
		}
		name := tables[i]
		if name == "unix" {
			conns = append(conns, parseUnixTable(body, inodes)...)
			continue
		}
		proto := "TCP"
		if strings.HasPrefix(name, "udp") {
			proto = "UDP"
		}
		conns = append(conns, parseInetTable(body, proto, inodes)...)
	}
	return conns, nil
}

func (p *ProcfsInspector) Details(ctx context.Context, pid int32) (Details, error) {
	script := fmt.Sprintf(
		"cat /proc/%[1]d/status; echo %[2]s; cat /proc/%[1]d/stat; echo %[2]s; "+
			"readlink /proc/%[1]d/cwd; echo %[2]s; tr '\\0' ' ' < /proc/%[1]d/cmdline; echo; echo %[2]s; "+
			"grep btime /proc/stat; echo %[2]s; id -nu $(awk '/^Uid:/{print $2}' /proc/%[1]d/status) 2>/dev/null",
		pid, sectionSeparator)
	out, err := p.run(ctx, pid, script)
	if err != nil {
		return Details{}, err
	}
	return parseDetails(pid, splitSections(out)), nil
}

func parseDetails(pid int32, sections []string) Details {
	d := Details{PID: pid}
	get := func(i int) string {
		if i < len(sections) {
			return strings.TrimSpace(sections[i])
		}
		return ""
	}

	status := parseKeyValues(get(0))
	if st := status["State"]; st != "" {
		// "S (sleeping)" -> "sleeping"
		if open := strings.Index(st, "("); open >= 0 {
			st = strings.TrimSuffix(st[open+1:], ")")
		}
		d.Status = st
	}
	d.UIDs = parseIDs(status["Uid"])
	d.GIDs = parseIDs(status["Gid"])

	if fields, err := parseStatFields(get(1)); err == nil && len(fields) > 19 {
		if nice, err := strconv.ParseInt(fields[16], 10, 32); err == nil {
			d.Nice = int32(nice)
		}
		btimeFields := strings.Fields(get(4))
		if len(btimeFields) == 2 {
			btime, _ := strconv.ParseInt(btimeFields[1], 10, 64)
			start, _ := strconv.ParseFloat(fields[19], 64)
			if btime > 0 {
				d.Created = time.Unix(btime, 0).Add(time.Duration(start / clockTicks * float64(time.Second)))
			}
		}
	}

	d.Cwd = get(2)
	d.Cmdline = get(3)
	d.Username = get(5)
	return d
}

// parseStatFields returns the fields of a /proc/<pid>/stat line that follow
// the parenthesised command name, starting with the state.
func parseStatFields(line string) ([]string, error) {
	line = strings.TrimSpace(line)
	end := strings.LastIndex(line, ")")
	if end < 0 {
		return nil, fmt.Errorf("invalid stat line: %q", line)
	}
	fields := strings.Fields(line[end+1:])
	if len(fields) < 13 {
		return nil, fmt.Errorf("invalid stat line: %q", line)
	}
	return fields, nil
}

func statTimes(fields []string) (CPUTimes, error) {
	if len(fields) < 13 {
		return CPUTimes{}, fmt.Errorf("short stat line")
	}
	utime, err := strconv.ParseFloat(fields[11], 64)
	if err != nil {
		return CPUTimes{}, fmt.Errorf("failed to parse utime: %w", err)
	}
	stime, err := strconv.ParseFloat(fields[12], 64)
	if err != nil {
		return CPUTimes{}, fmt.Errorf("failed to parse stime: %w", err)
	}
	return CPUTimes{User: utime / clockTicks, System: stime / clockTicks}, nil
}

func splitSections(out string) []string {
	var sections []string
	var cur strings.Builder
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == sectionSeparator {
			sections = append(sections, cur.String())
			cur.Reset()
			continue
		}
		cur.WriteString(line)
		cur.WriteString("\n")
	}
	return append(sections, cur.String())
}

// parseKeyValues parses "Key:   value" lines as found in status, meminfo and io.
func parseKeyValues(body string) map[string]string {
	kv := make(map[string]string)
	for _, line := range strings.Split(body, "\n") {
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		kv[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return kv
}

// parseKB parses "1234 kB" into bytes.
func parseKB(v string) uint64 {
	fields := strings.Fields(v)
	if len(fields) == 0 {
		return 0
	}
	n, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return 0
	}
	return n * 1024
}

func parseIDs(v string) []int32 {
	var ids []int32
	for _, f := range strings.Fields(v) {
		if n, err := strconv.ParseInt(f, 10, 32); err == nil {
			ids = append(ids, int32(n))
		}
	}
	return ids
}

func nonEmptyLines(out string) []string {
	var lines []string
	for _, l := range strings.Split(out, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// socketInodes extracts inode numbers from "socket:[12345]" link targets.
func socketInodes(targets []string) map[string]bool {
	inodes := make(map[string]bool)
	for _, t := range targets {
		if strings.HasPrefix(t, "socket:[") && strings.HasSuffix(t, "]") {
			inodes[t[len("socket:["):len(t)-1]] = true
		}
	}
	return inodes
}

var tcpStates = map[string]string{
	"01": "ESTABLISHED",
	"02": "SYN_SENT",
	"03": "SYN_RECV",
	"04": "FIN_WAIT1",
	"05": "FIN_WAIT2",
	"06": "TIME_WAIT",
	"07": "CLOSE",
	"08": "CLOSE_WAIT",
	"09": "LAST_ACK",
	"0A": "LISTEN",
	"0B": "CLOSING",
}

// parseInetTable reads /proc/net/{tcp,udp}[6] rows owned by one of inodes.
func parseInetTable(body, proto string, inodes map[string]bool) []Connection {
	var conns []Connection
	for i, line := range strings.Split(body, "\n") {
		fields := strings.Fields(line)
		if i == 0 || len(fields) < 10 {
			continue
		}
		if !inodes[fields[9]] {
			continue
		}
		lip, lport, err := decodeHexAddr(fields[1])
		if err != nil {
			continue
		}
		rip, rport, err := decodeHexAddr(fields[2])
		if err != nil {
			continue
		}
		local := joinAddr(lip, lport)
		remote := anyAddr
		if !rip.IsUnspecified() || rport != 0 {
			remote = joinAddr(rip, rport)
		}
		status := "NONE"
		if proto == "TCP" {
			status = tcpStates[strings.ToUpper(fields[3])]
		}
		conns = append(conns, Connection{Protocol: proto, Local: local, Remote: remote, Status: status})
	}
	return conns
}

// parseUnixTable reads /proc/net/unix rows owned by one of inodes.
func parseUnixTable(body string, inodes map[string]bool) []Connection {
	var conns []Connection
	for i, line := range strings.Split(body, "\n") {
		fields := strings.Fields(line)
		if i == 0 || len(fields) < 7 {
			continue
		}
		if !inodes[fields[6]] {
			continue
		}
		path := ""
		if len(fields) > 7 {
			path = fields[7]
		}
		conns = append(conns, Connection{Protocol: "UNIX", Local: path, Remote: anyAddr, Status: "NONE"})
	}
	return conns
}

// decodeHexAddr decodes "0100007F:1F90" style addresses. IPv4 and IPv6
// words are stored in host (little-endian) byte order.
func decodeHexAddr(s string) (net.IP, uint64, error) {
	hostHex, portHex, ok := strings.Cut(s, ":")
	if !ok {
		return nil, 0, fmt.Errorf("invalid address %q", s)
	}
	port, err := strconv.ParseUint(portHex, 16, 16)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid port %q: %w", portHex, err)
	}
	raw, err := hex.DecodeString(hostHex)
	if err != nil || (len(raw) != 4 && len(raw) != 16) {
		return nil, 0, fmt.Errorf("invalid host %q", hostHex)
	}
	ip := make(net.IP, len(raw))
	for w := 0; w < len(raw); w += 4 {
		binary.BigEndian.PutUint32(ip[w:], binary.LittleEndian.Uint32(raw[w:]))
	}
	return ip, port, nil
}

func joinAddr(ip net.IP, port uint64) string {
	return net.JoinHostPort(ip.String(), strconv.FormatUint(port, 10))
}
