package setup

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/majorcontext/bastion/internal/provider"
)

// statusProber dedupes concurrent status probes per sandbox. A burst of
// status requests for the same sandbox runs one remote command and shares
// the snapshot.
type statusProber struct {
	group singleflight.Group
}

// GatewayStatus is a read-only snapshot of the gateway on a sandbox.
// Probing never touches the persisted provisioning status.
type GatewayStatus struct {
	SandboxID     string
	Running       bool
	ProcessDetail string
	LogTail       string
	ScriptPresent bool
	PortListening bool
}

const (
	markerDetail = "---DETAIL---"
	markerLog    = "---LOG---"
	markerScript = "---SCRIPT---"
	markerPort   = "---PORT---"
)

// CheckGatewayStatus probes the user's sandbox for gateway liveness, process
// details, a log tail, startup-script presence and port state. Concurrent
// calls for the same sandbox share one probe.
func (o *Orchestrator) CheckGatewayStatus(ctx context.Context, userID string) (*GatewayStatus, error) {
	rec, err := o.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rec.SandboxID == "" {
		return nil, fmt.Errorf("no sandbox")
	}

	v, err, _ := o.status.group.Do(rec.SandboxID, func() (any, error) {
		return o.probeGateway(ctx, rec.SandboxID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*GatewayStatus), nil
}

func (o *Orchestrator) probeGateway(ctx context.Context, sandboxID string) (*GatewayStatus, error) {
	cmd := fmt.Sprintf(
		`if pgrep -f %[1]s > /dev/null; then echo RUNNING; else echo NOT_RUNNING; fi
echo '%[2]s'
ps aux | grep -F %[1]s | grep -v grep || true
echo '%[3]s'
tail -n 20 %[4]s 2>/dev/null || true
echo '%[5]s'
if [ -f %[6]s ]; then echo SCRIPT_PRESENT; else echo SCRIPT_MISSING; fi
echo '%[7]s'
if ss -ltn | grep -q ':%[8]d '; then echo PORT_OPEN; else echo PORT_CLOSED; fi`,
		gatewayProcess, markerDetail, markerLog, gatewayLog,
		markerScript, startScript, markerPort, provider.DefaultGatewayPort)

	res, err := o.vm.RunCommand(ctx, sandboxID, cmd)
	if err != nil {
		return nil, err
	}

	st := parseGatewayStatus(res.Output)
	st.SandboxID = sandboxID
	return st, nil
}

// parseGatewayStatus splits the probe's sentinel-delimited output into a
// snapshot.
func parseGatewayStatus(output string) *GatewayStatus {
	st := &GatewayStatus{}

	head, rest := splitMarker(output, markerDetail)
	st.Running = strings.Contains(head, "RUNNING") && !strings.Contains(head, "NOT_RUNNING")

	detail, rest := splitMarker(rest, markerLog)
	st.ProcessDetail = strings.TrimSpace(detail)

	logTail, rest := splitMarker(rest, markerScript)
	st.LogTail = strings.TrimSpace(logTail)

	script, portPart := splitMarker(rest, markerPort)
	st.ScriptPresent = strings.Contains(script, "SCRIPT_PRESENT")
	st.PortListening = strings.Contains(portPart, "PORT_OPEN")

	return st
}

func splitMarker(s, marker string) (before, after string) {
	before, after, found := strings.Cut(s, marker)
	if !found {
		return s, ""
	}
	return before, after
}
