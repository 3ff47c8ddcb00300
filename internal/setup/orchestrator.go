// Package setup drives the sandbox provisioning workflow: create the VM,
// install the agent runtime, write the provider configuration, start the
// gateway process. Every step is idempotent and persists its outcome, so a
// sequence interrupted at any point resumes from the first incomplete step.
//
// Failure semantics follow the control-plane error taxonomy: an AuthError is
// fatal to the whole sequence and surfaced verbatim, a TransientError is
// surfaced without an internal retry loop. Several steps (process start in
// particular) are not safely auto-retried, so the decision to re-invoke
// belongs to the caller.
package setup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/majorcontext/bastion/internal/log"
	"github.com/majorcontext/bastion/internal/provider"
	"github.com/majorcontext/bastion/internal/secretbox"
	"github.com/majorcontext/bastion/internal/store"
	"github.com/majorcontext/bastion/internal/vmapi"
)

const (
	runtimeDir     = "/opt/bastion/agent"
	runtimeBinary  = runtimeDir + "/bin/agent"
	runtimeVersion = "0.6.3"
	runtimeURL     = "https://releases.bastion.dev/agent/v" + runtimeVersion + "/agent-linux-amd64.tar.gz"
	runtimeSHA256  = "8f4e2c9a1d7b3f6050e8a2b4c1d9e7f3a6b8c0d2e4f6a8b0c2d4e6f8a0b2c4d6"

	configPath     = runtimeDir + "/config.json"
	startScript    = runtimeDir + "/bin/start-gateway.sh"
	gatewayLog     = "/var/log/bastion-gateway.log"
	gatewayProcess = "bastion-gateway"
	secretEnvPath  = runtimeDir + "/secret.env"

	// startGrace is how long to wait after killing an old gateway before
	// launching a new one, letting the port free up.
	startGrace = 2 * time.Second

	syncTimeout = 30 * time.Second
)

// CommandRunner is the slice of the control-plane client the orchestrator
// uses.
type CommandRunner interface {
	RunCommand(ctx context.Context, sandboxID, command string) (vmapi.ExecResult, error)
	CreateSandbox(ctx context.Context, projectID string) (vmapi.Sandbox, error)
	DeleteSandbox(ctx context.Context, sandboxID string) error
}

// Orchestrator runs provisioning steps against sandboxes, one user at a
// time per record.
type Orchestrator struct {
	vm      CommandRunner
	records *store.Store
	codec   *secretbox.Codec
	project string
	locks   *lockTable

	status statusProber

	// grace overrides startGrace in tests.
	grace time.Duration
}

// New creates an orchestrator. codec is the credential-class codec; project
// is the control-plane project sandboxes are created under.
func New(vm CommandRunner, records *store.Store, codec *secretbox.Codec, project string) *Orchestrator {
	return &Orchestrator{
		vm:      vm,
		records: records,
		codec:   codec,
		project: project,
		locks:   newLockTable(),
		grace:   startGrace,
	}
}

// SaveCredential stores a provider credential for the user, encrypting it at
// rest. providerID must name a catalog entry; use the detection flow first
// when the provider is not yet known. If the user already has a sandbox, the
// new credential is pushed to it in the background without blocking the
// caller.
func (o *Orchestrator) SaveCredential(ctx context.Context, userID, providerID, credential string) error {
	desc := provider.ByID(providerID)
	if desc == nil {
		return fmt.Errorf("unknown provider %q", providerID)
	}

	unlock := o.lock(userID)
	defer unlock()

	rec, err := o.loadOrInit(ctx, userID)
	if err != nil {
		return err
	}

	enc, _, err := o.codec.EncryptIfNeeded(credential)
	if err != nil {
		return fmt.Errorf("encrypting credential: %w", err)
	}
	rec.Provider = desc.ID
	rec.Credential = enc
	if err := o.records.Upsert(ctx, rec); err != nil {
		return err
	}

	if rec.SandboxID != "" {
		o.SyncSecretToVM(userID)
	}
	return nil
}

// SaveTelegramToken stores the Telegram bot token for the user, encrypted.
func (o *Orchestrator) SaveTelegramToken(ctx context.Context, userID, token string) error {
	unlock := o.lock(userID)
	defer unlock()

	rec, err := o.loadOrInit(ctx, userID)
	if err != nil {
		return err
	}

	enc, _, err := o.codec.EncryptIfNeeded(token)
	if err != nil {
		return fmt.Errorf("encrypting token: %w", err)
	}
	rec.TelegramToken = enc
	return o.records.Upsert(ctx, rec)
}

// CreateVM allocates a sandbox for the user and marks the first milestone.
// Re-invoking when a sandbox already exists reuses the existing handle
// rather than allocating a second one.
func (o *Orchestrator) CreateVM(ctx context.Context, userID string) (*store.Record, error) {
	unlock := o.lock(userID)
	defer unlock()

	rec, err := o.loadOrInit(ctx, userID)
	if err != nil {
		return nil, err
	}

	if rec.SandboxID != "" && rec.Status.VMCreated {
		return rec, nil
	}

	sb, err := o.vm.CreateSandbox(ctx, o.project)
	if err != nil {
		return nil, o.fail(ctx, rec, "creating sandbox", err)
	}

	rec.SandboxID = sb.ID
	rec.Endpoint = sb.Endpoint
	rec.Status.VMCreated = true
	rec.Status.LastError = ""
	if err := o.records.Upsert(ctx, rec); err != nil {
		return nil, err
	}
	log.Info("sandbox created", "user", userID, "sandbox", sb.ID)
	return rec, nil
}

// InstallRuntime downloads and verifies the agent runtime on the sandbox.
// The install is keyed to a fixed target path and checksum-verified, so
// re-running it on an already-provisioned sandbox is a no-op.
func (o *Orchestrator) InstallRuntime(ctx context.Context, userID string) error {
	unlock := o.lock(userID)
	defer unlock()

	rec, err := o.load(ctx, userID)
	if err != nil {
		return err
	}
	if !rec.Status.VMCreated || rec.SandboxID == "" {
		return fmt.Errorf("sandbox not created yet")
	}

	cmd := fmt.Sprintf(
		`if [ -x %[1]s ]; then echo INSTALL_OK; else `+
			`curl -fsSL %[2]s -o /tmp/bastion-agent.tar.gz && `+
			`echo "%[3]s  /tmp/bastion-agent.tar.gz" | sha256sum -c --quiet - && `+
			`mkdir -p %[4]s && tar -xzf /tmp/bastion-agent.tar.gz -C %[4]s && `+
			`rm -f /tmp/bastion-agent.tar.gz && echo INSTALL_OK; fi`,
		runtimeBinary, runtimeURL, runtimeSHA256, runtimeDir)

	res, err := o.vm.RunCommand(ctx, rec.SandboxID, cmd)
	if err != nil {
		return o.fail(ctx, rec, "installing runtime", err)
	}
	if res.ExitCode != 0 || !strings.Contains(res.Output, "INSTALL_OK") {
		return o.fail(ctx, rec, "installing runtime",
			fmt.Errorf("install failed (exit %d): %s", res.ExitCode, trimOutput(res.Output)))
	}

	rec.Status.RuntimeInstalled = true
	rec.Status.LastError = ""
	if err := o.records.Upsert(ctx, rec); err != nil {
		return err
	}
	log.Info("runtime installed", "user", userID, "sandbox", rec.SandboxID)
	return nil
}

// ConfigureChannel renders the provider configuration, including the
// Telegram section when a bot token is stored, and writes it to the
// runtime's config path on the sandbox. Idempotent by overwrite.
func (o *Orchestrator) ConfigureChannel(ctx context.Context, userID string) error {
	unlock := o.lock(userID)
	defer unlock()

	rec, err := o.load(ctx, userID)
	if err != nil {
		return err
	}
	if !rec.Status.RuntimeInstalled {
		return fmt.Errorf("runtime not installed yet")
	}

	desc := provider.ByID(rec.Provider)
	if desc == nil {
		return fmt.Errorf("no provider selected")
	}

	credential, err := o.decrypt(rec.Credential)
	if err != nil || credential == "" {
		return fmt.Errorf("no credential configured")
	}
	// A missing or unreadable token just disables the channel section.
	botToken, _ := o.decrypt(rec.TelegramToken)

	if rec.GatewayToken == "" {
		enc, err := o.codec.Encrypt(uuid.NewString())
		if err != nil {
			return fmt.Errorf("generating gateway token: %w", err)
		}
		rec.GatewayToken = enc
	}
	gatewayToken, err := o.decrypt(rec.GatewayToken)
	if err != nil {
		return fmt.Errorf("reading gateway token: %w", err)
	}

	doc := provider.RenderConfig(desc, credential, provider.Options{
		Model:            rec.Model,
		TelegramBotToken: botToken,
		GatewayToken:     gatewayToken,
	})
	data, err := doc.Encode()
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	cmd := fmt.Sprintf("mkdir -p %s && cat > %s <<'BASTION_EOF'\n%s\nBASTION_EOF\nchmod 600 %s",
		runtimeDir, configPath, string(data), configPath)
	res, err := o.vm.RunCommand(ctx, rec.SandboxID, cmd)
	if err != nil {
		return o.fail(ctx, rec, "writing config", err)
	}
	if res.ExitCode != 0 {
		return o.fail(ctx, rec, "writing config",
			fmt.Errorf("config write failed (exit %d): %s", res.ExitCode, trimOutput(res.Output)))
	}

	rec.Status.TelegramConfigured = true
	rec.Status.LastError = ""
	if err := o.records.Upsert(ctx, rec); err != nil {
		return err
	}
	log.Info("channel configured", "user", userID, "sandbox", rec.SandboxID)
	return nil
}

// StartGateway stops any running gateway, waits for the port to free, then
// launches a fresh one detached from this call and verifies it is actually
// up. The launch command's own exit code is not trusted: a detached process
// routinely returns control before it has bound its socket, so success is
// established by probing for the process and the listening port.
func (o *Orchestrator) StartGateway(ctx context.Context, userID string) error {
	unlock := o.lock(userID)
	defer unlock()

	rec, err := o.load(ctx, userID)
	if err != nil {
		return err
	}
	if !rec.Status.TelegramConfigured {
		return fmt.Errorf("channel not configured yet")
	}

	// pkill exits 1 when nothing matched; that is the common case on first
	// start and not a failure.
	killCmd := fmt.Sprintf("pkill -f %s || true", gatewayProcess)
	if _, err := o.vm.RunCommand(ctx, rec.SandboxID, killCmd); err != nil {
		return o.fail(ctx, rec, "stopping old gateway", err)
	}

	select {
	case <-time.After(o.grace):
	case <-ctx.Done():
		return ctx.Err()
	}

	launchCmd := fmt.Sprintf("nohup %s --name %s --config %s >> %s 2>&1 &",
		startScript, gatewayProcess, configPath, gatewayLog)
	if _, err := o.vm.RunCommand(ctx, rec.SandboxID, launchCmd); err != nil {
		return o.fail(ctx, rec, "launching gateway", err)
	}

	probeCmd := fmt.Sprintf(
		`if pgrep -f %s > /dev/null && ss -ltn | grep -q ':%d '; then echo RUNNING; else echo NOT_RUNNING; fi`,
		gatewayProcess, provider.DefaultGatewayPort)
	res, err := o.vm.RunCommand(ctx, rec.SandboxID, probeCmd)
	if err != nil {
		return o.fail(ctx, rec, "verifying gateway", err)
	}
	if !strings.Contains(res.Output, "RUNNING") || strings.Contains(res.Output, "NOT_RUNNING") {
		return o.fail(ctx, rec, "verifying gateway",
			fmt.Errorf("gateway did not come up: %s", trimOutput(res.Output)))
	}

	rec.Status.GatewayStarted = true
	rec.Status.LastError = ""
	if err := o.records.Upsert(ctx, rec); err != nil {
		return err
	}
	log.Info("gateway started", "user", userID, "sandbox", rec.SandboxID)
	return nil
}

// SyncSecretToVM pushes the user's current credential to the sandbox in the
// background. The caller never waits on it and never sees its errors; a
// sandbox that misses a sync picks the secret up on the next one.
func (o *Orchestrator) SyncSecretToVM(userID string) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("secret sync panicked", "user", userID, "panic", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
		defer cancel()

		if err := o.syncSecret(ctx, userID); err != nil {
			log.Warn("secret sync failed", "user", userID, "error", err)
		}
	}()
}

// syncSecret is the synchronous body of SyncSecretToVM.
func (o *Orchestrator) syncSecret(ctx context.Context, userID string) error {
	unlock := o.lock(userID)
	defer unlock()

	rec, err := o.load(ctx, userID)
	if err != nil {
		return err
	}
	if rec.SandboxID == "" {
		return fmt.Errorf("no sandbox")
	}

	desc := provider.ByID(rec.Provider)
	if desc == nil {
		return fmt.Errorf("no provider selected")
	}
	credential, err := o.decrypt(rec.Credential)
	if err != nil || credential == "" {
		return fmt.Errorf("no credential configured")
	}

	cmd := fmt.Sprintf("mkdir -p %s && printf '%s=%%s\\n' %s > %s && chmod 600 %s",
		runtimeDir, desc.EnvVar, shellQuote(credential), secretEnvPath, secretEnvPath)
	res, err := o.vm.RunCommand(ctx, rec.SandboxID, cmd)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("secret write failed (exit %d): %s", res.ExitCode, trimOutput(res.Output))
	}
	log.Debug("secret synced", "user", userID, "sandbox", rec.SandboxID)
	return nil
}

// TeardownVM deletes the user's sandbox. The remote delete is best-effort:
// the sandbox may already be gone, and local state must never keep pointing
// at a handle that might not exist, so the local record is removed
// unconditionally.
func (o *Orchestrator) TeardownVM(ctx context.Context, userID string) error {
	unlock := o.lock(userID)
	defer unlock()

	rec, err := o.records.Get(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if rec.SandboxID != "" {
		if err := o.vm.DeleteSandbox(ctx, rec.SandboxID); err != nil {
			log.Warn("remote sandbox delete failed", "user", userID,
				"sandbox", rec.SandboxID, "error", err)
		}
	}
	return o.records.Delete(ctx, userID)
}

func (o *Orchestrator) lock(userID string) func() {
	l := o.locks.get(userID)
	l.Lock()
	return l.Unlock
}

func (o *Orchestrator) load(ctx context.Context, userID string) (*store.Record, error) {
	return o.records.Get(ctx, userID)
}

func (o *Orchestrator) loadOrInit(ctx context.Context, userID string) (*store.Record, error) {
	rec, err := o.records.Get(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return &store.Record{UserID: userID}, nil
	}
	return rec, err
}

// fail records a sticky step error on the status and returns the wrapped
// error. Earlier milestones are left untouched.
func (o *Orchestrator) fail(ctx context.Context, rec *store.Record, op string, err error) error {
	wrapped := fmt.Errorf("%s: %w", op, err)
	rec.Status.LastError = wrapped.Error()
	if uerr := o.records.Upsert(ctx, rec); uerr != nil {
		log.Error("persisting step failure", "user", rec.UserID, "error", uerr)
	}
	return wrapped
}

// decrypt reads a stored ciphertext field. An unreadable value is treated as
// absent rather than fatal.
func (o *Orchestrator) decrypt(value string) (string, error) {
	if value == "" {
		return "", nil
	}
	plain, err := o.codec.Decrypt(value)
	if err != nil {
		var derr *secretbox.DecryptError
		if errors.As(err, &derr) {
			log.Warn("stored field unreadable with current key")
			return "", err
		}
		return "", err
	}
	return plain, nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func trimOutput(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
