// Command attestixd runs the attestation kernel as an MCP-style stdio
// server: one JSON request per line on stdin, one JSON response per line on
// stdout. All diagnostic logging goes to stderr so it never corrupts the
// response stream.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/VibeTensor/attestix/pkg/anchor"
	"github.com/VibeTensor/attestix/pkg/compliance"
	"github.com/VibeTensor/attestix/pkg/config"
	"github.com/VibeTensor/attestix/pkg/credential"
	"github.com/VibeTensor/attestix/pkg/delegation"
	"github.com/VibeTensor/attestix/pkg/identity"
	"github.com/VibeTensor/attestix/pkg/kernel"
	"github.com/VibeTensor/attestix/pkg/observability"
	"github.com/VibeTensor/attestix/pkg/provenance"
	"github.com/VibeTensor/attestix/pkg/ratelimit"
	"github.com/VibeTensor/attestix/pkg/reputation"
	"github.com/VibeTensor/attestix/pkg/resolver"
	"github.com/VibeTensor/attestix/pkg/safestore"
	"github.com/VibeTensor/attestix/pkg/serverkey"
	"github.com/VibeTensor/attestix/pkg/toolserver"
)

func main() {
	os.Exit(Run(os.Args, os.Stdin, os.Stdout, os.Stderr))
}

// Run is the testable entrypoint.
func Run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cmd := "serve"
	if len(args) >= 2 {
		cmd = args[1]
	}

	switch cmd {
	case "serve", "server":
		return runServe(stdin, stdout, stderr)
	case "health":
		return runHealth(stdout)
	case "version":
		fmt.Fprintln(stdout, "attestixd 1.0.0")
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n", cmd)
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "attestixd — attestation kernel for AI agents")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "usage: attestixd [command]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "commands:")
	fmt.Fprintln(w, "  serve    run the tool-call server over stdio (default)")
	fmt.Fprintln(w, "  health   print readiness and exit")
	fmt.Fprintln(w, "  version  print version and exit")
	fmt.Fprintln(w, "  help     show this help")
}

func runHealth(stdout io.Writer) int {
	fmt.Fprintln(stdout, "OK")
	return 0
}

// request is one line of stdin input: a tool name, its arguments, and an
// opaque ID the caller uses to correlate the matching response line.
type request struct {
	ID   any            `json:"id,omitempty"`
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

// response is one line of stdout output. Result is already a JSON-encoded
// string produced by toolserver.Dispatch — it is embedded raw, not
// re-escaped, so the caller sees the same object Dispatch produced.
type response struct {
	ID     any             `json:"id,omitempty"`
	Result json.RawMessage `json:"result"`
}

func runServe(stdin io.Reader, stdout, stderr io.Writer) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.Load()
	logger := newLogger(cfg.LogLevel, stderr)
	slog.SetDefault(logger)

	obsCfg := observability.DefaultConfig()
	obsCfg.Enabled = cfg.OTELEnabled
	if cfg.OTELEndpoint != "" {
		obsCfg.OTLPEndpoint = cfg.OTELEndpoint
	}
	provider, err := observability.New(ctx, obsCfg)
	if err != nil {
		logger.Error("observability init failed; continuing without it", "error", err)
		provider, _ = observability.New(ctx, &observability.Config{Enabled: false})
	}
	defer func() {
		if shutdownErr := provider.Shutdown(context.Background()); shutdownErr != nil {
			logger.Error("observability shutdown failed", "error", shutdownErr)
		}
	}()

	registry, err := wireRegistry(cfg, logger)
	if err != nil {
		logger.Error("failed to wire services", "error", err)
		return 1
	}

	limiter := ratelimit.NewInProcess(50, 100)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	logger.Info("attestixd ready", "tools", len(registry.Names()))
	serveLoop(ctx, registry, limiter, provider, stdin, stdout, logger)
	return 0
}

func newLogger(level string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}

func serveLoop(ctx context.Context, registry *toolserver.Registry, limiter *ratelimit.InProcess, provider *observability.Provider, stdin io.Reader, stdout io.Writer, logger *slog.Logger) {
	scanner := bufio.NewScanner(stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	out := bufio.NewWriter(stdout)
	defer out.Flush()

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			writeLine(out, response{Result: json.RawMessage(`{"error":"malformed request"}`)})
			continue
		}

		actor, _ := req.Args["agent_id"].(string)
		if actor == "" {
			actor = "anonymous"
		}
		if !limiter.Allow(ctx, actor) {
			writeLine(out, response{ID: req.ID, Result: json.RawMessage(`{"error":"rate limited"}`)})
			continue
		}

		opCtx, done := provider.TrackOperation(ctx, "tool."+req.Tool, observability.AttrAgentID.String(actor))
		raw := registry.Dispatch(opCtx, req.Tool, req.Args)
		done(dispatchError(raw))
		writeLine(out, response{ID: req.ID, Result: json.RawMessage(raw)})
		logger.Debug("dispatched", "tool", req.Tool)
	}
	if err := scanner.Err(); err != nil {
		logger.Error("stdin read error", "error", err)
	}
}

// dispatchError reports whether a Dispatch result carries an {"error": ...}
// envelope, for observability's error counter.
func dispatchError(raw string) error {
	var probe struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal([]byte(raw), &probe); err == nil && probe.Error != "" {
		return fmt.Errorf("%s", probe.Error)
	}
	return nil
}

func writeLine(w *bufio.Writer, resp response) {
	b, err := json.Marshal(resp)
	if err != nil {
		b = []byte(`{"result":{"error":"failed to encode response"}}`)
	}
	w.Write(b)
	w.WriteByte('\n')
	w.Flush()
}

// wireRegistry constructs every service against its own Safe Store
// collection under cfg.StoreDir and assembles the tool dispatch registry.
func wireRegistry(cfg *config.Config, logger *slog.Logger) (*toolserver.Registry, error) {
	warnf := func(format string, args ...any) { logger.Warn(fmt.Sprintf(format, args...)) }

	if err := os.MkdirAll(cfg.StoreDir, 0o700); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	key, err := serverkey.Load(filepath.Join(cfg.StoreDir, "server_key.json"), warnf)
	if err != nil {
		return nil, fmt.Errorf("load server key: %w", err)
	}
	k := kernel.New(key)

	store := func(name string) (*safestore.Store, error) {
		return safestore.New(filepath.Join(cfg.StoreDir, name), warnf)
	}

	identityStore, err := store("identities.json")
	if err != nil {
		return nil, err
	}
	credentialStore, err := store("credentials.json")
	if err != nil {
		return nil, err
	}
	delegationStore, err := store("delegations.json")
	if err != nil {
		return nil, err
	}
	reputationStore, err := store("reputation.json")
	if err != nil {
		return nil, err
	}
	provenanceStore, err := store("provenance.json")
	if err != nil {
		return nil, err
	}
	complianceStore, err := store("compliance.json")
	if err != nil {
		return nil, err
	}
	anchorStore, err := store("anchors.json")
	if err != nil {
		return nil, err
	}
	keypairStore, err := store("keypairs.json")
	if err != nil {
		return nil, err
	}

	idSvc := identity.New(identityStore, k, key.DID())
	credSvc := credential.New(credentialStore, k, key.DID())
	delSvc := delegation.New(delegationStore, key.DID(), key.Private(), key.Public())
	repSvc := reputation.New(reputationStore)
	provSvc := provenance.New(provenanceStore, k)
	compSvc, err := compliance.New(complianceStore, k, key.DID(), credSvc)
	if err != nil {
		return nil, fmt.Errorf("init compliance service: %w", err)
	}

	ledger, err := buildLedger(cfg, logger)
	if err != nil {
		logger.Warn("anchoring ledger unavailable; anchoring runs local-only", "error", err)
	}
	anchorSvc := anchor.New(anchorStore, ledger, key.DID(), cfg.LedgerSchemaUID)

	res := resolver.New(cfg.UniversalResolverURL)
	keyMinter := resolver.NewKeyMinter(keypairStore)

	return toolserver.New(idSvc, credSvc, delSvc, repSvc, provSvc, compSvc, anchorSvc, res, keyMinter), nil
}

// buildLedger constructs the EAS ledger client when configured, or returns a
// nil Ledger (local-only anchoring mode) when it isn't.
func buildLedger(cfg *config.Config, logger *slog.Logger) (anchor.Ledger, error) {
	if cfg.AnchoringDisabled {
		return nil, nil
	}
	if cfg.LedgerRPCURL == "" || cfg.LedgerPrivateKey == "" {
		return nil, fmt.Errorf("LEDGER_RPC_URL/LEDGER_PRIVATE_KEY not set")
	}
	ctx := context.Background()
	l, err := anchor.NewEASLedger(ctx, cfg.LedgerRPCURL, cfg.LedgerPrivateKey, cfg.LedgerChainID, cfg.LedgerSchemaUID)
	if err != nil {
		return nil, err
	}
	logger.Info("EAS ledger connected", "network", cfg.LedgerNetwork, "chain_id", cfg.LedgerChainID)
	return l, nil
}
