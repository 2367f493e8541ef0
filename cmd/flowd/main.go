package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/flowforge/runtime/pkg/api"
	"github.com/flowforge/runtime/pkg/events"
	"github.com/flowforge/runtime/pkg/flowregistry"
	"github.com/flowforge/runtime/pkg/flowstore"
	"github.com/flowforge/runtime/pkg/log"
	"github.com/flowforge/runtime/pkg/mediaengine"
	"github.com/flowforge/runtime/pkg/metrics"
	"github.com/flowforge/runtime/pkg/pipeline"
	"github.com/flowforge/runtime/pkg/propsvc"
	"github.com/flowforge/runtime/pkg/reconciler"
	"github.com/flowforge/runtime/pkg/registry"
)

// Exit codes of the flowd CLI.
const (
	exitOK             = 0
	exitGenericError   = 1
	exitBadArgs        = 2
	exitPortInUse      = 3
	exitStorageInitErr = 4
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitGenericError)
	}
}

var rootCmd = &cobra.Command{
	Use:     "flowd",
	Short:   "Flow Runtime daemon",
	Long:    "flowd runs the Flow Runtime core: REST control surface, MCP tool surface, and the lifecycle managers behind them.",
	Version: fmt.Sprintf("%s (%s)", version, commit),
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(hashPasswordCmd)

	serveCmd.Flags().Bool("headless", false, "Run without the bundled graph-editor static assets")
	serveCmd.Flags().String("data-dir", "./flowd-data", "Directory for persisted flows and runtime-state checkpoints")
	serveCmd.Flags().Int("port", 8080, "REST/MCP/event-stream listen port")
	serveCmd.Flags().String("storage", "bolt", "Storage backend: bolt or jsonfile")
	serveCmd.Flags().String("skiplist", "", "Path to a skiplist.yaml overriding the default crash-prone factory list")
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOut})
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Flow Runtime daemon",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	headless, _ := cmd.Flags().GetBool("headless")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	port, _ := cmd.Flags().GetInt("port")
	storageKind, _ := cmd.Flags().GetString("storage")
	skipListPath, _ := cmd.Flags().GetString("skiplist")

	if port <= 0 || port > 65535 {
		fmt.Fprintf(os.Stderr, "invalid --port %d\n", port)
		os.Exit(exitBadArgs)
	}
	if storageKind != "bolt" && storageKind != "jsonfile" {
		fmt.Fprintf(os.Stderr, "invalid --storage %q: must be bolt or jsonfile\n", storageKind)
		os.Exit(exitBadArgs)
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create data dir: %v\n", err)
		os.Exit(exitStorageInitErr)
	}

	if skipListPath == "" {
		skipListPath = filepath.Join(dataDir, "skiplist.yaml")
	}
	skipList, err := registry.LoadSkipList(skipListPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load skip list: %v\n", err)
		os.Exit(exitStorageInitErr)
	}

	store, err := openStore(storageKind, dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize storage: %v\n", err)
		os.Exit(exitStorageInitErr)
	}
	defer store.Close()
	metrics.RegisterComponent("storage", true, "ready")
	metrics.SetVersion(version)

	engine := mediaengine.NewSimEngine(skipList)
	elements := registry.New(engine)
	metrics.RegisterComponent("registry", true, "ready")
	broker := events.NewBroker()
	builder := pipeline.New(elements)
	runtime := flowregistry.New(elements, builder, broker, store)
	props := propsvc.New(runtime, elements)

	recon := reconciler.New(runtime, store)
	reconcileCtx, cancelReconcile := context.WithTimeout(context.Background(), 30*time.Second)
	if err := recon.Reconcile(reconcileCtx); err != nil {
		log.Logger.Warn().Err(err).Msg("startup reconciliation reported errors")
	}
	cancelReconcile()
	recon.Start()
	defer recon.Stop()

	addr := fmt.Sprintf(":%d", port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to bind %s: %v\n", addr, err)
		os.Exit(exitPortInUse)
	}
	_ = ln.Close() // release the probe bind; api.Server opens its own listener

	server := api.NewServer(addr, runtime, elements, props, broker)
	metrics.RegisterComponent("api", true, "ready")

	metricsAddr := "127.0.0.1:9090"
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			log.Logger.Warn().Err(err).Msg("metrics server exited")
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	mode := "UI + REST"
	if headless {
		mode = "REST only (headless)"
	}
	log.Logger.Info().Str("addr", addr).Str("mode", mode).Str("data_dir", dataDir).Msg("flowd started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Logger.Info().Msg("shutting down")
	case err := <-errCh:
		log.Logger.Error().Err(err).Msg("server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Logger.Warn().Err(err).Msg("graceful shutdown failed")
	}

	for _, id := range runtime.List() {
		if m, err := runtime.Get(id); err == nil {
			_ = m.Stop(shutdownCtx)
		}
	}

	return nil
}

func openStore(kind, dataDir string) (flowstore.Store, error) {
	switch kind {
	case "jsonfile":
		return flowstore.NewJSONFileStore(filepath.Join(dataDir, "flows.json"))
	default:
		return flowstore.NewBoltStore(dataDir)
	}
}

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password",
	Short: "Hash a password for the introspection API's basic-auth credential file",
	RunE: func(cmd *cobra.Command, args []string) error {
		var password string
		if len(args) > 0 {
			password = args[0]
		} else {
			fmt.Fprint(os.Stderr, "Password: ")
			var buf [256]byte
			n, err := os.Stdin.Read(buf[:])
			if err != nil {
				return err
			}
			password = trimNewline(string(buf[:n]))
		}
		if password == "" {
			fmt.Fprintln(os.Stderr, "password must not be empty")
			os.Exit(exitBadArgs)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
		fmt.Println(string(hash))
		return nil
	},
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
