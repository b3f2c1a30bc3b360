package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"docchat/internal/app"
	"docchat/internal/config"
	"docchat/internal/docchat"
	"docchat/internal/remote"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file (falling back to defaults when there is none)
// and applies .env and DOCCHAT_* overrides.
func loadConfig() (*config.Config, *app.Defaults, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.Load(defaults.ConfigPath, defaults.Config())
	if err != nil {
		return nil, nil, fmt.Errorf("reading config: %w", err)
	}
	if err := config.ApplyEnv(cfg, defaults.EnvFile); err != nil {
		return nil, nil, fmt.Errorf("reading environment: %w", err)
	}
	return cfg, defaults, nil
}

// newApp reads the config and creates a DocChatApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "upload", "chat").
func newApp(operation string) (*app.DocChatApp, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.NewDocChatApp(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// closeApp closes a and reports a close failure unless the command already failed.
func closeApp(a *app.DocChatApp, err *error) {
	if cerr := a.Close(); cerr != nil && *err == nil {
		*err = cerr
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

var rootCmd = &cobra.Command{
	Use:          "docchat",
	Short:        "Chat with your documents",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := defaults.Config()
		if url, _ := cmd.Flags().GetString("api-url"); url != "" {
			cfg.Remote.BaseURL = url
		}

		if err := config.Init(defaults.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults.ConfigPath)
		fmt.Printf("API URL:  %s\n", cfg.Remote.BaseURL)
		fmt.Printf("Base Dir: %s\n", cfg.BaseDir)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("output")

		cfg, defaults, err := loadConfig()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		switch format {
		case "toml":
			fmt.Fprintf(out, "# Effective configuration (file: %s)\n\n", defaults.ConfigPath)
			m := &config.Manager{}
			return m.Write(out, cfg)
		case formatJSON, formatYAML:
			return writeStructured(out, format, cfg)
		default:
			return fmt.Errorf("unknown output format %q (want toml, json or yaml)", format)
		}
	},
}

// files command
var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "List uploaded files",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		refresh, _ := cmd.Flags().GetBool("refresh")
		format, _ := cmd.Flags().GetString("output")
		if err := checkFormat(format); err != nil {
			return err
		}

		a, err := newApp("files")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		if refresh {
			if err := a.Engine().Refresh(cmd.Context()); err != nil {
				return err
			}
		}
		return printFiles(cmd.OutOrStdout(), format, a.Store().Snapshot())
	},
}

// upload command
var uploadCmd = &cobra.Command{
	Use:   "upload PATH...",
	Short: "Upload documents (PDF, DOCX, TXT, XLSX up to 50 MB)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		recursive, _ := cmd.Flags().GetBool("recursive")

		a, err := newApp("upload")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		if isTerminal(os.Stderr) {
			stop := a.Store().Subscribe(progressPrinter(os.Stderr))
			defer stop()
		}

		results := a.Engine().UploadPaths(cmd.Context(), args, recursive)
		if len(results) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No supported files found.")
			return nil
		}
		if failed := printUploadResults(cmd.OutOrStdout(), results); failed > 0 {
			return fmt.Errorf("%d of %d upload(s) failed", failed, len(results))
		}
		return nil
	},
}

// progressPrinter renders the in-flight upload percentage on a single terminal line.
func progressPrinter(w *os.File) func(docchat.Snapshot) {
	var (
		last     = -1
		revision uint64
		mu       sync.Mutex
	)
	return func(snap docchat.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		if snap.Revision <= revision {
			return
		}
		revision = snap.Revision

		if len(snap.Uploads) == 0 {
			if last >= 0 {
				fmt.Fprint(w, "\r\033[K")
				last = -1
			}
			return
		}
		p := snap.Uploads[len(snap.Uploads)-1].Percent
		if p != last {
			fmt.Fprintf(w, "\rUploading... %3d%%", p)
			last = p
		}
	}
}

// select command
var selectCmd = &cobra.Command{
	Use:   "select REF",
	Short: "Select a file and start chatting about it",
	Long:  "Select a file by list number, session id or filename, then start an interactive chat about it.\nSelection lasts for the chat session; it is not saved between runs.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp("select")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		return runChat(cmd, a, args[0])
	},
}

// chat command
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		file, _ := cmd.Flags().GetString("file")

		a, err := newApp("chat")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		return runChat(cmd, a, file)
	},
}

func runChat(cmd *cobra.Command, a *app.DocChatApp, fileRef string) error {
	ctx := cmd.Context()
	if fileRef != "" {
		f, err := findFile(ctx, a.Engine(), fileRef)
		if err != nil {
			return err
		}
		if err := a.Engine().Select(f.SessionID); err != nil {
			return err
		}
	}
	r := newREPL(a.Engine(), cmd.InOrStdin(), cmd.OutOrStdout(), isTerminal(os.Stdin))
	return r.run(ctx)
}

// delete command
var deleteCmd = &cobra.Command{
	Use:   "delete REF",
	Short: "Delete an uploaded file and its embeddings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		yes, _ := cmd.Flags().GetBool("yes")

		a, err := newApp("delete")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		f, err := findFile(cmd.Context(), a.Engine(), args[0])
		if err != nil {
			return err
		}

		if !yes {
			if !isTerminal(os.Stdin) {
				return errors.New("refusing to delete without confirmation: pass --yes")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Delete %s (session %s)? This cannot be undone. [y/N] ", f.Filename, f.SessionID)
			var answer string
			fmt.Fscanln(cmd.InOrStdin(), &answer)
			if reply := strings.ToLower(strings.TrimSpace(answer)); reply != "y" && reply != "yes" {
				fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
				return nil
			}
		}

		if err := a.Engine().Delete(cmd.Context(), f.SessionID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", f.Filename)
		return nil
	},
}

// ask command
var askCmd = &cobra.Command{
	Use:   "ask QUESTION...",
	Short: "Ask a single question",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		file, _ := cmd.Flags().GetString("file")
		lang, _ := cmd.Flags().GetString("lang")

		a, err := newApp("ask")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		ctx := cmd.Context()
		if lang != "" {
			if _, err := a.Engine().SetLanguage(lang); err != nil {
				return err
			}
		}
		if file != "" {
			f, err := findFile(ctx, a.Engine(), file)
			if err != nil {
				return err
			}
			if err := a.Engine().Select(f.SessionID); err != nil {
				return err
			}
		}

		ex, err := a.Engine().Ask(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}
		printExchange(cmd.OutOrStdout(), ex)
		return ex.Err
	},
}

// lang command
var langCmd = &cobra.Command{
	Use:   "lang [en|ms]",
	Short: "Show or set the response language",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp("lang")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		if len(args) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), a.Store().Language())
			return nil
		}
		lang, err := a.Engine().SetLanguage(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Language set to %s\n", lang)
		return nil
	},
}

// health command
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the document chat service is reachable",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp("health")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		if err := a.Engine().Health(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "ok (%s)\n", a.Config().Remote.BaseURL)
		return nil
	},
}

// mock-server command
var mockServerCmd = &cobra.Command{
	Use:   "mock-server",
	Short: "Serve the document chat API from memory, for local testing",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")

		svc := remote.NewMemoryService(docchat.RealClock{}, docchat.UUIDGenerator{})
		srv := &http.Server{
			Addr:              addr,
			Handler:           remote.NewMockHandler(svc, docchat.NewNopLogger()),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.ListenAndServe()
		}()
		fmt.Fprintf(cmd.OutOrStdout(), "Mock API listening on http://%s/api\n", addr)

		select {
		case err := <-errCh:
			return err
		case <-cmd.Context().Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configInitCmd.Flags().String("api-url", "", "Document chat API base URL")
	configCmd.AddCommand(configListCmd)
	configListCmd.Flags().StringP("output", "o", "toml", "Output format: toml, json or yaml")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(filesCmd)
	filesCmd.Flags().Bool("refresh", false, "Reload the file list from the server first")
	filesCmd.Flags().StringP("output", "o", formatTable, "Output format: table, json or yaml")
	rootCmd.AddCommand(uploadCmd)
	uploadCmd.Flags().BoolP("recursive", "r", false, "Recurse into subdirectories")
	rootCmd.AddCommand(selectCmd)
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringP("file", "f", "", "Start with this file selected")
	rootCmd.AddCommand(deleteCmd)
	deleteCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringP("file", "f", "", "Ask about this file (list number, session id or filename)")
	askCmd.Flags().StringP("lang", "l", "", "Response language, en or ms (saved as the preference)")
	rootCmd.AddCommand(langCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(mockServerCmd)
	mockServerCmd.Flags().String("addr", "127.0.0.1:8000", "Listen address")
}
