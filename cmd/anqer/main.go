package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/anqer/anqer/internal/adapters"
	"github.com/anqer/anqer/internal/config"
	"github.com/anqer/anqer/internal/enrich"
	"github.com/anqer/anqer/internal/identity"
	"github.com/anqer/anqer/internal/live"
	"github.com/anqer/anqer/internal/model"
	"github.com/anqer/anqer/internal/store"
	"github.com/anqer/anqer/internal/store/sqlitestore"
	"github.com/anqer/anqer/internal/sync"
	"github.com/anqer/anqer/internal/timeline"
)

var (
	version    = "dev"
	commit     = "none"
	buildDate  = "unknown"
	jsonOutput bool
)

// app bundles everything a command needs after startup.
type app struct {
	cfg        *config.Config
	store      *store.Store
	resolver   *identity.Resolver
	summarizer enrich.Summarizer
	engine     *sync.Engine
	durable    *sqlitestore.DB
}

// openApp loads config, opens the durable store and hydrates the
// in-memory store. The caller must call close when done.
func openApp() (*app, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	durable, err := sqlitestore.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	logf := func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}

	st := store.New(durable, logf)
	st.Load()

	resolver := identity.NewResolver(st)

	var summarizer enrich.Summarizer
	if key := config.GeminiAPIKey(); key != "" {
		summarizer = enrich.NewGeminiClient(key)
	} else {
		summarizer = enrich.Unavailable{}
	}

	a := &app{
		cfg:        cfg,
		store:      st,
		resolver:   resolver,
		summarizer: summarizer,
		engine:     sync.NewEngine(st, resolver, summarizer, cfg),
		durable:    durable,
	}
	return a, func() { durable.Close() }, nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "anqer",
		Short: "Personal relationship intelligence engine",
		Long: `Anqer ingests your communications (Gmail, WhatsApp exports,
LinkedIn connections) into a single store with deterministic
identity resolution, and synthesizes relationship narratives.`,
	}

	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")

	// version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(cmd *cobra.Command, args []string) {
			if jsonOutput {
				printJSON(map[string]string{
					"version": version,
					"commit":  commit,
					"date":    buildDate,
				})
			} else {
				fmt.Printf("anqer %s (%s, %s)\n", version, commit, buildDate)
			}
		},
	})

	// init command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Initialize anqer config and database",
		Run: func(cmd *cobra.Command, args []string) {
			type Result struct {
				OK        bool   `json:"ok"`
				Message   string `json:"message,omitempty"`
				ConfigDir string `json:"config_dir,omitempty"`
				DataDir   string `json:"data_dir,omitempty"`
			}

			result := Result{OK: true}

			configDir, err := config.GetConfigDir()
			if err != nil {
				fatal(fmt.Sprintf("Failed to get config directory: %v", err))
			}
			result.ConfigDir = configDir

			dataDir, err := config.GetDataDir()
			if err != nil {
				fatal(fmt.Sprintf("Failed to get data directory: %v", err))
			}
			result.DataDir = dataDir

			if err := os.MkdirAll(configDir, 0755); err != nil {
				fatal(fmt.Sprintf("Failed to create config directory: %v", err))
			}
			if err := os.MkdirAll(dataDir, 0755); err != nil {
				fatal(fmt.Sprintf("Failed to create data directory: %v", err))
			}

			// Opening applies the schema.
			durable, err := sqlitestore.Open()
			if err != nil {
				fatal(fmt.Sprintf("Failed to initialize database: %v", err))
			}
			durable.Close()

			result.Message = "Anqer initialized successfully"

			if jsonOutput {
				printJSON(result)
			} else {
				fmt.Printf("✓ Config directory: %s\n", result.ConfigDir)
				fmt.Printf("✓ Data directory: %s\n", result.DataDir)
				fmt.Println("\nAnqer initialized successfully!")
			}
		},
	})

	// me command
	meCmd := &cobra.Command{
		Use:   "me",
		Short: "Configure your identity",
		Run: func(cmd *cobra.Command, args []string) {
			type Result struct {
				OK      bool   `json:"ok"`
				Message string `json:"message,omitempty"`
				Name    string `json:"name,omitempty"`
			}

			name, _ := cmd.Flags().GetString("name")

			cfg, err := config.Load()
			if err != nil {
				fatal(fmt.Sprintf("Failed to load config: %v", err))
			}

			if name == "" {
				if cfg.Me.DisplayName == "" {
					fatal("Identity not configured. Run 'anqer me --name \"Your Name\"' to configure.")
				}
				result := Result{OK: true, Name: cfg.Me.DisplayName}
				if jsonOutput {
					printJSON(result)
				} else {
					fmt.Printf("Name: %s\n", result.Name)
				}
				return
			}

			cfg.Me.DisplayName = name
			if err := cfg.Save(); err != nil {
				fatal(fmt.Sprintf("Failed to save config: %v", err))
			}

			result := Result{OK: true, Message: "Identity updated successfully", Name: name}
			if jsonOutput {
				printJSON(result)
			} else {
				fmt.Println("✓ Identity updated successfully")
				fmt.Printf("  Name: %s\n", name)
			}
		},
	}
	meCmd.Flags().String("name", "", "Your display name")
	rootCmd.AddCommand(meCmd)

	// connect command
	connectCmd := &cobra.Command{
		Use:   "connect",
		Short: "Configure an adapter",
		Long:  "Configure and enable an adapter for syncing communications",
	}

	connectGoogleCmd := &cobra.Command{
		Use:   "google",
		Short: "Configure the Google adapter (Contacts + Gmail)",
		Run: func(cmd *cobra.Command, args []string) {
			type Result struct {
				OK      bool   `json:"ok"`
				Message string `json:"message,omitempty"`
			}

			cfg, err := config.Load()
			if err != nil {
				fatal(fmt.Sprintf("Failed to load config: %v", err))
			}

			cfg.Adapters["google"] = config.AdapterConfig{
				Type:    "google",
				Enabled: true,
			}

			if err := cfg.Save(); err != nil {
				fatal(fmt.Sprintf("Failed to save config: %v", err))
			}

			result := Result{OK: true, Message: "Google adapter configured successfully"}
			if jsonOutput {
				printJSON(result)
			} else {
				fmt.Println("✓ Google adapter configured")
				if config.GoogleAccessToken() == "" {
					fmt.Println("\nNote: set GOOGLE_ACCESS_TOKEN before syncing.")
				}
				fmt.Println("\nRun 'anqer sync' to sync Google contacts and mail")
			}
		},
	}
	connectCmd.AddCommand(connectGoogleCmd)
	rootCmd.AddCommand(connectCmd)

	// adapters command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "adapters",
		Short: "List configured adapters",
		Run: func(cmd *cobra.Command, args []string) {
			type AdapterInfo struct {
				Name    string `json:"name"`
				Type    string `json:"type"`
				Enabled bool   `json:"enabled"`
				Status  string `json:"status"`
			}
			type Result struct {
				OK       bool          `json:"ok"`
				Message  string        `json:"message,omitempty"`
				Adapters []AdapterInfo `json:"adapters,omitempty"`
			}

			cfg, err := config.Load()
			if err != nil {
				fatal(fmt.Sprintf("Failed to load config: %v", err))
			}

			result := Result{OK: true}
			if len(cfg.Adapters) == 0 {
				result.Message = "No adapters configured. Run 'anqer connect google' to configure one."
				if jsonOutput {
					printJSON(result)
				} else {
					fmt.Println(result.Message)
				}
				return
			}

			for name, adapter := range cfg.Adapters {
				status := "disabled"
				if adapter.Enabled {
					status = checkAdapterStatus(adapter)
				}
				result.Adapters = append(result.Adapters, AdapterInfo{
					Name:    name,
					Type:    adapter.Type,
					Enabled: adapter.Enabled,
					Status:  status,
				})
			}

			if jsonOutput {
				printJSON(result)
			} else {
				fmt.Println("Configured adapters:")
				for _, a := range result.Adapters {
					symbol := "✗"
					if a.Status == "ready" {
						symbol = "✓"
					}
					fmt.Printf("  %s %s (%s) - %s\n", symbol, a.Name, a.Type, a.Status)
				}
			}
		},
	})

	// sync command
	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync communications from adapters",
		Long:  "Synchronize communications from all enabled adapters or a specific adapter",
		Run: func(cmd *cobra.Command, args []string) {
			adapterName, _ := cmd.Flags().GetString("adapter")

			app, closeApp, err := openApp()
			if err != nil {
				fatal(err.Error())
			}
			defer closeApp()

			ctx := context.Background()

			var result sync.Result
			if adapterName != "" {
				result = app.engine.SyncOne(ctx, adapterName)
			} else {
				result = app.engine.SyncAll(ctx)
			}

			if jsonOutput {
				printJSON(result)
				if !result.OK {
					os.Exit(1)
				}
				return
			}

			if !result.OK && result.Message != "" {
				fmt.Fprintf(os.Stderr, "Error: %s\n", result.Message)
				os.Exit(1)
			}
			if len(result.Adapters) == 0 {
				fmt.Println(result.Message)
				return
			}

			fmt.Println("Sync results:")
			for _, ar := range result.Adapters {
				if ar.Success {
					fmt.Printf("\n✓ %s\n", ar.AdapterName)
					fmt.Printf("  Interactions created: %d\n", ar.InteractionsCreated)
					fmt.Printf("  Persons created: %d\n", ar.PersonsCreated)
					fmt.Printf("  Records skipped: %d\n", ar.RecordsSkipped)
					fmt.Printf("  Duration: %s\n", ar.Duration)
				} else {
					fmt.Printf("\n✗ %s\n", ar.AdapterName)
					fmt.Printf("  Error: %s\n", ar.Error)
				}
			}
			if !result.OK {
				os.Exit(1)
			}
		},
	}
	syncCmd.Flags().String("adapter", "", "Sync specific adapter (e.g., google)")
	rootCmd.AddCommand(syncCmd)

	// import command
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Import an exported data file",
	}

	importWhatsAppCmd := &cobra.Command{
		Use:   "whatsapp <archive.zip>",
		Short: "Import a WhatsApp chat export archive",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			app, closeApp, err := openApp()
			if err != nil {
				fatal(err.Error())
			}
			defer closeApp()

			adapter, err := adapters.NewWhatsAppAdapter(app.store, app.resolver, app.summarizer,
				app.cfg.Me.DisplayName, args[0])
			if err != nil {
				fatal(err.Error())
			}
			runImport(app.engine, adapter)
		},
	}

	importLinkedInCmd := &cobra.Command{
		Use:   "linkedin <connections.csv>",
		Short: "Import a LinkedIn connections export",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			app, closeApp, err := openApp()
			if err != nil {
				fatal(err.Error())
			}
			defer closeApp()

			f, err := os.Open(args[0])
			if err != nil {
				fatal(fmt.Sprintf("Failed to open file: %v", err))
			}
			defer f.Close()

			adapter, err := adapters.NewLinkedInAdapter(app.store, app.resolver, f)
			if err != nil {
				fatal(err.Error())
			}
			runImport(app.engine, adapter)
		},
	}

	importCmd.AddCommand(importWhatsAppCmd)
	importCmd.AddCommand(importLinkedInCmd)
	rootCmd.AddCommand(importCmd)

	// people command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "people",
		Short: "List known persons",
		Run: func(cmd *cobra.Command, args []string) {
			type PersonInfo struct {
				ID           string  `json:"id"`
				Name         string  `json:"name"`
				Confidence   float64 `json:"confidence"`
				Evidence     int     `json:"evidence"`
				Interactions int     `json:"interactions"`
			}
			type Result struct {
				OK      bool         `json:"ok"`
				Message string       `json:"message,omitempty"`
				People  []PersonInfo `json:"people,omitempty"`
			}

			app, closeApp, err := openApp()
			if err != nil {
				fatal(err.Error())
			}
			defer closeApp()

			result := Result{OK: true}
			for _, p := range app.store.Persons() {
				result.People = append(result.People, PersonInfo{
					ID:           p.ID,
					Name:         p.FullName,
					Confidence:   p.ConfidenceScore,
					Evidence:     len(app.store.EvidenceForPerson(p.ID)),
					Interactions: len(app.store.InteractionsForPerson(p.ID)),
				})
			}

			if jsonOutput {
				printJSON(result)
				return
			}
			if len(result.People) == 0 {
				fmt.Println("No persons known yet. Run 'anqer sync' or 'anqer import' first.")
				return
			}
			fmt.Printf("%d persons:\n", len(result.People))
			for _, p := range result.People {
				fmt.Printf("  %s  %-30s (confidence %.1f, %d evidence, %d interactions)\n",
					p.ID, p.Name, p.Confidence, p.Evidence, p.Interactions)
			}
		},
	})

	// timeline command
	timelineCmd := &cobra.Command{
		Use:   "timeline <person-id>",
		Short: "Show a person's interaction timeline and narrative",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			type EntryInfo struct {
				ID         string `json:"id"`
				OccurredAt string `json:"occurred_at"`
				Platform   string `json:"platform"`
				Summary    string `json:"summary"`
			}
			type Result struct {
				OK        bool        `json:"ok"`
				Message   string      `json:"message,omitempty"`
				Narrative string      `json:"narrative,omitempty"`
				Entries   []EntryInfo `json:"entries,omitempty"`
			}

			refresh, _ := cmd.Flags().GetBool("refresh")
			period, _ := cmd.Flags().GetString("period")

			app, closeApp, err := openApp()
			if err != nil {
				fatal(err.Error())
			}
			defer closeApp()

			svc := timeline.NewService(app.store, app.summarizer, app.durable)

			if period != "" {
				r, perr := timeline.ParseRangeArg(period)
				if perr != nil {
					fatal(perr.Error())
				}
				days, derr := svc.DailyActivity(args[0], r)
				if derr != nil {
					fatal(derr.Error())
				}
				if jsonOutput {
					printJSON(days)
					return
				}
				if len(days) == 0 {
					fmt.Println("No activity in that period.")
					return
				}
				for _, d := range days {
					fmt.Printf("%s  %d interactions\n", d.Date, d.Total)
					for platform, n := range d.ByPlatform {
						fmt.Printf("    %s: %d\n", platform, n)
					}
				}
				return
			}

			entries, err := svc.Entries(args[0])
			if err != nil {
				fatal(err.Error())
			}

			narrative, err := svc.Narrative(context.Background(), args[0], refresh)
			if err != nil {
				fatal(err.Error())
			}

			result := Result{OK: true, Narrative: narrative}
			for _, in := range entries {
				result.Entries = append(result.Entries, EntryInfo{
					ID:         in.ID,
					OccurredAt: in.OccurredAt.Format("2006-01-02 15:04"),
					Platform:   string(in.SourcePlatform),
					Summary:    in.SummaryShort,
				})
			}

			if jsonOutput {
				printJSON(result)
				return
			}
			fmt.Println("Relationship narrative:")
			fmt.Printf("  %s\n\n", narrative)
			if len(result.Entries) == 0 {
				fmt.Println("No interactions recorded.")
				return
			}
			fmt.Printf("%d interactions (newest first):\n", len(result.Entries))
			for _, e := range result.Entries {
				fmt.Printf("  %s  [%s]  %s\n", e.OccurredAt, e.Platform, e.Summary)
				fmt.Printf("    id: %s\n", e.ID)
			}
		},
	}
	timelineCmd.Flags().Bool("refresh", false, "Force narrative resynthesis, bypassing the cache")
	timelineCmd.Flags().String("period", "", "Show daily activity for a period (YYYY-MM-DD, YYYY-MM, or YYYY)")
	rootCmd.AddCommand(timelineCmd)

	// runs command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "runs",
		Short: "List recent sync runs",
		Run: func(cmd *cobra.Command, args []string) {
			type RunInfo struct {
				RunID     string `json:"run_id"`
				Platform  string `json:"platform"`
				Status    string `json:"status"`
				StartedAt string `json:"started_at"`
				Completed string `json:"completed_at,omitempty"`
				Error     string `json:"error,omitempty"`
			}
			type Result struct {
				OK      bool      `json:"ok"`
				Message string    `json:"message,omitempty"`
				Runs    []RunInfo `json:"runs,omitempty"`
			}

			app, closeApp, err := openApp()
			if err != nil {
				fatal(err.Error())
			}
			defer closeApp()

			result := Result{OK: true}
			for _, r := range app.store.SyncRuns() {
				info := RunInfo{
					RunID:     r.RunID,
					Platform:  string(r.Platform),
					Status:    r.Status,
					StartedAt: r.StartedAt.Format("2006-01-02 15:04:05"),
					Error:     r.ErrorLog,
				}
				if !r.CompletedAt.IsZero() {
					info.Completed = r.CompletedAt.Format("2006-01-02 15:04:05")
				}
				result.Runs = append(result.Runs, info)
			}

			if jsonOutput {
				printJSON(result)
				return
			}
			if len(result.Runs) == 0 {
				fmt.Println("No sync runs recorded.")
				return
			}
			for _, r := range result.Runs {
				symbol := "✓"
				if r.Status == model.RunStatusFailed {
					symbol = "✗"
				} else if r.Status == model.RunStatusRunning {
					symbol = "…"
				}
				fmt.Printf("%s %s  %-10s %-10s started %s", symbol, r.RunID, r.Platform, r.Status, r.StartedAt)
				if r.Completed != "" {
					fmt.Printf(", finished %s", r.Completed)
				}
				fmt.Println()
				if r.Error != "" {
					fmt.Printf("    error: %s\n", r.Error)
				}
			}
		},
	})

	// show command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "show <interaction-id>",
		Short: "Show an interaction's summary and raw content",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			type Result struct {
				OK         bool   `json:"ok"`
				Message    string `json:"message,omitempty"`
				ID         string `json:"id,omitempty"`
				Platform   string `json:"platform,omitempty"`
				OccurredAt string `json:"occurred_at,omitempty"`
				Summary    string `json:"summary,omitempty"`
				Raw        string `json:"raw,omitempty"`
			}

			app, closeApp, err := openApp()
			if err != nil {
				fatal(err.Error())
			}
			defer closeApp()

			in, ok := app.store.Interaction(args[0])
			if !ok {
				fatal(fmt.Sprintf("Interaction '%s' not found", args[0]))
			}

			result := Result{
				OK:         true,
				ID:         in.ID,
				Platform:   string(in.SourcePlatform),
				OccurredAt: in.OccurredAt.Format("2006-01-02 15:04"),
				Summary:    in.SummaryShort,
				Raw:        app.store.LoadRaw(in.RawContentPointer),
			}

			if jsonOutput {
				printJSON(result)
				return
			}
			fmt.Printf("Interaction %s\n", result.ID)
			fmt.Printf("  Platform: %s\n", result.Platform)
			fmt.Printf("  Occurred: %s\n", result.OccurredAt)
			fmt.Printf("  Summary: %s\n", result.Summary)
			fmt.Printf("\n%s\n", result.Raw)
		},
	})

	// watch command
	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch a directory and import dropped export files",
		Long:  "Watch a drop directory; .zip files import as WhatsApp archives, .csv files as LinkedIn connections",
		Run: func(cmd *cobra.Command, args []string) {
			dir, _ := cmd.Flags().GetString("dir")

			app, closeApp, err := openApp()
			if err != nil {
				fatal(err.Error())
			}
			defer closeApp()

			if dir == "" {
				dir = app.cfg.WatchDir
			}
			if dir == "" {
				fatal("No watch directory. Pass --dir or set watch_dir in config.")
			}

			watcher, err := live.NewWatcher(app.engine, dir, nil)
			if err != nil {
				fatal(err.Error())
			}

			if err := watcher.Run(context.Background()); err != nil {
				fatal(err.Error())
			}
		},
	}
	watchCmd.Flags().String("dir", "", "Directory to watch (overrides config watch_dir)")
	rootCmd.AddCommand(watchCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

type importResult struct {
	OK                  bool   `json:"ok"`
	Message             string `json:"message,omitempty"`
	InteractionsCreated int    `json:"interactions_created"`
	PersonsCreated      int    `json:"persons_created"`
	RecordsSkipped      int    `json:"records_skipped"`
	Duration            string `json:"duration,omitempty"`
}

// runImport runs a file-based adapter through the engine and prints the
// outcome.
func runImport(engine *sync.Engine, adapter adapters.Adapter) {
	res, err := engine.Run(context.Background(), adapter)
	if err != nil {
		fatal(fmt.Sprintf("Import failed: %v", err))
	}

	result := importResult{
		OK:                  true,
		InteractionsCreated: res.InteractionsCreated,
		PersonsCreated:      res.PersonsCreated,
		RecordsSkipped:      res.RecordsSkipped,
		Duration:            res.Duration.String(),
	}
	if jsonOutput {
		printJSON(result)
		return
	}
	fmt.Printf("✓ %s import complete\n", adapter.Name())
	fmt.Printf("  Interactions created: %d\n", result.InteractionsCreated)
	fmt.Printf("  Persons created: %d\n", result.PersonsCreated)
	fmt.Printf("  Records skipped: %d\n", result.RecordsSkipped)
	fmt.Printf("  Duration: %s\n", result.Duration)
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

// errorResult is the JSON shape every fatal failure renders as.
type errorResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// fatal prints the failure in the active output mode and exits.
func fatal(msg string) {
	if jsonOutput {
		printJSON(errorResult{Message: msg})
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}

// checkAdapterStatus checks if an adapter's prerequisites are met.
func checkAdapterStatus(adapter config.AdapterConfig) string {
	switch adapter.Type {
	case "google":
		if config.GoogleAccessToken() == "" {
			return "missing GOOGLE_ACCESS_TOKEN"
		}
		return "ready"
	default:
		return "unknown adapter type"
	}
}
