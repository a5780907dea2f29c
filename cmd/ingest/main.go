// Command ingest imports financial documents from the command line and
// queries the resulting ledger.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/lvicentin/grana/internal/config"
	"github.com/lvicentin/grana/internal/dedup"
	"github.com/lvicentin/grana/internal/docsource"
	"github.com/lvicentin/grana/internal/fieldcrypt"
	"github.com/lvicentin/grana/internal/gate"
	"github.com/lvicentin/grana/internal/logger"
	"github.com/lvicentin/grana/internal/oracle"
	"github.com/lvicentin/grana/internal/pipeline"
	"github.com/lvicentin/grana/internal/store/sqlite"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "import":
		runImport()
	case "estimate":
		runEstimate()
	case "consent":
		runConsent()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("grana ingestion CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  ingest <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  import    Import an invoice or bank statement (local path or gs:// URI)")
	fmt.Println("  estimate  Show the monthly expense projection")
	fmt.Println("  consent   Record or inspect the data-processing consent")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'ingest <command> -h' for more information on a command.")
}

// setup loads configuration and opens the store shared by all commands.
func setup(configPath string) (*config.Config, zerolog.Logger, *sqlite.DB, error) {
	cfg := config.DefaultConfig()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, zerolog.Logger{}, nil, err
		}
		cfg = loaded
	}
	log := logger.New(cfg.LogLevel)

	st, err := sqlite.Open(cfg.Store.Path, sqlite.WithLogger(log))
	if err != nil {
		return nil, log, nil, err
	}
	return cfg, log, st, nil
}

// attachCodec derives the field-encryption key for the user and attaches it
// to the store. No-op when encryption is disabled.
func attachCodec(ctx context.Context, cfg *config.Config, st *sqlite.DB, userID string) error {
	if !cfg.Crypto.Enabled {
		return nil
	}
	salt, err := st.EncryptionSalt(ctx)
	if err != nil {
		return err
	}
	codec, err := fieldcrypt.New(salt, userID)
	if err != nil {
		return err
	}
	st.SetCodec(codec)
	return nil
}

func runImport() {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to TOML config (defaults apply when empty)")
	file := fs.String("file", "", "Document to import: local path or gs://bucket/object")
	user := fs.String("user", "default", "User profile the entries belong to")
	owner := fs.String("owner", "", "Account holder's name as printed on statements")
	guidance := fs.String("guidance", "", "Optional free-text steering for the extraction model")
	timeout := fs.Duration("timeout", 5*time.Minute, "Overall timeout for the import")
	fs.Parse(os.Args[2:])

	if *file == "" {
		fmt.Fprintln(os.Stderr, "Error: -file is required")
		os.Exit(1)
	}

	cfg, log, st, err := setup(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Setup failed: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	if err := attachCodec(ctx, cfg, st, *user); err != nil {
		log.Fatal().Err(err).Msg("Failed to attach encryption codec")
	}

	apiKey := os.Getenv(cfg.Oracle.APIKeyEnv)
	if apiKey == "" {
		log.Fatal().Str("env", cfg.Oracle.APIKeyEnv).Msg("Extraction API key not set")
	}
	extractor, err := oracle.NewGemini(ctx, apiKey, cfg.Oracle.Model)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create extraction client")
	}

	g := gate.New(st, cfg.Import.ConsentVersion, cfg.Import.RateLimit, cfg.Import.RateWindow())
	pipe := pipeline.New(st, extractor, g, dedup.NewMatcher(cfg.Import.SubscriptionAliases), log)

	doc, err := docsource.Fetch(ctx, *file)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to fetch document")
	}
	log.Info().Str("name", doc.Name).Int("bytes", len(doc.Data)).Msg("Starting import")

	res, err := pipe.Submit(ctx, pipeline.Submission{
		UserID:    *user,
		OwnerName: *owner,
		Data:      doc.Data,
		MIMEType:  doc.MIMEType,
		Guidance:  *guidance,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Import failed")
	}

	switch v := res.(type) {
	case pipeline.Committed:
		if v.Invoice != nil {
			fmt.Printf("Imported invoice due %s: %d entries committed, %d dropped.\n", v.Invoice.DueDate, len(v.Entries), v.Dropped)
		} else {
			fmt.Printf("Imported statement: %d entries committed, %d dropped.\n", len(v.Entries), v.Dropped)
		}
	case pipeline.DuplicateDetected:
		fmt.Printf("Duplicate: this invoice (due %s) was already imported at %s.\n", v.Prior.DueDate, v.Prior.ImportedAt.Format(time.RFC3339))
		os.Exit(1)
	case pipeline.RateLimited:
		fmt.Printf("Rate limited: try again in %d seconds.\n", v.RetryAfterSeconds)
		os.Exit(1)
	case pipeline.ConsentRequired:
		fmt.Printf("Consent required: run 'ingest consent -accept -user %s' to accept notice version %s.\n", *user, v.RequiredVersion)
		os.Exit(1)
	case pipeline.NoTransactionsFound:
		fmt.Printf("No importable transactions: %d extracted, %d dropped.\n", v.Extracted, v.Dropped)
		os.Exit(1)
	}
}

func runEstimate() {
	fs := flag.NewFlagSet("estimate", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to TOML config (defaults apply when empty)")
	user := fs.String("user", "default", "User profile to project")
	income := fs.Float64("income", 0, "Monthly income; 0 means not configured")
	fs.Parse(os.Args[2:])

	cfg, log, st, err := setup(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Setup failed: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := attachCodec(ctx, cfg, st, *user); err != nil {
		log.Fatal().Err(err).Msg("Failed to attach encryption codec")
	}

	g := gate.New(st, cfg.Import.ConsentVersion, cfg.Import.RateLimit, cfg.Import.RateWindow())
	pipe := pipeline.New(st, nil, g, dedup.NewMatcher(cfg.Import.SubscriptionAliases), log)

	proj, err := pipe.Estimate(ctx, *user, *income)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build estimate")
	}

	fmt.Printf("Typical monthly expense: %.2f\n", proj.TypicalMonthlyExpense)
	if *income > 0 {
		fmt.Printf("Savings potential:       %.2f\n", proj.SavingsPotential)
	}
	fmt.Printf("Clean months:            %d (%d excluded as outliers)\n", proj.CleanMonths, proj.OutlierMonths)
	fmt.Printf("Data quality:            %d/100 (%s)\n", proj.Quality.Score, proj.Quality.Confidence)
	for _, c := range proj.Quality.Caveats {
		fmt.Printf("  - %s\n", c)
	}
}

func runConsent() {
	fs := flag.NewFlagSet("consent", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to TOML config (defaults apply when empty)")
	user := fs.String("user", "default", "User profile")
	accept := fs.Bool("accept", false, "Accept the current data-processing notice")
	decline := fs.Bool("decline", false, "Decline the current data-processing notice")
	fs.Parse(os.Args[2:])

	if *accept && *decline {
		fmt.Fprintln(os.Stderr, "Error: -accept and -decline are mutually exclusive")
		os.Exit(1)
	}

	cfg, log, st, err := setup(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Setup failed: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	g := gate.New(st, cfg.Import.ConsentVersion, cfg.Import.RateLimit, cfg.Import.RateWindow())

	if *accept || *decline {
		if err := g.RecordConsent(ctx, *user, *accept); err != nil {
			log.Fatal().Err(err).Msg("Failed to record consent")
		}
		if *accept {
			fmt.Printf("Accepted notice version %s.\n", cfg.Import.ConsentVersion)
		} else {
			fmt.Printf("Declined notice version %s.\n", cfg.Import.ConsentVersion)
		}
		return
	}

	status, err := g.CheckConsent(ctx, *user)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to check consent")
	}
	if status.Granted {
		fmt.Printf("Consent granted for notice version %s.\n", status.RequiredVersion)
	} else {
		fmt.Printf("Consent missing for notice version %s. Run 'ingest consent -accept'.\n", status.RequiredVersion)
	}
}
