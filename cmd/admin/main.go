package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"time"

	"staffhub/internal/config"
	"staffhub/internal/database"
	"staffhub/internal/identity"
	"staffhub/internal/models"
	"staffhub/internal/repository"
	"staffhub/internal/service"
	"staffhub/internal/validation"
	"staffhub/migrations"
)

func main() {
	// Define subcommands
	grantCmd := flag.NewFlagSet("grant", flag.ExitOnError)
	exportCmd := flag.NewFlagSet("export", flag.ExitOnError)

	// Grant flags
	grantEmail := grantCmd.String("email", "", "Email of the user to grant the role to (required)")
	grantCompany := grantCmd.Int64("company", 0, "Company ID (required)")
	grantRole := grantCmd.String("role", models.RoleOwner, "Role: owner, admin, manager or worker")

	// Export flags
	exportOutput := exportCmd.String("output", "", "Output file path (default: ledger_YYYYMMDD_HHMMSS.json)")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.InitializeWithConfig(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// Run migrations to ensure schema is up to date
	if err := db.RunMigrations(context.Background(), migrationsFS(cfg.MigrationsPath)); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	ctx := context.Background()

	switch os.Args[1] {
	case "migrate":
		log.Println("Migrations completed successfully")

	case "grant":
		grantCmd.Parse(os.Args[2:])
		if *grantEmail == "" || *grantCompany <= 0 {
			fmt.Println("Error: -email and -company flags are required")
			grantCmd.PrintDefaults()
			os.Exit(1)
		}
		handleGrant(ctx, cfg, db, *grantEmail, *grantCompany, *grantRole)

	case "export":
		exportCmd.Parse(os.Args[2:])
		handleExport(ctx, db, *exportOutput)

	default:
		printUsage()
		os.Exit(1)
	}
}

func migrationsFS(path string) fs.FS {
	if path != "" {
		return os.DirFS(path)
	}
	return migrations.FS
}

// handleGrant bootstraps a company's first owner, who can then invite everyone else
func handleGrant(ctx context.Context, cfg *config.Config, db *database.DB, email string, companyID int64, role string) {
	if err := validation.ValidateEmail(email); err != nil {
		log.Fatalf("Invalid email: %v", err)
	}
	if err := validation.ValidateRole(role); err != nil {
		log.Fatalf("Invalid role: %v", err)
	}

	userRepo := repository.NewUserRepository(db)
	provider, _, err := identity.NewFromConfig(ctx, cfg, repository.NewIdentityRepository(db))
	if err != nil {
		log.Fatalf("Failed to initialize identity provider: %v", err)
	}

	resolved, err := service.NewIdentityResolver(provider, userRepo, cfg.IdentityTimeout).Resolve(ctx, email)
	if err != nil {
		log.Fatalf("Failed to resolve user: %v", err)
	}

	roleRepo := repository.NewRoleRepository(db)
	granted, err := roleRepo.GrantRoleIfAbsent(ctx, resolved.User.ID, companyID, role, nil, time.Now())
	if err != nil {
		log.Fatalf("Failed to grant role: %v", err)
	}
	if !granted {
		existing, err := roleRepo.GetActiveGrant(ctx, resolved.User.ID, companyID, role)
		if err != nil {
			log.Fatalf("Failed to load existing grant: %v", err)
		}
		if existing != nil {
			log.Printf("User %d (%s) already holds %s in company %d since %s",
				resolved.User.ID, email, role, companyID, existing.CreatedAt.Format(time.RFC3339))
		}
		return
	}
	log.Printf("Granted %s in company %d to user %d (%s)", role, companyID, resolved.User.ID, email)
}

func handleExport(ctx context.Context, db *database.DB, outputPath string) {
	// Generate default filename if not provided
	if outputPath == "" {
		timestamp := time.Now().Format("20060102_150405")
		outputPath = fmt.Sprintf("ledger_%s.json", timestamp)
	}

	// Ensure directory exists
	dir := filepath.Dir(outputPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("Failed to create output directory: %v", err)
		}
	}

	file, err := os.Create(outputPath)
	if err != nil {
		log.Fatalf("Failed to create output file: %v", err)
	}
	defer file.Close()

	log.Printf("Exporting ledger to: %s", outputPath)
	if _, err := service.NewExportService(db).Export(ctx, file); err != nil {
		log.Fatalf("Export failed: %v", err)
	}
	log.Println("Export complete!")
}

func printUsage() {
	fmt.Println("Staffhub Admin Tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  admin migrate                Apply pending migrations")
	fmt.Println("  admin grant [options]        Grant a company role, creating the user if needed")
	fmt.Println("  admin export [options]       Export invitations, grants and assignments to JSON")
	fmt.Println()
	fmt.Println("Grant Options:")
	fmt.Println("  -email <address>  User email (required)")
	fmt.Println("  -company <id>     Company ID (required)")
	fmt.Println("  -role <role>      owner, admin, manager or worker (default: owner)")
	fmt.Println()
	fmt.Println("Export Options:")
	fmt.Println("  -output <file>    Output file path (default: ledger_YYYYMMDD_HHMMSS.json)")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  DB_TYPE          Database type: sqlite, postgres, or mysql (default: sqlite)")
	fmt.Println("  DB_PATH          SQLite database path (default: ./staffhub.db)")
	fmt.Println("  DATABASE_URL     PostgreSQL or MySQL connection URL")
}
