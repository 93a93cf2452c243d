package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"time"

	"collabedit/internal/auth"
	"collabedit/internal/config"
	"collabedit/internal/database/migrations"
	models "collabedit/internal/domain/models/collab"
	collabSvc "collabedit/internal/domain/services/collab"
	"collabedit/internal/repository/postgres"
	postgresCollab "collabedit/internal/repository/postgres/collab"
	authSvc "collabedit/internal/service/auth"
	serviceCollab "collabedit/internal/service/collab"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
)

type seedUser struct {
	id       string
	username string
	role     models.Role
}

var seedUsers = []seedUser{
	{id: "seed-alice", username: "alice", role: models.RoleOwner},
	{id: "seed-bob", username: "bob", role: models.RoleEditor},
	{id: "seed-carol", username: "carol", role: models.RoleViewer},
}

var seedFiles = []collabSvc.CreateFileRequest{
	{Name: "main.py", Contents: "from greet import greet\n\nprint(greet(\"world\"))\n"},
	{Name: "greet.py", Contents: "def greet(name):\n    return f\"hello, {name}\"\n"},
	{Name: "index.js", Contents: "console.log(\"hello from node\");\n"},
}

func main() {
	dropTables := flag.Bool("drop-tables", false, "Drop all tables before seeding (fresh start)")
	schemaOnly := flag.Bool("schema-only", false, "Only migrate the schema, don't seed data")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "Lifetime of the printed dev tokens")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()

	// SAFETY: Prevent destructive operations in production
	if cfg.Environment == "prod" && *dropTables {
		log.Fatalf("🚫 BLOCKED: Cannot run --drop-tables in production environment")
	}
	if cfg.DatabaseURL == "" {
		log.Fatalf("DATABASE_URL is required")
	}

	// Service logs are noise here; progress goes through log.Printf
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if cfg.Environment == "dev" {
		logger = config.NewLogger(os.Stderr, cfg.Environment)
	}

	log.Printf("🌱 Seeding database (environment: %s, prefix: %s)", cfg.Environment, cfg.TablePrefix)

	ctx := context.Background()
	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL, postgres.PoolOptions{MaxConns: 4})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	if *dropTables {
		log.Println("🗑️  Dropping all tables...")
		if err := migrations.MigrateDown(db, cfg.TablePrefix); err != nil {
			log.Fatalf("Failed to drop tables: %v", err)
		}
		log.Println("✅ Tables dropped")
	}

	log.Println("📋 Ensuring database schema is up to date...")
	if err := migrations.MigrateUp(db, cfg.TablePrefix); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("✅ Schema ready")

	if *schemaOnly {
		log.Println("✅ Schema setup complete (schema-only mode)")
		return
	}

	repoConfig := &postgres.RepositoryConfig{
		Pool:   pool,
		Tables: postgres.NewTableNames(cfg.TablePrefix),
		Logger: logger,
	}
	projectRepo := postgresCollab.NewProjectRepository(repoConfig)
	stateRepo := postgresCollab.NewStateRepository(repoConfig)
	fileRepo := postgresCollab.NewFileRepository(repoConfig)
	txManager := postgres.NewTransactionManager(pool, logger)

	// Use the service layer so seeded data obeys the same rules as the API
	authorizer := authSvc.NewRoleAuthorizer()
	identity := serviceCollab.NewIdentityService(postgresCollab.NewUserRepository(repoConfig), logger)
	projectService := serviceCollab.NewProjectService(projectRepo, stateRepo, fileRepo, txManager, identity, authorizer, logger)
	fileService := serviceCollab.NewFileService(projectRepo, stateRepo, fileRepo, txManager, authorizer, nil, nil, nil, logger)

	for _, u := range seedUsers {
		if _, err := identity.EnsureUser(ctx, u.id, u.username); err != nil {
			log.Fatalf("Failed to create user %s: %v", u.username, err)
		}
	}
	log.Printf("✅ Users ready: %d", len(seedUsers))

	owner := seedUsers[0]
	project, err := projectService.CreateProject(ctx, &collabSvc.CreateProjectRequest{
		UserID: owner.id,
		Name:   "Demo Project",
	})
	if err != nil {
		log.Fatalf("Failed to create project: %v", err)
	}

	for _, u := range seedUsers[1:] {
		_, err := projectService.AddCollaborator(ctx, project.ID, owner.id, &collabSvc.AddCollaboratorRequest{
			Username: u.username,
			Role:     u.role,
		})
		if err != nil {
			log.Fatalf("Failed to add %s: %v", u.username, err)
		}
	}

	for i := range seedFiles {
		file, err := fileService.CreateFile(ctx, project.ID, owner.id, &seedFiles[i])
		if err != nil {
			log.Printf("❌ Failed to create file '%s': %v", seedFiles[i].Name, err)
			continue
		}
		log.Printf("✅ Created file %d/%d: %s (ID: %s)", i+1, len(seedFiles), file.Name, file.ID)
	}

	log.Printf("🎉 Seeding complete! Project ID: %s", project.ID)

	if cfg.JWTSecret == "" {
		log.Println("ℹ️  JWT_SECRET not set; skipping dev tokens")
		return
	}

	fmt.Println()
	for _, u := range seedUsers {
		tok, err := auth.SignHS256(cfg.JWTSecret, u.id, u.username, jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(*tokenTTL)),
		})
		if err != nil {
			log.Fatalf("Failed to sign token for %s: %v", u.username, err)
		}
		fmt.Printf("%-6s %-7s %s\n", u.username, u.role, tok)
	}
}
