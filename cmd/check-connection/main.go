// Package main is a diagnostic tool for testing connectivity to a Dataverse
// environment. It loads the regular configuration, acquires a token for the
// application user and calls WhoAmI, printing the ids of the caller. The
// binary exits with a non-zero code on any failure so it can gate pipeline
// steps on working credentials. When run history is enabled the database is
// checked as well and its schema version compared with the embedded
// migrations.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/3mpowered/dataverse-convenience/internal/auth/azuread"
	"github.com/3mpowered/dataverse-convenience/internal/config"
	"github.com/3mpowered/dataverse-convenience/internal/dataverse"
	"github.com/3mpowered/dataverse-convenience/internal/db"
)

func main() {
	configPath := flag.String("config", "", "path to the config file")
	flag.Parse()

	cfg, err := config.Load(*configPath, nil)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	provider, err := azuread.NewProvider(&cfg.Dataverse)
	if err != nil {
		log.Fatalf("Invalid credentials: %v", err)
	}
	if _, err := provider.TokenSource(ctx).Token(); err != nil {
		log.Fatalf("Failed to acquire token from %s: %v", provider.GetTokenURL(), err)
	}
	fmt.Printf("Token acquired for tenant %s\n", provider.GetTenantID())

	client, err := dataverse.NewClient(dataverse.Options{
		URL:        cfg.Dataverse.URL,
		APIVersion: cfg.Dataverse.APIVersion,
		HTTPClient: provider.Client(ctx, nil),
		Timeout:    cfg.Dataverse.Timeout,
	})
	if err != nil {
		log.Fatalf("Invalid environment: %v", err)
	}

	who, err := client.WhoAmI(ctx)
	if err != nil {
		log.Fatalf("WhoAmI failed: %v", err)
	}
	fmt.Printf("Connected to %s\n", client.BaseURL())
	fmt.Printf("User:          %s\n", who.UserID)
	fmt.Printf("Business unit: %s\n", who.BusinessUnitID)
	fmt.Printf("Organization:  %s\n", who.OrganizationID)

	if !cfg.History.Enabled {
		return
	}
	dbx, err := db.Connect(ctx, &cfg.History.Database)
	if err != nil {
		log.Fatalf("History database unreachable: %v", err)
	}
	defer dbx.Close()

	version, dirty, err := db.MigrationVersion(dbx.DB)
	if err != nil {
		log.Fatalf("Failed to read history schema version: %v", err)
	}
	latest, err := db.LatestMigrationVersion()
	if err != nil {
		log.Fatalf("Failed to read embedded migrations: %v", err)
	}
	fmt.Printf("History schema: version %d of %d (dirty: %v)\n", version, latest, dirty)
	if version < latest {
		fmt.Printf("%d migration(s) pending, applied on the next enable or disable run\n", latest-version)
	}
}
