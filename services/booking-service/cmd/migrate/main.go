// Command migrate applies the booking-service schema.
//
//	DATABASE_URL=postgres://... migrate
//	DATABASE_URL=postgres://... migrate -force 2
package main

import (
	"flag"
	"os"

	"github.com/md-rashed-zaman/groomly/libs/config"
	"github.com/md-rashed-zaman/groomly/libs/db"
	"github.com/md-rashed-zaman/groomly/libs/runtime"
	"github.com/md-rashed-zaman/groomly/services/booking-service/migrations"
)

func main() {
	force := flag.Int("force", -1, "force the schema version instead of migrating up")
	flag.Parse()

	logger := runtime.NewLogger("booking-migrate")
	if err := config.LoadDotEnv(); err != nil {
		logger.Error("load .env failed", "err", err)
		os.Exit(1)
	}
	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		logger.Error("missing config", "err", err)
		os.Exit(1)
	}

	if err := db.Migrate(dbURL, migrations.FS, *force); err != nil {
		logger.Error("migration failed", "err", err)
		os.Exit(1)
	}
	logger.Info("migrations applied", "forced", *force >= 0)
}
