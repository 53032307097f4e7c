package main

import (
	"errors"
	"flag"
	"log"

	"tipbot-core/pkg/config"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

func main() {
	var command, dir string
	var steps int
	flag.StringVar(&command, "cmd", "up", "Command to run: up, down, version")
	flag.StringVar(&dir, "dir", "migrations", "Migrations directory")
	flag.IntVar(&steps, "steps", 0, "Number of migrations to apply (0 = all)")
	flag.Parse()

	// 加载配置
	config.Init()
	if config.Global.DB.Driver != "postgres" {
		log.Fatalf("migrate only manages postgres schemas, db.driver is %q (sqlite uses AutoMigrate)", config.Global.DB.Driver)
	}

	m, err := migrate.New("file://"+dir, config.Global.DB.MigrateURL())
	if err != nil {
		log.Fatalf("Migration init failed: %v", err)
	}
	defer m.Close()

	switch command {
	case "up":
		if steps > 0 {
			err = m.Steps(steps)
		} else {
			err = m.Up()
		}
		if err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatalf("Migration up failed: %v", err)
		}
		log.Println("Migration up done")
	case "down":
		if steps > 0 {
			err = m.Steps(-steps)
		} else {
			err = m.Down()
		}
		if err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatalf("Migration down failed: %v", err)
		}
		log.Println("Migration down done")
	case "version":
		version, dirty, err := m.Version()
		if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
			log.Fatalf("Read version failed: %v", err)
		}
		log.Printf("Migration version: %d (dirty=%v)", version, dirty)
	default:
		log.Fatalf("Unknown command: %s", command)
	}
}
