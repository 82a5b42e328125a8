// Command cleanup removes stale audio temp files left behind by crashed
// or long-gone jobs. The server's cron sweep handles the normal case;
// this binary is for manual or scheduled operations work.
package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lautwerk/speech_go_server/config"
)

var (
	dryRun      = flag.Bool("dry-run", true, "Dry run mode, don't actually delete files")
	expireHours = flag.Int("expire", 24, "Hours to keep audio temp files")
)

func main() {
	flag.Parse()

	log.Println("Starting audio cleanup...")
	log.Printf("Mode: dry-run=%v, expire=%dh", *dryRun, *expireHours)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	deleted, freed := cleanExpiredAudio(cfg.Upload.TempDir, *expireHours, *dryRun)

	if *dryRun {
		log.Printf("Dry run complete: would delete %d files (%.1f MB)", deleted, float64(freed)/(1<<20))
		log.Println("Re-run with -dry-run=false to delete")
	} else {
		log.Printf("Cleanup complete: deleted %d files (%.1f MB)", deleted, float64(freed)/(1<<20))
	}
}

func cleanExpiredAudio(dir string, expireHours int, dryRun bool) (int, int64) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Fatalf("Failed to read %s: %v", dir, err)
	}

	cutoff := time.Now().Add(-time.Duration(expireHours) * time.Hour)
	deleted := 0
	var freed int64

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "temp_") || !strings.HasSuffix(name, ".wav") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(dir, name)
		log.Printf("  expired: %s (%.1f MB, %s)", name,
			float64(info.Size())/(1<<20), info.ModTime().Format(time.RFC3339))

		if !dryRun {
			if err := os.Remove(path); err != nil {
				log.Printf("  failed to delete %s: %v", path, err)
				continue
			}
		}
		deleted++
		freed += info.Size()
	}

	return deleted, freed
}
