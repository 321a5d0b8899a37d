package services_test

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

func init() {
	// Tests run from internal/application/services; the .env lives at the repo root.
	for _, p := range []string{"../../../.env", ".env"} {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err == nil {
			log.Printf("📁 Loaded .env from %s for tests", p)
			return
		}
	}
}
