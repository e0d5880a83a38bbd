// Command galois-encrypt-config seals a plaintext TOML config's secret
// fields under MAGIC_KEY and rewrites the file in place, the companion
// binary to cmd/galois the way cmd/sign-order sits alongside cmd/node.
package main

import (
	"flag"
	"log"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/uinb/galois-go/internal/config"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to the plaintext TOML config file to seal")
	flag.Parse()

	cfg, err := config.Load(*configPath, true)
	if err != nil {
		log.Fatalf("load: %v", err)
	}

	if err := config.Seal(&cfg); err != nil {
		log.Fatalf("seal: %v", err)
	}

	out, err := os.Create(*configPath)
	if err != nil {
		log.Fatalf("open %s for write: %v", *configPath, err)
	}
	defer out.Close()

	if err := toml.NewEncoder(out).Encode(cfg); err != nil {
		log.Fatalf("encode: %v", err)
	}

	log.Printf("sealed secrets in %s", *configPath)
}
