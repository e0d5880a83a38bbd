// Package config loads the engine's TOML configuration, overlaying
// environment variables via godotenv and unsealing secrets with
// nacl/secretbox keyed by the MAGIC_KEY environment variable, the same
// shape as the original implementation's magic_crypt-based sealing.
package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/nacl/secretbox"
)

func readRandom(b []byte) (int, error) { return io.ReadFull(rand.Reader, b) }

type Config struct {
	Server    ServerConfig    `toml:"server"`
	Sequence  SequenceConfig  `toml:"sequence"`
	ChainNode ChainNodeConfig `toml:"chain_node"`
}

type ServerConfig struct {
	BindAddr string `toml:"bind_addr"`
	HTTPAddr string `toml:"http_addr"`
	DataHome string `toml:"data_home"`
}

func (s ServerConfig) CoredumpPath() string { return s.DataHome + "/coredump/" }
func (s ServerConfig) StoragePath() string  { return s.DataHome + "/storage/" }

type SequenceConfig struct {
	Checkpoint        uint64 `toml:"checkpoint"`
	EnableFromGenesis bool   `toml:"enable_from_genesis"`
	FetchIntervalMs   uint64 `toml:"fetch_interval_ms"`
}

// ChainNodeConfig describes the external settlement chain this engine
// submits proofs to, sealed the same way the original's FusotaoConfig
// seals its key material.
type ChainNodeConfig struct {
	NodeURL         string `toml:"node_url"`
	KeySeed         string `toml:"key_seed"`
	ProofBatchLimit int    `toml:"proof_batch_limit"`
	ClaimBlock      uint32 `toml:"claim_block"`
}

// Load reads and parses a TOML config file, decrypting sealed fields
// with MAGIC_KEY unless skipDecrypt is set (used by the
// encrypt-config subcommand, which seals a plaintext file instead).
func Load(path string, skipDecrypt bool) (Config, error) {
	_ = godotenv.Load() // optional .env overlay, missing file is not an error

	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if _, err := toml.Decode(string(raw), &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if skipDecrypt {
		return cfg, nil
	}
	key, err := magicKey()
	if err != nil {
		return Config{}, err
	}
	if cfg.ChainNode.KeySeed != "" {
		plain, err := unseal(cfg.ChainNode.KeySeed, key)
		if err != nil {
			return Config{}, fmt.Errorf("config: decrypt key_seed: %w", err)
		}
		cfg.ChainNode.KeySeed = plain
	}
	return cfg, nil
}

// Seal encrypts cfg's sealed fields in place, for the encrypt-config
// subcommand to persist back to disk.
func Seal(cfg *Config) error {
	key, err := magicKey()
	if err != nil {
		return err
	}
	if cfg.ChainNode.KeySeed != "" {
		sealed, err := seal(cfg.ChainNode.KeySeed, key)
		if err != nil {
			return fmt.Errorf("config: encrypt key_seed: %w", err)
		}
		cfg.ChainNode.KeySeed = sealed
	}
	return nil
}

func magicKey() ([32]byte, error) {
	var key [32]byte
	raw := os.Getenv("MAGIC_KEY")
	if raw == "" {
		return key, fmt.Errorf("config: env MAGIC_KEY not set")
	}
	copy(key[:], []byte(raw))
	return key, nil
}

// seal encrypts plaintext with secretbox, base64-encoding nonce+ciphertext
// together so the sealed value is a single TOML-safe string.
func seal(plaintext string, key [32]byte) (string, error) {
	var nonce [24]byte
	if _, err := readRandom(nonce[:]); err != nil {
		return "", err
	}
	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func unseal(encoded string, key [32]byte) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("config: invalid base64: %w", err)
	}
	if len(raw) < 24 {
		return "", fmt.Errorf("config: sealed value too short")
	}
	var nonce [24]byte
	copy(nonce[:], raw[:24])
	plain, ok := secretbox.Open(nil, raw[24:], &nonce, &key)
	if !ok {
		return "", fmt.Errorf("config: secretbox authentication failed, wrong MAGIC_KEY?")
	}
	return string(plain), nil
}
