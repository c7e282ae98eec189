package main

import (
	"crypto/rand"
	"encoding/base64"
	"flag"
	"fmt"
	"os"

	mcrypto "github.com/xndrbh/mage/crypto"
)

// runKey implements `mage key`: generate a fresh seed (or load one from
// MAGE_SEED / -seed) and print the resulting seed/public keypair, either
// raw or base64-armored, optionally writing the seed to a file.
func runKey(args []string) error {
	fs := flag.NewFlagSet("key", flag.ContinueOnError)
	seedB64 := fs.String("seed", os.Getenv("MAGE_SEED"), "existing seed, base64 (default: generate a fresh one)")
	armor := fs.Bool("armor", true, "print keys as base64 instead of raw bytes")
	out := fs.String("out", "", "write the seed to this file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var seed []byte
	if *seedB64 != "" {
		var err error
		seed, err = base64.StdEncoding.DecodeString(*seedB64)
		if err != nil {
			return fmt.Errorf("decode -seed: %w", err)
		}
	} else {
		seed = make([]byte, mcrypto.SeedSize)
		if _, err := rand.Reader.Read(seed); err != nil {
			return fmt.Errorf("generate seed: %w", err)
		}
	}

	kp, err := mcrypto.DeriveKeypair(seed)
	if err != nil {
		return err
	}

	if *out != "" {
		if err := os.WriteFile(*out, seed, 0o600); err != nil {
			return fmt.Errorf("write -out: %w", err)
		}
	}

	if *armor {
		if *out == "" {
			fmt.Printf("seed:   %s\n", base64.StdEncoding.EncodeToString(seed))
		}
		fmt.Printf("public: %s\n", base64.StdEncoding.EncodeToString(kp.Public[:]))
	} else {
		if *out == "" {
			fmt.Printf("seed:   % x\n", seed)
		}
		fmt.Printf("public: % x\n", kp.Public[:])
	}
	return nil
}
