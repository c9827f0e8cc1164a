// Package main provides a CLI tool for local development against the registry:
// it mints caller tokens and signs verification claims.
// Tokens use the dev signing key by default and will NOT work in production.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"vcregistry/internal/attestation/models"
	"vcregistry/internal/attestation/typeddata"
	jwttoken "vcregistry/internal/jwt_token"
	"vcregistry/pkg/domain"
)

const (
	// Dev signing key - matches config.go when JWT_SIGNING_KEY is not set
	devSigningKey = "dev-secret-key-change-in-production"

	defaultIssuer   = "vcregistry"
	defaultAudience = "vcregistry"
	defaultTokenTTL = 15 * time.Minute
	defaultChainID  = 1337
)

type tokenOutput struct {
	Token     string            `json:"token"`
	Type      string            `json:"type"`
	ExpiresIn string            `json:"expires_in"`
	Caller    string            `json:"caller"`
	Usage     map[string]string `json:"usage"`
}

type claimOutput struct {
	Subject        string `json:"subject"`
	ExpirationTime uint64 `json:"expiration_time"`
	Signature      string `json:"signature"`
}

func main() {
	callerCmd := flag.NewFlagSet("caller", flag.ExitOnError)
	claimCmd := flag.NewFlagSet("claim", flag.ExitOnError)

	callerAccount := callerCmd.String("account", "", "Caller account address (required)")
	callerKey := callerCmd.String("signing-key", devSigningKey, "HMAC key shared with the registry (JWT_SIGNING_KEY)")
	callerTTL := callerCmd.Duration("ttl", defaultTokenTTL, "Token time-to-live")
	callerJSON := callerCmd.Bool("json", false, "Output as JSON")

	claimKey := claimCmd.String("key", "", "Hex secp256k1 private key of the verifier's signing key (required)")
	claimSubject := claimCmd.String("subject", "", "Subject address (required)")
	claimExpires := claimCmd.Duration("expires-in", 24*time.Hour, "Validity from now")
	claimChainID := claimCmd.Uint64("chain-id", defaultChainID, "Chain id of the signing domain")
	claimContract := claimCmd.String("contract", "0x0000000000000000000000000000000000000000", "Verifying contract of the signing domain")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "caller":
		_ = callerCmd.Parse(os.Args[2:])
		err = generateCallerToken(*callerAccount, *callerKey, *callerTTL, *callerJSON)
	case "claim":
		_ = claimCmd.Parse(os.Args[2:])
		err = signClaim(*claimKey, *claimSubject, *claimExpires, *claimChainID, *claimContract)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`tokengen - development helper for the verification registry

WARNING: Tokens use the dev signing key unless -signing-key is given.

Usage:
  tokengen <command> [flags]

Commands:
  caller    Mint a bearer token authenticating an account
  claim     Sign a verification claim with a verifier signing key

Examples:
  # Token for the registry owner
  tokengen caller -account 0x00000000000000000000000000000000000000aa

  # Sign a claim valid for one hour
  tokengen claim -key <hex> -subject 0x3000000000000000000000000000000000000001 -expires-in 1h

Use "tokengen <command> -h" for more information about a command.`)
}

func generateCallerToken(accountHex, signingKey string, ttl time.Duration, jsonOutput bool) error {
	account, err := domain.ParseAddress(accountHex)
	if err != nil {
		return fmt.Errorf("invalid -account: %w", err)
	}

	svc := jwttoken.NewJWTService(signingKey, defaultIssuer, defaultAudience, ttl)
	token, err := svc.GenerateCallerToken(context.Background(), account)
	if err != nil {
		return fmt.Errorf("generate token: %w", err)
	}

	if jsonOutput {
		printJSON(tokenOutput{
			Token:     token,
			Type:      "caller_token",
			ExpiresIn: ttl.String(),
			Caller:    account.String(),
			Usage: map[string]string{
				"header": "Authorization: Bearer <token>",
			},
		})
		return nil
	}

	fmt.Println("Caller Token (JWT)")
	fmt.Println("==================")
	fmt.Printf("Caller:     %s\n", account)
	fmt.Printf("Expires In: %s\n", ttl)
	fmt.Println()
	fmt.Println("Token:")
	fmt.Println(token)
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  curl -H \"Authorization: Bearer <token>\" http://localhost:8080/...")
	return nil
}

// signClaim prints a request body ready for POST /verifications. The signer
// address goes to stderr so stdout can be piped as is.
func signClaim(keyHex, subjectHex string, expiresIn time.Duration, chainID uint64, contractHex string) error {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(keyHex, "0x"))
	if err != nil {
		return fmt.Errorf("invalid -key: %w", err)
	}
	subject, err := domain.ParseAddress(subjectHex)
	if err != nil {
		return fmt.Errorf("invalid -subject: %w", err)
	}
	contract, err := domain.ParseAddress(contractHex)
	if err != nil {
		return fmt.Errorf("invalid -contract: %w", err)
	}

	claim := models.Claim{
		Subject:        subject,
		ExpirationTime: uint64(time.Now().Add(expiresIn).Unix()),
	}
	sig, err := typeddata.Sign(key, typeddata.NewDomain(chainID, contract), claim)
	if err != nil {
		return fmt.Errorf("sign claim: %w", err)
	}

	printJSON(claimOutput{
		Subject:        subject.String(),
		ExpirationTime: claim.ExpirationTime,
		Signature:      hexutil.Encode(sig),
	})
	fmt.Fprintf(os.Stderr, "signed by %s\n", crypto.PubkeyToAddress(key.PublicKey).Hex())
	return nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		os.Exit(1)
	}
}
