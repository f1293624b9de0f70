// walletctl drives the embedded wallet core from the command line: complete
// an OTP challenge, enroll or recover, inspect the local session envelope,
// and sign out. It holds no wallet logic of its own.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"wallet-core/pkg/authclient"
	"wallet-core/pkg/embeddedwallet"
	"wallet-core/pkg/localstore"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, using system environment variables")
	}

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	client := authclient.New(serverURL(), nil)
	store := localstore.New(envelopePath())
	wallet := embeddedwallet.New(client, store)

	var err error
	switch os.Args[1] {
	case "signin":
		err = runSignIn(ctx, client, wallet, os.Args[2:])
	case "status":
		err = runStatus(ctx, wallet, os.Args[2:])
	case "signout":
		err = wallet.SignOut()
		if err == nil {
			fmt.Println("Signed out; auth token removed")
		}
	case "inspect":
		err = runInspect(store)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: walletctl <command> [flags]

commands:
  signin   complete an OTP challenge, then enroll or recover as appropriate
  status   report the signed-in account (requires a persisted session)
  signout  drop the session token, keeping the device share
  inspect  print the local session envelope (token masked)

environment:
  AUTH_SERVER_URL  custody server base URL (default http://localhost:8080)
  ENVELOPE_PATH    session envelope location (default ~/.wallet-core/envelope.json)`)
}

func serverURL() string {
	if url := os.Getenv("AUTH_SERVER_URL"); url != "" {
		return url
	}
	return "http://localhost:8080"
}

func envelopePath() string {
	if path := os.Getenv("ENVELOPE_PATH"); path != "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "envelope.json"
	}
	return filepath.Join(home, ".wallet-core", "envelope.json")
}

func runSignIn(ctx context.Context, client *authclient.Client, wallet *embeddedwallet.EmbeddedWallet, args []string) error {
	fs := flag.NewFlagSet("signin", flag.ExitOnError)
	email := fs.String("email", "", "email identity to sign in as")
	phone := fs.String("phone", "", "phone identity to sign in as")
	code := fs.String("code", "", "the OTP code received out of band")
	recoveryCode := fs.String("recovery-code", "", "recovery code (required for recovery; overrides the server-issued code on enrollment)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	kind := authclient.IdentityEmail
	id := *email
	if *phone != "" {
		kind = authclient.IdentityPhone
		id = *phone
	}
	if id == "" || *code == "" {
		return fmt.Errorf("signin requires --email or --phone, and --code")
	}

	result, err := client.VerifyOtp(ctx, kind, id, *code)
	if err != nil {
		return err
	}

	var emailPtr, phonePtr *string
	if kind == authclient.IdentityEmail {
		emailPtr = &id
	} else {
		phonePtr = &id
	}

	if result.IsNewUser {
		enrollCode := *recoveryCode
		if enrollCode == "" {
			if result.RecoveryCode == nil {
				return fmt.Errorf("server issued no recovery code and none was supplied")
			}
			enrollCode = *result.RecoveryCode
			fmt.Printf("Recovery code (store it safely): %s\n", enrollCode)
		}
		user, err := wallet.CreateAccount(ctx, embeddedwallet.CreateAccountParams{
			AuthToken:    result.AuthToken,
			WalletUserID: result.WalletUserID,
			AuthProvider: string(kind),
			Email:        emailPtr,
			Phone:        phonePtr,
			RecoveryCode: enrollCode,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Enrolled new wallet: %s\n", user.Account.Address().Hex())
		return nil
	}

	if *recoveryCode == "" {
		return fmt.Errorf("existing user on a fresh device: --recovery-code is required")
	}
	user, err := wallet.RecoverAccount(ctx, embeddedwallet.RecoverAccountParams{
		AuthToken:    result.AuthToken,
		WalletUserID: result.WalletUserID,
		AuthProvider: string(kind),
		Email:        emailPtr,
		Phone:        phonePtr,
		RecoveryCode: *recoveryCode,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Recovered wallet: %s\n", user.Account.Address().Hex())
	return nil
}

func runStatus(ctx context.Context, wallet *embeddedwallet.EmbeddedWallet, args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	email := fs.String("email", "", "expected email identity")
	phone := fs.String("phone", "", "expected phone identity")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var emailPtr, phonePtr *string
	if *email != "" {
		emailPtr = email
	}
	if *phone != "" {
		phonePtr = phone
	}

	user, err := wallet.GetUser(ctx, emailPtr, phonePtr, "")
	if err != nil {
		return err
	}
	fmt.Printf("Signed in as: %s\n", user.Account.Address().Hex())
	if user.Email != nil {
		fmt.Printf("Email:        %s\n", *user.Email)
	}
	if user.Phone != nil {
		fmt.Printf("Phone:        %s\n", *user.Phone)
	}
	return nil
}

func runInspect(store *localstore.Store) error {
	env, err := store.Load()
	if err != nil {
		return err
	}
	if env == nil {
		fmt.Println("No session envelope on this device")
		return nil
	}

	fmt.Println("=== Local Session Envelope ===")
	fmt.Printf("Wallet user:   %s\n", env.WalletUserID)
	fmt.Printf("Auth provider: %s\n", env.AuthProvider)
	if env.Email != nil {
		fmt.Printf("Email:         %s\n", *env.Email)
	}
	if env.Phone != nil {
		fmt.Printf("Phone:         %s\n", *env.Phone)
	}
	fmt.Printf("Auth token:    %s\n", maskToken(env.AuthToken))
	fmt.Printf("Device share:  present=%v\n", env.DeviceShare != "")
	return nil
}

func maskToken(token string) string {
	if token == "" {
		return "(absent)"
	}
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "…" + token[len(token)-4:]
}
