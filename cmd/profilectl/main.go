// profilectl drives the profiles API from a terminal and keeps the signed-in
// session under the user's config directory.
//
//	profilectl signup --name Ada --email ada@example.com --password ...
//	profilectl signin --email ada@example.com --password ...
//	profilectl google                  # prints the provider URL to open
//	profilectl callback '<frontend callback url>'
//	profilectl profile create --name Ada --grade 10 --subject math ...
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"studyhub/profiles/internal/client"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && len(apiErr.Errors) > 0 {
			fmt.Fprintf(os.Stderr, "error: %s %v\n", apiErr.Message, apiErr.Errors)
		} else {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(args []string) error {
	global := pflag.NewFlagSet("profilectl", pflag.ContinueOnError)
	global.SetInterspersed(false)
	apiURL := global.String("api", envOr("PROFILES_API_URL", "http://localhost:5000"), "profiles API base URL")
	sessionDir := global.String("session-dir", client.DefaultSessionDir(), "directory holding the saved session")
	timeout := global.Duration("timeout", 15*time.Second, "per-command timeout")
	if err := global.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	rest := global.Args()
	if len(rest) == 0 {
		printUsage()
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	sessions := client.NewFileSessionStore(*sessionDir)
	c := client.New(*apiURL, sessions, nil)

	command, cmdArgs := rest[0], rest[1:]
	switch command {
	case "signup":
		fs := pflag.NewFlagSet("signup", pflag.ContinueOnError)
		name := fs.String("name", "", "display name")
		email := fs.String("email", "", "email address")
		password := fs.String("password", os.Getenv("PROFILES_PASSWORD"), "password")
		if err := fs.Parse(cmdArgs); err != nil {
			return err
		}
		if err := c.SignUp(ctx, *name, *email, *password); err != nil {
			return err
		}
		fmt.Println("Account created. Check your email for the verification link.")
		return nil

	case "signin":
		fs := pflag.NewFlagSet("signin", pflag.ContinueOnError)
		email := fs.String("email", "", "email address")
		password := fs.String("password", os.Getenv("PROFILES_PASSWORD"), "password")
		if err := fs.Parse(cmdArgs); err != nil {
			return err
		}
		session, err := c.SignIn(ctx, *email, *password)
		if err != nil {
			return err
		}
		fmt.Printf("Signed in as %s\n", session.User.Email)
		return nil

	case "signout":
		if err := c.SignOut(ctx); err != nil {
			return err
		}
		fmt.Println("Signed out")
		return nil

	case "status":
		session, err := sessions.Load()
		if err != nil || !sessions.IsAuthenticated() {
			fmt.Println("Not signed in")
			return nil
		}
		return printJSON(session.User)

	case "refresh":
		if _, err := c.Refresh(ctx); err != nil {
			return err
		}
		fmt.Println("Session refreshed")
		return nil

	case "google":
		url, err := c.SignInWithGoogle(ctx)
		if err != nil {
			return err
		}
		fmt.Println(url)
		fmt.Fprintf(os.Stderr, "Open the URL, then run: profilectl callback '<redirected url>' within %s\n", client.OAuthStateTTL)
		return nil

	case "callback":
		if len(cmdArgs) != 1 {
			return errors.New("usage: profilectl callback <url>")
		}
		route, err := c.CompleteOAuthCallback(ctx, cmdArgs[0])
		if err != nil {
			return err
		}
		fmt.Printf("Signed in. Next: %s\n", route)
		return nil

	case "reset-password":
		fs := pflag.NewFlagSet("reset-password", pflag.ContinueOnError)
		email := fs.String("email", "", "email address")
		if err := fs.Parse(cmdArgs); err != nil {
			return err
		}
		if err := c.ResetPassword(ctx, *email); err != nil {
			return err
		}
		fmt.Println("If the address is registered, a reset link is on its way.")
		return nil

	case "update-password":
		fs := pflag.NewFlagSet("update-password", pflag.ContinueOnError)
		password := fs.String("password", os.Getenv("PROFILES_PASSWORD"), "new password")
		if err := fs.Parse(cmdArgs); err != nil {
			return err
		}
		if err := c.UpdatePassword(ctx, *password); err != nil {
			return err
		}
		fmt.Println("Password updated")
		return nil

	case "completion":
		completion, err := c.HasCompletedProfile(ctx)
		if err != nil {
			return err
		}
		return printJSON(completion)

	case "profile":
		return runProfile(ctx, c, cmdArgs)

	default:
		printUsage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func runProfile(ctx context.Context, c *client.Client, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: profilectl profile get|create|update [flags]")
	}
	sub, args := args[0], args[1:]
	if sub == "get" {
		profile, err := c.GetProfile(ctx)
		if err != nil {
			return err
		}
		return printJSON(profile)
	}
	if sub != "create" && sub != "update" {
		return fmt.Errorf("unknown profile command %q", sub)
	}

	fs := pflag.NewFlagSet("profile "+sub, pflag.ContinueOnError)
	fs.String("name", "", "name")
	fs.String("grade", "", "grade")
	fs.String("location", "", "location")
	fs.String("school", "", "school")
	fs.String("role", "", "student, teacher, mentor or admin")
	fs.String("mentor", "", "mentor user id")
	fs.StringSlice("subject", nil, "subject, repeatable")
	fs.StringSlice("language", nil, "language preference, repeatable")
	if err := fs.Parse(args); err != nil {
		return err
	}

	// Only flags the user actually set are sent, so update stays partial.
	fields := map[string]interface{}{}
	fs.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "subject":
			values, _ := fs.GetStringSlice("subject")
			fields["subjects"] = values
		case "language":
			values, _ := fs.GetStringSlice("language")
			fields["language_preference"] = values
		default:
			fields[f.Name] = f.Value.String()
		}
	})

	var (
		profile client.Profile
		err     error
	)
	if sub == "create" {
		profile, err = c.CreateProfile(ctx, fields)
	} else {
		profile, err = c.UpdateProfile(ctx, fields)
	}
	if err != nil {
		return err
	}
	return printJSON(profile)
}

func printJSON(value interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

func printUsage() {
	fmt.Fprintln(os.Stderr, strings.TrimSpace(`
usage: profilectl [--api URL] [--session-dir DIR] <command> [flags]

commands:
  signup           --name --email --password
  signin           --email --password
  signout
  status
  refresh
  google           print the Google sign-in URL
  callback <url>   finish Google sign-in from the redirected URL
  reset-password   --email
  update-password  --password
  completion       show profile completion
  profile get|create|update
`))
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
