package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/atinyakov/PartyBooth/internal/client"
)

var (
	version   string
	buildDate string
)

const usage = `usage: partybooth [flags] <command> [args]

device commands:
  login                          log in and store the token
  verify                         check the stored token
  session [name]                 create a photo session
  capture <session-id>           run a countdown and store three photos
  select <session-id> <photo-id> pick the photo to share
  shell                          interactive booth loop

admin commands (need --admin-key):
  create-device <device-id> [name]
  set-active <device-id> <true|false>
  reveal <device-id>
`

type app struct {
	api       *client.Client
	prompt    *client.Prompter
	tokenFile string
}

// main parses command-line flags and dispatches to the device or admin commands.
func main() {
	var (
		baseURL   string
		caFile    string
		tokenFile string
		adminKey  string
		showVer   bool
	)

	fs := pflag.NewFlagSet("partybooth", pflag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, usage, "\nflags:\n")
		fs.PrintDefaults()
	}
	fs.StringVarP(&baseURL, "url", "u", "http://localhost:8080", "server base URL")
	fs.StringVar(&caFile, "ca", "", "path to CA cert for an HTTPS server")
	fs.StringVar(&tokenFile, "token-file", defaultTokenFile(), "where the login token is stored")
	fs.StringVar(&adminKey, "admin-key", os.Getenv("ADMIN_KEY"), "admin API key")
	fs.BoolVarP(&showVer, "version", "v", false, "show build version and date")
	_ = fs.Parse(os.Args[1:])

	if showVer {
		fmt.Printf("PartyBooth Client\nVersion: %s\nBuild Date: %s\n", version, buildDate)
		return
	}

	args := fs.Args()
	if len(args) == 0 {
		fs.Usage()
		os.Exit(2)
	}

	api, err := client.New(baseURL, caFile)
	if err != nil {
		log.Fatal(err)
	}
	api.AdminKey = adminKey

	a := &app{
		api:       api,
		prompt:    &client.Prompter{In: os.Stdin, Out: os.Stdout, FD: int(os.Stdin.Fd())},
		tokenFile: tokenFile,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := a.run(ctx, args[0], args[1:]); err != nil {
		log.Fatal(err)
	}
}

func defaultTokenFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".partybooth-token.json"
	}
	return filepath.Join(dir, "partybooth", "token.json")
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "login":
		return a.login(ctx)
	case "verify":
		if err := a.useToken(); err != nil {
			return err
		}
		id, err := a.api.Verify(ctx, a.api.Token)
		if err != nil {
			return err
		}
		fmt.Printf("token valid for device %s\n", id)
		return nil
	case "session":
		if err := a.useToken(); err != nil {
			return err
		}
		name := ""
		if len(args) > 0 {
			name = args[0]
		}
		s, err := a.api.CreateSession(ctx, name)
		if err != nil {
			return err
		}
		fmt.Printf("session %s (%s) expires %s\n", s.SessionID, s.SessionName, s.ExpiresAt.Local().Format(time.RFC1123))
		return nil
	case "capture":
		if len(args) != 1 {
			return errors.New("usage: capture <session-id>")
		}
		if err := a.useToken(); err != nil {
			return err
		}
		_, err := a.capture(ctx, args[0])
		return err
	case "select":
		if len(args) != 2 {
			return errors.New("usage: select <session-id> <photo-id>")
		}
		if err := a.useToken(); err != nil {
			return err
		}
		url, err := a.api.SelectPhoto(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Println(url)
		return nil
	case "shell":
		if err := a.useToken(); err != nil {
			return err
		}
		return a.repl(ctx)
	case "create-device":
		if len(args) < 1 {
			return errors.New("usage: create-device <device-id> [name]")
		}
		name := strings.Join(args[1:], " ")
		password, err := a.prompt.Password("Password for new device: ")
		if err != nil {
			return err
		}
		id, err := a.api.CreateDevice(ctx, args[0], password, name)
		if err != nil {
			return err
		}
		fmt.Printf("device created (%s)\n", id)
		return nil
	case "set-active":
		if len(args) != 2 {
			return errors.New("usage: set-active <device-id> <true|false>")
		}
		active := args[1] == "true"
		if !active && args[1] != "false" {
			return fmt.Errorf("invalid value %q, want true or false", args[1])
		}
		return a.api.SetActive(ctx, args[0], active)
	case "reveal":
		if len(args) != 1 {
			return errors.New("usage: reveal <device-id>")
		}
		password, err := a.api.RevealPassword(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Println(password)
		return nil
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func (a *app) login(ctx context.Context) error {
	deviceID := a.prompt.Line("Device ID: ")
	password, err := a.prompt.Password("Password: ")
	if err != nil {
		return err
	}
	res, err := a.api.Login(ctx, deviceID, password)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(a.tokenFile), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	if err := client.SaveToken(a.tokenFile, res); err != nil {
		return err
	}
	fmt.Printf("logged in as %s, token valid until %s\n", res.DeviceName, res.ExpiresAt.Local().Format(time.RFC1123))
	return nil
}

func (a *app) useToken() error {
	res, err := client.LoadToken(a.tokenFile, time.Now())
	if err != nil {
		if errors.Is(err, client.ErrNoToken) {
			return errors.New("not logged in, run the login command first")
		}
		return err
	}
	a.api.Token = res.Token
	return nil
}

func (a *app) capture(ctx context.Context, sessionID string) ([]client.StoredFrame, error) {
	frames, err := a.api.Capture(ctx, sessionID, func(ev client.CaptureEvent) {
		switch ev.Phase {
		case "countdown":
			fmt.Printf("%d...\n", ev.Count)
		case "capturing":
			fmt.Printf("snap %d\n", ev.Index)
		}
	})
	if err != nil {
		if errors.Is(err, client.ErrBusy) {
			return nil, errors.New("the booth is busy, try again in a moment")
		}
		return nil, err
	}
	for _, f := range frames {
		fmt.Printf("photo %d: %s (%d bytes)\n", f.Index, f.PhotoID, f.Size)
	}
	return frames, nil
}

// repl runs the interactive booth loop: new session, capture, pick.
func (a *app) repl(ctx context.Context) error {
	scanner := bufio.NewScanner(os.Stdin)
	var (
		session client.Session
		frames  []client.StoredFrame
	)

	for {
		fmt.Print("partybooth> ")
		if !scanner.Scan() {
			return nil
		}
		args := strings.Fields(strings.TrimSpace(scanner.Text()))
		if len(args) == 0 {
			continue
		}
		switch args[0] {
		case "help":
			fmt.Println("Available commands: help, new [name], snap, pick <1-3>, exit")
		case "new":
			s, err := a.api.CreateSession(ctx, strings.Join(args[1:], " "))
			if err != nil {
				fmt.Println(err)
				continue
			}
			session, frames = s, nil
			fmt.Printf("session %s ready\n", s.SessionID)
		case "snap":
			if session.SessionID == "" {
				fmt.Println("Start a session with 'new' first")
				continue
			}
			got, err := a.capture(ctx, session.SessionID)
			if err != nil {
				fmt.Println(err)
				continue
			}
			frames = got
		case "pick":
			if len(args) < 2 || len(frames) == 0 {
				fmt.Println("Usage: pick <1-3> after a snap")
				continue
			}
			var photoID string
			for _, f := range frames {
				if fmt.Sprint(f.Index) == args[1] {
					photoID = f.PhotoID
				}
			}
			if photoID == "" {
				fmt.Println("No such photo")
				continue
			}
			url, err := a.api.SelectPhoto(ctx, session.SessionID, photoID)
			if err != nil {
				fmt.Println(err)
				continue
			}
			fmt.Printf("Scan or open: %s\n", url)
		case "exit":
			fmt.Println("Bye")
			return nil
		default:
			fmt.Println("Unknown command. Type 'help' for a list of commands.")
		}
	}
}
