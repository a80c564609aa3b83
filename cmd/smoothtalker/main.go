// Copyright 2026 The SmoothTalker Authors
// SPDX-License-Identifier: MIT

// smoothtalker is a terminal client for the Talker messaging service.
//
// State (accounts, open rooms, resumption cursors, options) lives in a
// single YAML file given by --config or $SMOOTHTALKER_CONFIG. On
// startup the client discovers each account's rooms over REST, rejoins
// the rooms that were open last session, and hands control to the
// terminal UI.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/smoothtalker/smoothtalker/config"
	"github.com/smoothtalker/smoothtalker/history"
	"github.com/smoothtalker/smoothtalker/talker"
	"github.com/smoothtalker/smoothtalker/tui"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	var historyPath string
	var logOutput string

	flagSet := pflag.NewFlagSet("smoothtalker", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to the state file (or $SMOOTHTALKER_CONFIG)")
	flagSet.StringVar(&historyPath, "history", "", "path to the transcript database (default: alongside the state file)")
	flagSet.StringVar(&logOutput, "log-output", "", "write JSON log records to this file")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	if configPath == "" {
		configPath = os.Getenv("SMOOTHTALKER_CONFIG")
	}
	if configPath == "" {
		return fmt.Errorf("no state file: pass --config or set SMOOTHTALKER_CONFIG")
	}

	// The TUI owns the terminal, so logs go to a file or nowhere.
	logger := slog.New(slog.DiscardHandler)
	if logOutput != "" {
		logFile, err := os.OpenFile(logOutput, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("opening log output: %w", err)
		}
		defer logFile.Close()
		logger = slog.New(slog.NewJSONHandler(logFile, nil))
	}
	slog.SetDefault(logger)

	store, err := config.Load(configPath, logger)
	if err != nil {
		return err
	}

	accounts := store.Accounts()
	if len(accounts) == 0 {
		account, err := promptAccount(os.Stdin, os.Stdout)
		if err != nil {
			return err
		}
		store.UpsertAccount(account)
		if err := store.Save(); err != nil {
			return err
		}
		accounts = store.Accounts()
	}

	options := store.Options()

	if historyPath == "" {
		historyPath = filepath.Join(filepath.Dir(configPath), "history.db")
	}
	transcripts, err := history.Open(history.Config{
		Path:            historyPath,
		MessagesPerRoom: options.TotalMessagesPerRoom,
		Logger:          logger,
	})
	if err != nil {
		return err
	}
	defer transcripts.Close()

	bridge := tui.NewBridge()
	mux := talker.NewMultiplexer(bridge, logger)

	editor := &terminalCredentialEditor{in: os.Stdin, out: os.Stdout}
	for _, account := range accounts {
		directory, err := talker.NewDirectory(talker.DirectoryConfig{
			Account: talker.Account{
				Name:   account.Name,
				Domain: account.Domain,
				Token:  account.Token,
			},
			SessionDefaults: talker.SessionConfig{Cursor: store, Avatars: &talker.HTTPAvatarFetcher{}},
			Credentials:     editor,
			OpenRooms:       store,
			ReopenLastRooms: options.ReopenLastSessionRooms,
			Observer:        mux.Observer(),
			Logger:          logger,
		})
		if err != nil {
			return err
		}
		mux.AddDirectory(directory)
	}

	// Discover before the TUI takes the terminal: a rejected token
	// prompts for re-entry on stdin, which needs a plain terminal.
	ctx := context.Background()
	for _, directory := range mux.Directories() {
		if err := directory.DiscoverRooms(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "warning: discovery for account %q failed: %v\n",
				directory.Account().Name, err)
			continue
		}
		edited := directory.Account()
		store.UpsertAccount(config.AccountState{
			Name:   edited.Name,
			Token:  edited.Token,
			Domain: edited.Domain,
		})
		for _, room := range directory.AvailableRooms() {
			store.RememberRoom(room.ID, room.Name)
		}
	}

	model := tui.NewModel(tui.Config{
		Mux:     mux,
		Bridge:  bridge,
		History: transcripts,
		Options: options,
		Logger:  logger,
	})
	program := tea.NewProgram(model, tea.WithAltScreen())
	_, runErr := program.Run()

	mux.CloseAll()
	if err := store.Save(); err != nil {
		logger.Warn("final state save failed", "error", err)
	}
	return runErr
}

// promptAccount interactively collects the first account.
func promptAccount(in *os.File, out *os.File) (config.AccountState, error) {
	fmt.Fprintln(out, "no accounts configured — let's add one.")
	reader := bufio.NewReader(in)

	read := func(label string) (string, error) {
		fmt.Fprintf(out, "%s: ", label)
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", label, err)
		}
		return strings.TrimSpace(line), nil
	}

	name, err := read("account name")
	if err != nil {
		return config.AccountState{}, err
	}
	domain, err := read("domain (as in https://DOMAIN.talkerapp.com)")
	if err != nil {
		return config.AccountState{}, err
	}
	token, err := read("token")
	if err != nil {
		return config.AccountState{}, err
	}
	if name == "" || domain == "" || token == "" {
		return config.AccountState{}, fmt.Errorf("account name, domain, and token are all required")
	}
	return config.AccountState{Name: name, Domain: domain, Token: token}, nil
}

// terminalCredentialEditor asks for a replacement token on the
// terminal when the server rejects the stored one. Used only before
// the TUI starts.
type terminalCredentialEditor struct {
	in  *os.File
	out *os.File
}

func (e *terminalCredentialEditor) EditCredentials(ctx context.Context, account talker.Account) (talker.Account, bool) {
	fmt.Fprintf(e.out, "the server rejected the token for account %q.\n", account.Name)
	fmt.Fprintf(e.out, "new token (empty to skip): ")

	reader := bufio.NewReader(e.in)
	line, err := reader.ReadString('\n')
	if err != nil {
		return account, false
	}
	token := strings.TrimSpace(line)
	if token == "" {
		return account, false
	}
	account.Token = token
	return account, true
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `smoothtalker — terminal client for the Talker messaging service.

State lives in one YAML file; there is no default location. Pass
--config or set SMOOTHTALKER_CONFIG. The file is created on first run
after prompting for an account.

Keys: ctrl+o join room, ctrl+w leave room, tab/shift+tab switch rooms,
enter send, ctrl+c quit.

Usage:
  smoothtalker --config PATH [flags]

Flags:
%s`, flagSet.FlagUsages())
}
