package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"docchat/internal/docchat"
)

const replHelp = `Type a question and press enter. Commands:
  /files            list uploaded files (* marks the selected one)
  /select REF       chat about a file (list number, session id or filename)
  /deselect         ask from general knowledge
  /upload PATH...   upload files or directories
  /delete REF       delete a file
  /refresh          reload the file list from the server
  /lang [en|ms]     show or set the response language
  /clear            start a fresh conversation
  /help             show this help
  /quit             leave`

// repl is the interactive chat loop. Every line is either a slash command or a
// question for the assistant.
type repl struct {
	engine *docchat.Engine
	in     *bufio.Scanner
	out    io.Writer
	// prompt is printed before each line when reading from a terminal.
	prompt bool
}

func newREPL(engine *docchat.Engine, in io.Reader, out io.Writer, prompt bool) *repl {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &repl{engine: engine, in: sc, out: out, prompt: prompt}
}

// run reads lines until EOF, /quit or ctx is done. Failures are printed and the loop
// continues; only input errors end it with an error.
func (r *repl) run(ctx context.Context) error {
	fmt.Fprintln(r.out, statusLine(r.engine.Store().Snapshot()))
	if r.prompt {
		fmt.Fprintln(r.out, "Type /help for commands.")
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		if r.prompt {
			fmt.Fprint(r.out, "> ")
		}
		if !r.in.Scan() {
			return r.in.Err()
		}

		line := strings.TrimSpace(r.in.Text())
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "/"):
			if quit := r.command(ctx, line); quit {
				return nil
			}
		default:
			r.ask(ctx, line)
		}
	}
}

func (r *repl) ask(ctx context.Context, text string) {
	ex, err := r.engine.Ask(ctx, text)
	if err != nil {
		fmt.Fprintf(r.out, "Error: %v\n", err)
		return
	}
	printExchange(r.out, ex)
}

func (r *repl) command(ctx context.Context, line string) (quit bool) {
	fields := strings.Fields(line)
	name, args := strings.TrimPrefix(fields[0], "/"), fields[1:]

	var err error
	switch name {
	case "quit", "exit", "q":
		return true
	case "help", "?":
		fmt.Fprintln(r.out, replHelp)
	case "files", "ls":
		err = printFiles(r.out, formatTable, r.engine.Store().Snapshot())
	case "select":
		err = r.selectFile(ctx, strings.Join(args, " "))
	case "deselect":
		r.engine.Deselect()
		fmt.Fprintln(r.out, statusLine(r.engine.Store().Snapshot()))
	case "upload":
		if len(args) == 0 {
			err = fmt.Errorf("usage: /upload PATH...")
			break
		}
		printUploadResults(r.out, r.engine.UploadPaths(ctx, args, false))
		fmt.Fprintln(r.out, statusLine(r.engine.Store().Snapshot()))
	case "delete", "rm":
		err = r.deleteFile(ctx, strings.Join(args, " "))
	case "refresh":
		if err = r.engine.Refresh(ctx); err == nil {
			err = printFiles(r.out, formatTable, r.engine.Store().Snapshot())
		}
	case "lang":
		if len(args) == 0 {
			fmt.Fprintf(r.out, "Language: %s\n", r.engine.Store().Language())
			break
		}
		var lang docchat.Language
		if lang, err = r.engine.SetLanguage(args[0]); err == nil {
			fmt.Fprintf(r.out, "Language set to %s\n", lang)
		}
	case "clear":
		r.engine.ClearChat()
		fmt.Fprintln(r.out, "Conversation cleared.")
	default:
		err = fmt.Errorf("unknown command /%s (try /help)", name)
	}

	if err != nil {
		fmt.Fprintf(r.out, "Error: %v\n", err)
	}
	return false
}

func (r *repl) selectFile(ctx context.Context, ref string) error {
	f, err := findFile(ctx, r.engine, ref)
	if err != nil {
		return err
	}
	if err := r.engine.Select(f.SessionID); err != nil {
		return err
	}
	fmt.Fprintln(r.out, statusLine(r.engine.Store().Snapshot()))
	return nil
}

func (r *repl) deleteFile(ctx context.Context, ref string) error {
	f, err := resolveFileRef(r.engine.Store().Files(), ref)
	if err != nil {
		return err
	}
	if r.prompt && !r.confirm(fmt.Sprintf("Delete %s (session %s)? This cannot be undone. [y/N] ", f.Filename, f.SessionID)) {
		fmt.Fprintln(r.out, "Cancelled.")
		return nil
	}
	if err := r.engine.Delete(ctx, f.SessionID); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Deleted %s\n", f.Filename)
	return nil
}

// confirm asks a yes/no question on the input stream. Anything but y or yes is a no.
func (r *repl) confirm(question string) bool {
	fmt.Fprint(r.out, question)
	if !r.in.Scan() {
		return false
	}
	reply := strings.ToLower(strings.TrimSpace(r.in.Text()))
	return reply == "y" || reply == "yes"
}

// findFile resolves ref against the local inventory. When nothing matches locally it
// looks at the server's listing without applying it, and only a record that matches
// there is added to the inventory. A failed lookup changes nothing.
func findFile(ctx context.Context, engine *docchat.Engine, ref string) (docchat.FileRecord, error) {
	f, err := resolveFileRef(engine.Store().Files(), ref)
	if err == nil || !errors.Is(err, errNoFileMatch) {
		return f, err
	}

	remote, listErr := engine.RemoteFiles(ctx)
	if listErr != nil {
		return docchat.FileRecord{}, fmt.Errorf("%w; %w", err, listErr)
	}
	f, matchErr := matchFileRef(remote, ref, false)
	if matchErr != nil {
		return docchat.FileRecord{}, err
	}
	engine.Track(f)
	return f, nil
}
