package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/samber/do"

	"cppide/internal/app/build"
	"cppide/internal/app/ide"
	"cppide/internal/domain/execution"
	"cppide/internal/source"
)

const shutdownTimeout = 10 * time.Second

const shellHelp = `Editor commands:

:compile          compile the buffer
:run              run the last build
:cr               compile and run
:stop             stop the running program
:clean            delete temporary files
:open FILE        load FILE into the buffer
:save [FILE]      write the buffer
:lang c|cpp       select the language
:compiler NAME    select the compiler
:std STD          select the language standard
:flags FLAGS      replace the extra compiler flags
:config           show the compiler settings
:quit             leave

Any other line goes to the running program, or to the host shell.`

// editor is a console front end over the controller: one buffer, one
// current build, one running program.
type editor struct {
	ctrl     *ide.Controller
	builds   *build.Service
	con      *console
	settings Settings
	logger   *slog.Logger

	path string
	text string

	closeOnce sync.Once
	closeErr  error
}

func (a *app) openEditor(path string, con *console) (*editor, error) {
	ctrl, err := do.Invoke[*ide.Controller](a.injector)
	if err != nil {
		return nil, fmt.Errorf("initialize controller: %w", err)
	}

	e := &editor{
		ctrl:     ctrl,
		builds:   do.MustInvoke[*build.Service](a.injector),
		con:      con,
		settings: a.settings,
		logger:   a.logger,
	}
	if path != "" {
		if err := e.load(path); err != nil {
			_ = e.close()
			return nil, err
		}
	}
	return e, nil
}

func (e *editor) load(path string) error {
	text, err := source.Open(path)
	if err != nil {
		return err
	}
	lang, err := e.settings.languageFor(path)
	if err != nil {
		return err
	}

	e.path, e.text = path, text
	e.setLanguage(lang)
	return nil
}

func (e *editor) setLanguage(lang execution.Language) {
	e.ctrl.SetLanguage(lang)
	e.ctrl.SetConfig(e.settings.buildConfig(lang))
}

// dispatch handles one console line and reports whether the user quit.
func (e *editor) dispatch(line string) bool {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, ":") {
		e.ctrl.SubmitLine(line)
		return false
	}

	name, arg, _ := strings.Cut(strings.TrimPrefix(trimmed, ":"), " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "compile", "c":
		e.ctrl.Compile(e.text)
	case "run", "r":
		e.ctrl.Run()
	case "cr":
		e.ctrl.CompileAndRun(e.text)
	case "stop", "s":
		e.ctrl.Stop()
	case "clean":
		e.ctrl.Clean()
	case "open", "o":
		if err := e.load(arg); err != nil {
			e.con.println(fmt.Sprintf("Error opening file: %v", err))
		}
	case "save", "w":
		e.save(arg)
	case "lang":
		lang, err := execution.ParseLanguage(arg)
		if err != nil {
			e.con.println(err.Error())
			break
		}
		e.setLanguage(lang)
	case "compiler", "std", "flags":
		e.configure(name, arg)
	case "config":
		cfg := e.ctrl.Config()
		e.con.println(fmt.Sprintf("compiler=%s std=%s flags=%s", cfg.Compiler, cfg.Standard, strings.Join(cfg.Flags, " ")))
	case "help", "h":
		e.con.println(shellHelp)
	case "quit", "q", "exit":
		return true
	default:
		e.con.println(fmt.Sprintf("unknown command :%s (try :help)", name))
	}
	return false
}

func (e *editor) configure(field, value string) {
	cfg := e.ctrl.Config()
	switch field {
	case "compiler":
		if value == "" {
			e.con.println("compiler name required")
			return
		}
		cfg.Compiler = value
	case "std":
		cfg.Standard = value
	case "flags":
		cfg.Flags = execution.ParseFlags(value)
	}
	e.ctrl.SetConfig(cfg)
}

func (e *editor) save(path string) {
	if path == "" {
		path = e.path
	}
	if path == "" {
		e.con.println("no file name")
		return
	}
	if err := source.Save(path, e.text); err != nil {
		e.con.println(fmt.Sprintf("Error saving file: %v", err))
		return
	}
	e.path = path
	e.con.println("Saved " + path)
}

// close stops the program, deletes temporary files and releases the
// toolchain.
func (e *editor) close() error {
	e.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := e.ctrl.Shutdown(ctx); err != nil {
			e.logger.Warn("controller shutdown", "error", err)
			e.closeErr = err
		}
		if err := e.builds.Close(); err != nil {
			e.logger.Warn("close toolchain", "error", err)
		}
	})
	return e.closeErr
}
