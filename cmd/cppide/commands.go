package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/samber/do"
	"github.com/spf13/cobra"

	"cppide/internal/app/producer"
	"cppide/internal/app/worker"
	"cppide/internal/domain/execution"
	kafkainfra "cppide/internal/infra/kafka"
	"cppide/internal/ports"
	"cppide/internal/source"
)

const interruptedCode = 130

var knownCompilers = []string{"g++", "clang++", "gcc"}

func newBuildCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "build FILE",
		Short: "Compile a source file and print the diagnostics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			con := newConsole(cmd.OutOrStdout(), cmd.ErrOrStderr())
			ed, err := a.openEditor(args[0], con)
			if err != nil {
				return err
			}
			defer ed.close()

			ed.ctrl.Compile(ed.text)
			ev, err := follow(cmd.Context(), ed.ctrl.Events(), con, isBuildResult)
			if err != nil {
				return interrupted(err)
			}
			if !ev.Build.Succeeded {
				return exitCodeError{code: 1}
			}

			if output != "" {
				artifact := ed.ctrl.Artifact()
				if artifact == nil {
					return errors.New("build produced no executable")
				}
				if err := copyExecutable(artifact.ArtifactPath, output); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "copy the executable to this path")
	return cmd
}

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run FILE",
		Short: "Compile a source file and run it, forwarding standard input",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			con := newConsole(cmd.OutOrStdout(), cmd.ErrOrStderr())
			ed, err := a.openEditor(args[0], con)
			if err != nil {
				return err
			}
			defer ed.close()

			ed.ctrl.CompileAndRun(ed.text)

			inputCtx, stopInput := context.WithCancel(cmd.Context())
			defer stopInput()

			var forwarding bool
			ev, err := follow(cmd.Context(), ed.ctrl.Events(), con, func(ev execution.Event) bool {
				switch ev.Kind {
				case execution.EventBuildResult:
					return !ev.Build.Succeeded
				case execution.EventRunStarted:
					if !forwarding {
						forwarding = true
						go forwardInput(inputCtx, cmd.InOrStdin(), ed.ctrl.SendInput)
					}
				case execution.EventStatus:
					return ev.Text == "Runtime Error"
				case execution.EventRunExit:
					stopInput()
					return true
				}
				return false
			})
			if err != nil {
				return interrupted(err)
			}

			switch {
			case ev.Kind == execution.EventBuildResult, ev.Exit == nil:
				return exitCodeError{code: 1}
			case ev.Exit.State == execution.RunTerminated:
				return exitCodeError{code: interruptedCode}
			case ev.Exit.Code != 0:
				return exitCodeError{code: ev.Exit.Code}
			}
			return nil
		},
	}
}

func newShellCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "shell [FILE]",
		Short: "Interactive session with editor commands and a program terminal",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) == 1 {
				path = args[0]
			}

			con := newConsole(cmd.OutOrStdout(), cmd.ErrOrStderr())
			ed, err := a.openEditor(path, con)
			if err != nil {
				return err
			}
			defer ed.close()

			rendered := make(chan struct{})
			go func() {
				defer close(rendered)
				for ev := range ed.ctrl.Events() {
					con.render(ev)
				}
			}()

			con.println(shellHelp)
			if a.settings.Backend == backendLocal && len(installedCompilers(exec.LookPath)) == 0 {
				a.logger.Warn("no C/C++ compiler found", "searched", knownCompilers)
				con.println("Warning: no C/C++ compiler found. Install g++, clang++ or gcc to compile programs.")
			}

			lines := make(chan string)
			go func() {
				defer close(lines)
				scanner := bufio.NewScanner(cmd.InOrStdin())
				for scanner.Scan() {
					lines <- scanner.Text()
				}
			}()

		loop:
			for {
				select {
				case line, ok := <-lines:
					if !ok || ed.dispatch(line) {
						break loop
					}
				case <-cmd.Context().Done():
					break loop
				}
			}

			err = ed.close()
			<-rendered
			return err
		},
	}
}

func newWorkerCmd(a *app) *cobra.Command {
	var (
		files       []string
		samples     bool
		publish     bool
		maxRequests int
		maxParallel int
	)

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Build and run requests from Kafka, source files or the sample catalogue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if !cmd.Flags().Changed("max-requests") {
				maxRequests = a.settings.Worker.MaxRequests
			}
			if !cmd.Flags().Changed("max-parallel") {
				maxParallel = a.settings.Worker.MaxParallel
			}

			svc, err := do.Invoke[*worker.Service](a.injector)
			if err != nil {
				return fmt.Errorf("initialize worker: %w", err)
			}
			defer func() {
				if cerr := svc.Close(); cerr != nil {
					a.logger.Warn("close worker", "error", cerr)
				}
			}()

			requests, closeRequests, err := a.requestProducer(files, samples)
			if err != nil {
				return err
			}
			defer closeRequests()

			var publisher ports.ReportPublisher
			if publish || a.settings.Kafka.PublishReports {
				if publisher, err = do.Invoke[ports.ReportPublisher](a.injector); err != nil {
					return fmt.Errorf("initialize publisher: %w", err)
				}
				defer func() {
					if cerr := publisher.Close(); cerr != nil {
						a.logger.Warn("close publisher", "error", cerr)
					}
				}()
			}

			var mu sync.Mutex
			out := cmd.OutOrStdout()
			err = svc.ExecuteFromProducer(ctx, requests, maxRequests, maxParallel, func(report execution.Report) {
				mu.Lock()
				printReport(out, report)
				mu.Unlock()

				if publisher == nil {
					return
				}
				if perr := publisher.PublishReport(ctx, report); perr != nil {
					a.logger.Error("publish report", "request", report.RequestID, "error", perr)
				}
			})
			if err != nil {
				return fmt.Errorf("execute requests: %w", err)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringSliceVar(&files, "file", nil, "process these source files instead of consuming Kafka")
	flags.BoolVar(&samples, "samples", false, "process the built-in sample programs")
	flags.BoolVar(&publish, "publish", false, "publish reports to the results topic")
	flags.IntVar(&maxRequests, "max-requests", 0, "stop after this many requests (0 means unlimited)")
	flags.IntVar(&maxParallel, "max-parallel", 1, "requests processed concurrently")
	return cmd
}

func (a *app) requestProducer(files []string, samples bool) (ports.RequestProducer, func(), error) {
	noop := func() {}

	switch {
	case len(files) > 0:
		svc, err := producer.FromFiles(files...)
		if err != nil {
			return nil, noop, err
		}
		return svc, noop, nil
	case samples:
		return producer.NewService(), noop, nil
	}

	consumer, err := kafkainfra.NewConsumer(kafkainfra.Config{
		Brokers:     a.settings.brokers(),
		Topic:       a.settings.Kafka.RequestsTopic,
		GroupID:     a.settings.Kafka.GroupID,
		SkipInvalid: true,
		Logger:      a.logger,
	})
	if err != nil {
		return nil, noop, fmt.Errorf("initialize kafka consumer: %w", err)
	}
	return consumer, func() {
		if cerr := consumer.Close(); cerr != nil {
			a.logger.Warn("close kafka consumer", "error", cerr)
		}
	}, nil
}

func newSubmitCmd(a *app) *cobra.Command {
	var (
		stdin []string
		done  bool
	)

	cmd := &cobra.Command{
		Use:   "submit [FILE...]",
		Short: "Submit source files as build requests to Kafka",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !done {
				return errors.New("nothing to submit")
			}

			submitter, err := kafkainfra.NewSubmitter(kafkainfra.PublisherConfig{
				Brokers: a.settings.brokers(),
				Topic:   a.settings.Kafka.RequestsTopic,
			})
			if err != nil {
				return fmt.Errorf("initialize kafka submitter: %w", err)
			}
			defer func() {
				if cerr := submitter.Close(); cerr != nil {
					a.logger.Warn("close kafka submitter", "error", cerr)
				}
			}()

			for _, path := range args {
				req, err := a.requestFromFile(path, stdin)
				if err != nil {
					return err
				}
				id, err := submitter.Submit(cmd.Context(), req)
				if err != nil {
					return fmt.Errorf("submit %s: %w", path, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", id, path)
			}

			if done {
				if err := submitter.Done(cmd.Context()); err != nil {
					return fmt.Errorf("submit done marker: %w", err)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&stdin, "stdin", nil, "input line fed to the program (repeatable)")
	cmd.Flags().BoolVar(&done, "done", false, "tell workers that no more requests follow")
	return cmd
}

func (a *app) requestFromFile(path string, stdin []string) (execution.BuildRequest, error) {
	text, err := source.Open(path)
	if err != nil {
		return execution.BuildRequest{}, err
	}
	lang, err := a.settings.languageFor(path)
	if err != nil {
		return execution.BuildRequest{}, err
	}

	req := execution.BuildRequest{
		Language: lang,
		Source:   text,
		Stdin:    stdin,
	}
	if a.settings.hasOverrides() {
		cfg := a.settings.overrides()
		req.Config = &cfg
	}
	return req, nil
}

// forwardInput feeds lines from r to the running program until ctx ends or
// the program stops accepting input.
func forwardInput(ctx context.Context, r io.Reader, send func(string) error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		if err := send(scanner.Text()); errors.Is(err, execution.ErrNotRunning) {
			return
		}
	}
}

// installedCompilers returns the known compilers found on PATH.
func installedCompilers(lookPath func(string) (string, error)) []string {
	var found []string
	for _, name := range knownCompilers {
		if _, err := lookPath(name); err == nil {
			found = append(found, name)
		}
	}
	return found
}

func copyExecutable(from, to string) error {
	data, err := os.ReadFile(from)
	if err != nil {
		return fmt.Errorf("read executable: %w", err)
	}
	if err := os.WriteFile(to, data, 0o755); err != nil {
		return fmt.Errorf("write executable: %w", err)
	}
	return nil
}

func interrupted(err error) error {
	if errors.Is(err, context.Canceled) {
		return exitCodeError{code: interruptedCode}
	}
	return err
}
