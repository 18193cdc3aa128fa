package main

import (
	"fmt"
	"io"

	"CatalogTx/internal/interpreter"
	"CatalogTx/internal/transaction"
	"CatalogTx/internal/tui"
)

func newInterpreter(a *app) (*interpreter.Interpreter, error) {
	in := interpreter.New(a.store, a.log)
	if err := in.SetEncoding(a.cfg.Encoding); err != nil {
		return nil, err
	}
	return in, nil
}

func runRepl(a *app, r io.Reader, w io.Writer) error {
	in, err := newInterpreter(a)
	if err != nil {
		return err
	}
	return in.Repl(r, w)
}

func runTUI(a *app) error {
	in, err := newInterpreter(a)
	if err != nil {
		return err
	}
	return tui.Run(in)
}

func runOrphans(a *app, w io.Writer) error {
	orphans, err := transaction.ListOrphans(a.fs, a.store.BackupDir())
	if err != nil {
		return err
	}
	if len(orphans) == 0 {
		fmt.Fprintln(w, "no orphaned backups in", a.store.BackupDir())
		return nil
	}
	for _, o := range orphans {
		fmt.Fprintln(w, o.String())
		for _, artifact := range o.Artifacts {
			fmt.Fprintln(w, "  ", artifact)
		}
	}
	return nil
}
