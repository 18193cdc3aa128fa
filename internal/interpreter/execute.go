package interpreter

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"CatalogTx/internal/logger"
	"CatalogTx/internal/transaction"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrUsage          = errors.New("usage")
	ErrSyntax         = errors.New("syntax error")
)

type command struct {
	usage string
	help  string
	args  int // minimum number of arguments
	run   func(in *Interpreter, args []string) (string, error)
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"begin":    {"begin", "start a transaction", 0, (*Interpreter).begin},
		"backup":   {"backup <path>", "back a file up without changing it", 1, (*Interpreter).backup},
		"write":    {"write <path> <text>", "replace a file's content", 2, (*Interpreter).write},
		"append":   {"append <path> <text>", "append to a file", 2, (*Interpreter).appendText},
		"json":     {"json <path> <json>", "replace a file with an indented JSON record", 2, (*Interpreter).record},
		"commit":   {"commit", "make the transaction's writes permanent", 0, (*Interpreter).commit},
		"rollback": {"rollback", "restore every file the transaction touched", 0, (*Interpreter).rollback},
		"status":   {"status", "show the transaction and the files it touched", 0, (*Interpreter).status},
		"encoding": {"encoding [label]", "show or set the charset of write and append", 0, (*Interpreter).setEncoding},
		"orphans":  {"orphans", "list backups left behind by interrupted transactions", 0, (*Interpreter).orphans},
		"help":     {"help", "show this help", 0, (*Interpreter).help},
	}
}

// Interpreter runs text commands against one Store. It is safe for use by
// one session at a time; concurrent Execute calls are serialized.
type Interpreter struct {
	mu       sync.Mutex
	store    *transaction.Store
	encoding string
	logger   *logger.Logger
}

func New(store *transaction.Store, l *logger.Logger) *Interpreter {
	if l == nil {
		l = logger.Discard()
	}
	return &Interpreter{store: store, encoding: transaction.DefaultEncoding, logger: l}
}

func (in *Interpreter) Store() *transaction.Store { return in.store }

// Execute runs one command line and returns its output. A blank line is a no-op.
func (in *Interpreter) Execute(line string) (string, error) {
	tokens := NewLexer(line).Tokens()
	if len(tokens) == 0 {
		return "", nil
	}
	if last := tokens[len(tokens)-1]; last.Type == ILLEGAL {
		return "", fmt.Errorf("%w: unterminated quote in %q", ErrSyntax, last.Literal)
	}

	name := strings.ToLower(tokens[0].Literal)
	cmd, ok := commands[name]
	if !ok {
		return "", fmt.Errorf("%w %q, try help", ErrUnknownCommand, tokens[0].Literal)
	}

	args := make([]string, 0, len(tokens)-1)
	for _, tok := range tokens[1:] {
		args = append(args, tok.Literal)
	}
	if len(args) < cmd.args {
		return "", fmt.Errorf("%w: %s", ErrUsage, cmd.usage)
	}

	in.mu.Lock()
	defer in.mu.Unlock()

	in.logger.WithField("command", name).Debug("executing command")
	out, err := cmd.run(in, args)
	if err != nil {
		in.logger.WithField("command", name).WithError(err).Error("command failed")
	}
	return out, err
}

func (in *Interpreter) begin(args []string) (string, error) {
	tx, err := in.store.Begin()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("transaction %s started", tx.ID), nil
}

func (in *Interpreter) backup(args []string) (string, error) {
	if err := in.store.Backup(args[0]); err != nil {
		return "", err
	}
	return "backed up " + args[0], nil
}

// text joins the arguments after the path; quoting keeps runs of spaces.
func text(args []string) string {
	return strings.Join(args[1:], " ")
}

func (in *Interpreter) write(args []string) (string, error) {
	content := text(args)
	if err := in.store.WriteString(args[0], content, in.encoding, false); err != nil {
		return "", err
	}
	return fmt.Sprintf("wrote %d characters to %s", len([]rune(content)), args[0]), nil
}

func (in *Interpreter) appendText(args []string) (string, error) {
	content := text(args)
	if err := in.store.AppendString(args[0], content, in.encoding); err != nil {
		return "", err
	}
	return fmt.Sprintf("appended %d characters to %s", len([]rune(content)), args[0]), nil
}

func (in *Interpreter) record(args []string) (string, error) {
	var value any
	if err := json.Unmarshal([]byte(text(args)), &value); err != nil {
		return "", fmt.Errorf("%w: invalid JSON: %v", ErrSyntax, err)
	}
	if err := in.store.WriteStructuredRecord(args[0], value); err != nil {
		return "", err
	}
	return "wrote record to " + args[0], nil
}

func (in *Interpreter) commit(args []string) (string, error) {
	tx := in.store.Active()
	if err := in.store.Commit(); err != nil {
		var cleanup *transaction.CommitCleanupError
		if errors.As(err, &cleanup) {
			return fmt.Sprintf("transaction %s committed", cleanup.TransactionID), err
		}
		return "", err
	}
	return fmt.Sprintf("transaction %s committed", tx.ID), nil
}

func (in *Interpreter) rollback(args []string) (string, error) {
	tx := in.store.Active()
	if tx == nil {
		return "no active transaction", nil
	}
	if err := in.store.Rollback(); err != nil {
		return fmt.Sprintf("transaction %s rolled back with errors", tx.ID), err
	}
	return fmt.Sprintf("transaction %s rolled back", tx.ID), nil
}

func (in *Interpreter) status(args []string) (string, error) {
	tx := in.store.Active()
	if tx == nil {
		return "no active transaction", nil
	}

	var rows [][]string
	for _, path := range tx.Touched() {
		artifact, _ := tx.Artifact(path)
		rows = append(rows, []string{path, "backed up", artifact})
	}
	for _, path := range tx.Created() {
		rows = append(rows, []string{path, "created", ""})
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "transaction %s active since %s\n", tx.ID, tx.StartedAt.Format("2006-01-02 15:04:05"))
	if len(rows) == 0 {
		sb.WriteString("no files touched")
		return sb.String(), nil
	}
	sb.WriteString(formatTable([]string{"Path", "State", "Backup"}, rows))
	return strings.TrimRight(sb.String(), "\n"), nil
}

func (in *Interpreter) setEncoding(args []string) (string, error) {
	if len(args) == 0 {
		return "encoding " + in.encoding, nil
	}
	if err := in.setCharset(args[0]); err != nil {
		return "", err
	}
	return "encoding set to " + args[0], nil
}

// SetEncoding sets the charset used by write and append.
func (in *Interpreter) SetEncoding(charset string) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.setCharset(charset)
}

func (in *Interpreter) setCharset(charset string) error {
	if err := transaction.CheckEncoding(charset); err != nil {
		return err
	}
	in.encoding = charset
	return nil
}

func (in *Interpreter) orphans(args []string) (string, error) {
	orphans, err := transaction.ListOrphans(in.store.Fs(), in.store.BackupDir())
	if err != nil {
		return "", err
	}
	if len(orphans) == 0 {
		return "no orphaned backups", nil
	}
	rows := make([][]string, len(orphans))
	for i, o := range orphans {
		rows[i] = []string{
			o.TransactionID,
			fmt.Sprint(len(o.Artifacts)),
			fmt.Sprint(o.Bytes),
			o.LastModified.Format("2006-01-02 15:04:05"),
		}
	}
	return strings.TrimRight(formatTable([]string{"Transaction", "Files", "Bytes", "Last modified"}, rows), "\n"), nil
}

func (in *Interpreter) help(args []string) (string, error) {
	names := make([]string, 0, len(commands))
	width := 0
	for name, cmd := range commands {
		names = append(names, name)
		width = max(width, len(cmd.usage))
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, name := range names {
		cmd := commands[name]
		fmt.Fprintf(&sb, "  %-*s  %s\n", width, cmd.usage, cmd.help)
	}
	fmt.Fprintf(&sb, "  %-*s  %s", width, "exit", "leave the session, rolling back an open transaction")
	return sb.String(), nil
}
