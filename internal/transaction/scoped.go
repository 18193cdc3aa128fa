package transaction

import (
	"errors"
	"fmt"
)

// errScopeExited stands in for the cause when body leaves through
// runtime.Goexit, for example t.FailNow in a test.
var errScopeExited = errors.New("scope exited without returning")

// Do runs body inside a transaction. A nil result commits; an error rolls
// back and is returned unchanged; a panic rolls back and keeps panicking.
// Any other exit from body also rolls back. Begin errors are returned
// without running body.
func (s *Store) Do(body func(s *Store) error) error {
	tx, err := s.Begin()
	if err != nil {
		return err
	}

	returned := false
	defer func() {
		r := recover()
		switch {
		case r != nil:
			s.abandon(tx, fmt.Errorf("panic: %v", r))
			panic(r)
		case !returned:
			s.abandon(tx, errScopeExited)
		}
	}()

	err = body(s)
	returned = true
	if err != nil {
		s.abandon(tx, err)
		return err
	}

	if s.Active() != tx {
		return fmt.Errorf("transaction %s was resolved inside its scope: %w", tx.ID, ErrNotActive)
	}
	return s.Commit()
}

// abandon rolls tx back if it is still the store's transaction. Rollback
// failures are logged so the caller keeps seeing the original cause.
func (s *Store) abandon(tx *Transaction, cause error) {
	if s.Active() != tx {
		return
	}
	log := s.logger.WithField("tx", tx.ID).WithField("cause", cause.Error())
	log.Info("scoped transaction failed, rolling back")
	if err := s.Rollback(); err != nil {
		log.WithError(err).Error("rollback after failure was incomplete")
	}
}
