package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNoTransaction is returned by Commit and Rollback on an empty stack.
var ErrNoTransaction = errors.New("no transaction in progress")

const rootTransaction = "ROOT"

// statementRunner runs a statement that returns no rows.
type statementRunner interface {
	Atomic(ctx context.Context, fn func(ctx context.Context) error) error
	exec(ctx context.Context, sql string) error
}

// TransactionStack nests transactions on one connection. The outermost level
// is a real transaction, every level inside it is a savepoint.
type TransactionStack struct {
	db        statementRunner
	beginSQL  string
	mu        sync.Mutex
	stack     []string
	savepoint int
}

func newTransactionStack(db statementRunner, beginSQL string) *TransactionStack {
	return &TransactionStack{db: db, beginSQL: beginSQL}
}

// Begin starts a transaction, or a savepoint inside the current one.
func (s *TransactionStack) Begin(ctx context.Context) error {
	return s.db.Atomic(ctx, func(ctx context.Context) error {
		s.mu.Lock()
		name, statement := rootTransaction, s.beginSQL
		if len(s.stack) > 0 {
			s.savepoint++
			name = fmt.Sprintf("SAVE_%d", s.savepoint)
			statement = "SAVEPOINT " + name
		}
		s.mu.Unlock()

		if err := s.db.exec(ctx, statement); err != nil {
			return err
		}
		s.push(name)
		return nil
	})
}

// Commit finishes the innermost level, releasing its savepoint or committing
// the outer transaction. A level that fails to commit stays on the stack for
// the caller to roll back.
func (s *TransactionStack) Commit(ctx context.Context) error {
	return s.db.Atomic(ctx, func(ctx context.Context) error {
		name, ok := s.peek()
		if !ok {
			return ErrNoTransaction
		}
		statement := "RELEASE SAVEPOINT " + name
		if name == rootTransaction {
			statement = "COMMIT"
		}
		if err := s.db.exec(ctx, statement); err != nil {
			return err
		}
		s.pop()
		return nil
	})
}

// Rollback undoes the innermost level. A savepoint is rolled back to and then
// released so it leaves the engine's stack as well. The level is popped even
// when the statements fail, and they run regardless of ctx cancellation.
func (s *TransactionStack) Rollback(ctx context.Context) error {
	name, ok := s.pop()
	if !ok {
		return ErrNoTransaction
	}
	return s.db.Atomic(context.WithoutCancel(ctx), func(ctx context.Context) error {
		if name == rootTransaction {
			return s.db.exec(ctx, "ROLLBACK")
		}
		if err := s.db.exec(ctx, "ROLLBACK TO SAVEPOINT "+name); err != nil {
			return err
		}
		return s.db.exec(ctx, "RELEASE SAVEPOINT "+name)
	})
}

// Depth is the number of open levels.
func (s *TransactionStack) Depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stack)
}

func (s *TransactionStack) push(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stack = append(s.stack, name)
}

func (s *TransactionStack) peek() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.stack) == 0 {
		return "", false
	}
	return s.stack[len(s.stack)-1], true
}

func (s *TransactionStack) pop() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.stack) == 0 {
		return "", false
	}
	top := s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
	if len(s.stack) == 0 {
		s.savepoint = 0
	}
	return top, true
}
