// Package feedback stores free-text feedback from signed-in users.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"courtboard/internal/clock"
	"courtboard/internal/identity"
	"courtboard/internal/kv"
)

// Collection is the container of feedback entries: Feedback/{id}.
const Collection = "Feedback"

// MaxLength caps one entry, in runes.
const MaxLength = 2000

// ErrEmpty is returned for blank feedback.
var ErrEmpty = errors.New("feedback: empty")

type entry struct {
	Feedback  string `json:"feedback"`
	Timestamp int64  `json:"timestamp"`
}

// Service writes feedback entries.
type Service struct {
	store  kv.Store
	clock  clock.Clock
	logger *zap.Logger
}

// NewService creates a feedback writer. clk defaults to the real clock.
func NewService(store kv.Store, clk clock.Clock, logger *zap.Logger) *Service {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, clock: clk, logger: logger}
}

// Submit stores text under a fresh id and returns the id. The caller must
// be signed in.
func (s *Service) Submit(ctx context.Context, text string) (string, error) {
	uid, err := identity.UserID(ctx)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmpty
	}
	if utf8.RuneCountInString(text) > MaxLength {
		return "", fmt.Errorf("feedback: longer than %d characters", MaxLength)
	}
	id := uuid.NewString()
	p, err := kv.Join(Collection, id)
	if err != nil {
		return "", err
	}
	if err := s.store.Set(ctx, p, entry{Feedback: text, Timestamp: s.clock.Now().Unix()}); err != nil {
		return "", fmt.Errorf("submit feedback: %w", err)
	}
	s.logger.Info("feedback received", zap.String("id", id), zap.String("user_id", uid))
	return id, nil
}
