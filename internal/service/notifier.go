package service

import (
	"github.com/DukeRupert/cropbatch/internal/domain"
	"github.com/google/uuid"
)

// Notifier delivers user-visible notices for a session. Delivery is best
// effort; a notice with no listener is dropped.
type Notifier interface {
	Notify(sessionID uuid.UUID, notice domain.Notice)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(sessionID uuid.UUID, notice domain.Notice)

func (f NotifierFunc) Notify(sessionID uuid.UUID, notice domain.Notice) {
	f(sessionID, notice)
}

// NopNotifier discards every notice.
var NopNotifier Notifier = NotifierFunc(func(uuid.UUID, domain.Notice) {})
