package onesignal

import (
	"log"

	json "github.com/goccy/go-json"

	"github.com/coachpo/pushbridge/internal/bridge"
	"github.com/coachpo/pushbridge/internal/normalize"
	"github.com/coachpo/pushbridge/internal/promise"
)

// OutcomeEvent is the native acknowledgement of a sent outcome.
type OutcomeEvent map[string]any

func decodeOutcome(raw json.RawMessage) (OutcomeEvent, error) {
	var ev OutcomeEvent
	if len(raw) == 0 {
		return ev, nil
	}
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// Session sends outcomes attributed to the current session.
type Session struct {
	inv    bridge.Invoker
	logger *log.Logger
}

// AddOutcome sends an outcome. handler, when set, receives the acknowledgement.
func (s *Session) AddOutcome(name string, handler func(OutcomeEvent)) {
	promise.Notify(s.inv, bridge.Native(bridge.MethodAddOutcome), []any{name}, decodeOutcome, handler, s.logger)
}

// AddUniqueOutcome sends an outcome at most once per notification.
func (s *Session) AddUniqueOutcome(name string, handler func(OutcomeEvent)) {
	promise.Notify(s.inv, bridge.Native(bridge.MethodAddUniqueOutcome), []any{name}, decodeOutcome, handler, s.logger)
}

// AddOutcomeWithValue sends an outcome carrying a numeric value. value may be
// a number or a numeric string; anything else is logged and sent as null.
func (s *Session) AddOutcomeWithValue(name string, value any, handler func(OutcomeEvent)) {
	args := []any{name, normalize.OutcomeValue(value, s.logger)}
	promise.Notify(s.inv, bridge.Native(bridge.MethodAddOutcomeWithValue), args, decodeOutcome, handler, s.logger)
}
