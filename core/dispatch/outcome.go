package dispatch

import "github.com/cfgdb/cfgdb/core/command"

// Outcome is the tagged result of a version handler. Terminal handlers return
// Applied after their storage transaction commits; transitional handlers
// return Upgraded with the command rewritten to a newer wire version, and the
// table loops until a terminal handler applies.
type Outcome struct {
	next *command.Command
}

// Applied marks the command's effect as durably applied.
func Applied() Outcome {
	return Outcome{}
}

// Upgraded hands a rewritten command back for re-dispatch. The rewritten
// command must keep the same name and carry a strictly higher version; the
// table enforces both.
func Upgraded(next command.Command) Outcome {
	return Outcome{next: &next}
}

// Upgrade returns the rewritten command, if any.
func (o Outcome) Upgrade() (command.Command, bool) {
	if o.next == nil {
		return command.Command{}, false
	}
	return *o.next, true
}
