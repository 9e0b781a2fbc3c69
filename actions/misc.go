package actions

import (
	"context"
	"log"

	"github.com/Comcast/rigging/core"
)

// Logf is how the log action writes.  Swappable for tests.
var Logf = log.Printf

func installMisc(reg *core.Registry) {
	reg.Register(&core.Handler{Name: "log", Validate: needFields("message"), Execute: logAction})
}

func logAction(ctx context.Context, a *core.Action, actx *core.ActionContext, deps *core.Deps) (interface{}, error) {
	msg, err := needString(ctx, a, actx, deps, "message")
	if err != nil {
		return nil, err
	}
	level, err := stringField(ctx, a, actx, deps, "level")
	if err != nil {
		return nil, err
	}
	if level == "" {
		level = "info"
	}
	Logf("[%s] %s", level, msg)
	return msg, nil
}
