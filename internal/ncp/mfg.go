package ncp

import (
	"github.com/danmuck/wpanctl/internal/protocol/schema"
	"github.com/danmuck/wpanctl/internal/protocol/spinel"
)

// MfgCapability passes factory test commands through to the NCP.
type MfgCapability interface {
	MfgCommand(cmd string, cb Callback)
}

// mfgPassthrough writes the command to the manufacturing stream and
// returns the NCP's text reply.
type mfgPassthrough struct {
	i *Instance
}

func (m mfgPassthrough) MfgCommand(cmd string, cb Callback) {
	m.i.StartTask(NewCommand("mfg").
		Add(spinel.SetUTF8(spinel.PropNestStreamMfg, cmd)).
		Reply(schema.TypeUTF8).
		Callback(cb).
		Task())
}
