package tools

import (
	"go.uber.org/zap"

	"github.com/zen-systems/ticketflow/pkg/events"
)

// Defaults holds the collaborators for the built-in tools.
type Defaults struct {
	Directory    Directory
	Publisher    events.Publisher
	RefundFaults *Faults
	EmailFaults  *Faults
	Logger       *zap.Logger
}

// RegisterDefaults registers the four built-in tools. A nil Directory
// uses the in-memory sample data.
func RegisterDefaults(r *Registry, d Defaults) {
	dir := d.Directory
	if dir == nil {
		dir = NewMemoryDirectory()
	}
	r.Register(NewDatabaseTool(dir))
	r.Register(NewPaymentTool(dir, d.RefundFaults))
	r.Register(NewEmailTool(d.Publisher, d.EmailFaults, d.Logger))
	r.Register(NewKnowledgeTool())
}
