package engine

import "github.com/ggoodman/mcp-engine-go/mcp"

// State is the server's initialization state: Uninitialized or Initialized.
type State interface {
	isState()
}

// Uninitialized is the state a server starts in.
type Uninitialized struct {
	Capabilities   mcp.ServerCapabilities
	Implementation mcp.ImplementationInfo
}

// Initialized is reached once, through a successful initialize request, and
// is never left.
type Initialized struct {
	Capabilities    mcp.ServerCapabilities
	Implementation  mcp.ImplementationInfo
	ProtocolVersion string
}

func (Uninitialized) isState() {}
func (Initialized) isState()   {}
