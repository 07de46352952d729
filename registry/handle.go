package registry

// BlockHandle identifies a resolved block.
type BlockHandle struct {
	Module  string
	Version string
	Name    string
}

func (h BlockHandle) String() string { return handleString(h.Module, h.Version, h.Name) }

// GraphHandle identifies a resolved graph.
type GraphHandle struct {
	Module  string
	Version string
	Name    string
}

func (h GraphHandle) String() string { return handleString(h.Module, h.Version, h.Name) }

// MacroHandle identifies a resolved macro.
type MacroHandle struct {
	Module  string
	Version string
	Name    string
}

func (h MacroHandle) String() string { return handleString(h.Module, h.Version, h.Name) }

func handleString(module, version, name string) string {
	return module + "@" + version + ":" + name
}
