package fs

import (
	"github.com/arcaneos/archon-runtime/internal/tool"
)

// RegisterAll wires the filesystem tools into the registry behind the given
// permission gate.
func RegisterAll(registry *tool.Registry, gate tool.Gate) error {
	h := &handlers{gate: gate}

	specs := []tool.Spec{
		{
			Name:    "archon.fs.read",
			Help:    "Read a file. Args: path. Returns the file content and its size in bytes.",
			Handler: h.read,
		},
		{
			Name:    "archon.fs.write",
			Help:    "Write a file, creating parent directories as needed. Args: path, content, overwrite (optional, default true; when false an existing file aborts the call). Returns bytes written.",
			Handler: h.write,
		},
		{
			Name:    "archon.fs.append",
			Help:    "Append to a file, creating it if absent. Args: path, content. Returns bytes written.",
			Handler: h.append,
		},
		{
			Name:    "archon.fs.edit",
			Help:    "Replace every literal occurrence of a text in a file. Args: path, find, replace. Zero matches is an error. Returns the replacement count.",
			Handler: h.edit,
		},
		{
			Name:    "archon.fs.delete",
			Help:    "Delete a file. Args: path, confirm (must be true). Irreversible.",
			Handler: h.delete,
		},
		{
			Name:    "archon.fs.find",
			Help:    "Recursively find files by glob pattern. Args: root, pattern. Patterns without a slash match file names; patterns with a slash match paths relative to root. Dependency and VCS directories are skipped. Returns relative paths and a count.",
			Handler: h.find,
		},
	}

	for _, spec := range specs {
		if err := registry.Register(spec); err != nil {
			return err
		}
	}
	return nil
}
