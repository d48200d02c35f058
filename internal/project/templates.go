package project

import _ "embed"

// Starter file sets. New workspaces begin playable: the 2D starter is a
// classic-script canvas loop, the 3D starter exercises the import-map path
// with a module entry script.

//go:embed templates/2d_index.html
var template2DIndex string

//go:embed templates/2d_game.js
var template2DGame string

//go:embed templates/2d_style.css
var template2DStyle string

//go:embed templates/3d_index.html
var template3DIndex string

//go:embed templates/3d_main.js
var template3DMain string

// Template returns a fresh starter file set for the given workspace type.
// Callers own the returned slice.
func Template(workspaceType string) []FileEntry {
	switch workspaceType {
	case Type3D:
		return []FileEntry{
			{Path: "index.html", Content: template3DIndex},
			{Path: "main.js", Content: template3DMain},
		}
	default:
		return []FileEntry{
			{Path: "index.html", Content: template2DIndex},
			{Path: "game.js", Content: template2DGame},
			{Path: "style.css", Content: template2DStyle},
		}
	}
}
