package packager

import (
	"encoding/json"
	"strings"

	"promptjudge/internal/evaluation/model"
)

const (
	// ManifestPath is the editor path of the package manifest.
	ManifestPath = "/package.json"
	// PublicPrefix marks static assets served from the project root.
	PublicPrefix = "/public/"
	// SourceDir receives every other editor file.
	SourceDir = "src"

	manifestName    = "sandbox-app"
	manifestVersion = "0.1.0"
)

// manifestScripts is what the build recipe invokes.
var manifestScripts = map[string]string{
	"start": "react-scripts start",
	"build": "react-scripts build",
	"test":  "react-scripts test",
	"eject": "react-scripts eject",
}

// NormalizePath maps an editor path to its build-tree path.
// Paths without a leading slash are treated as if they had one.
func NormalizePath(virtualPath string) string {
	if !strings.HasPrefix(virtualPath, "/") {
		virtualPath = "/" + virtualPath
	}
	if virtualPath == ManifestPath || strings.HasPrefix(virtualPath, PublicPrefix) {
		return strings.TrimPrefix(virtualPath, "/")
	}
	return SourceDir + virtualPath
}

// Normalize relocates editor files into the build tree and rewrites the manifest.
func Normalize(files map[string]model.FileContent) model.NormalizedFileSet {
	out := make(model.NormalizedFileSet, len(files))
	for path, content := range files {
		out[NormalizePath(path)] = content.Code
	}
	manifest := NormalizePath(ManifestPath)
	if content, ok := out[manifest]; ok {
		out[manifest] = RewriteManifest(content)
	}
	return out
}

// RewriteManifest pins name, version, private and scripts to the values the build image expects.
// Content that is not a JSON object is returned unchanged.
func RewriteManifest(content string) string {
	var manifest map[string]interface{}
	if err := json.Unmarshal([]byte(content), &manifest); err != nil || manifest == nil {
		return content
	}
	manifest["name"] = manifestName
	manifest["version"] = manifestVersion
	manifest["private"] = true
	scripts := make(map[string]interface{}, len(manifestScripts))
	for k, v := range manifestScripts {
		scripts[k] = v
	}
	manifest["scripts"] = scripts

	rewritten, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return content
	}
	return string(rewritten) + "\n"
}
