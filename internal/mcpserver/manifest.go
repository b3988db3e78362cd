package mcpserver

import (
	"encoding/json"
)

const (
	manifestSchema = "https://static.modelcontextprotocol.io/schemas/2025-10-17/server.schema.json"
	registryName   = "io.github.alok/autoflake"
	image          = "ghcr.io/alok/autoflake"

	// workdir is where the container sees the caller's project. The
	// check_paths tool resolves relative paths and pyproject.toml from here.
	workdir = "/workspace"
)

// Manifest is the server.json document read by the MCP registry.
type Manifest struct {
	Schema      string      `json:"$schema"`
	Name        string      `json:"name"`
	Title       string      `json:"title,omitempty"`
	Description string      `json:"description"`
	Version     string      `json:"version"`
	Repository  *Repository `json:"repository,omitempty"`
	Packages    []Package   `json:"packages,omitempty"`
}

type Repository struct {
	URL    string `json:"url"`
	Source string `json:"source"`
}

// Package is one installable artifact that serves the tools.
// RuntimeArguments go to the runtime (docker run), PackageArguments to the
// autoflake binary inside it.
type Package struct {
	RegistryType     string     `json:"registryType"`
	Identifier       string     `json:"identifier"`
	RuntimeHint      string     `json:"runtimeHint,omitempty"`
	RuntimeArguments []Argument `json:"runtimeArguments,omitempty"`
	PackageArguments []Argument `json:"packageArguments,omitempty"`
	Transport        Transport  `json:"transport"`
}

// Argument is a positional or named command-line argument. A "{name}"
// placeholder in Value is filled by the client from Variables.
type Argument struct {
	Type        string              `json:"type"`
	Name        string              `json:"name,omitempty"`
	Value       string              `json:"value,omitempty"`
	Description string              `json:"description,omitempty"`
	Variables   map[string]Variable `json:"variables,omitempty"`
}

type Variable struct {
	Description string `json:"description"`
	IsRequired  bool   `json:"isRequired,omitempty"`
}

type Transport struct {
	Type string `json:"type"`
}

// GenerateManifest renders server.json for the MCP registry. A missing
// version renders as 0.0.0.
func GenerateManifest(version string) ([]byte, error) {
	if version == "" {
		version = "0.0.0"
	}

	m := Manifest{
		Schema:      manifestSchema,
		Name:        registryName,
		Title:       "autoflake",
		Description: "Removes unused imports and unused variables from Python source",
		Version:     version,
		Repository: &Repository{
			URL:    "https://github.com/Alok/autoflake",
			Source: "github",
		},
		Packages: []Package{imagePackage(version)},
	}
	return json.MarshalIndent(m, "", "  ")
}

// imagePackage runs "autoflake mcp" over stdio with the project mounted
// at workdir. Tools only read files, so the mount is read-only.
func imagePackage(version string) Package {
	return Package{
		RegistryType: "oci",
		Identifier:   image + ":" + version,
		RuntimeHint:  "docker",
		RuntimeArguments: []Argument{
			{
				Type:        "named",
				Name:        "--volume",
				Value:       "{project}:" + workdir + ":ro",
				Description: "Python project to check",
				Variables: map[string]Variable{
					"project": {Description: "Absolute path of the project root", IsRequired: true},
				},
			},
			{Type: "named", Name: "--workdir", Value: workdir},
		},
		PackageArguments: []Argument{
			{Type: "positional", Value: "mcp"},
		},
		Transport: Transport{Type: "stdio"},
	}
}
