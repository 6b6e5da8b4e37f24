// Package config persists and validates a HashStore store root's
// configuration document (§4.G, §6). The document is a plain YAML file
// at the root of the store, the way the teacher's pkg/database persists
// settings in a table: written once on first open, reloaded and checked
// for a mismatch on every subsequent open.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/DataONEorg/hashstore/pkg/checksum"
	"github.com/DataONEorg/hashstore/pkg/hserrors"
)

// FileName is the name of the config document at the store root.
const FileName = "hashstore.yaml"

const fileMode = 0o640

// ErrMismatch is returned by Init when a store root already has a config
// document and the caller's request differs from it in depth, width,
// algorithm, or metadata namespace (§4.G, I5).
var ErrMismatch = fmt.Errorf("config: %w", hserrors.ErrInvalidArgument)

// ErrRootNotEmpty is returned by Init when root is a pre-existing,
// non-empty directory that lacks a config document (§4.G "Refuse to
// initialize a store at a pre-existing non-empty root that lacks a
// config document").
var ErrRootNotEmpty = fmt.Errorf("config: %w", hserrors.ErrInvalidArgument)

// Document is the config document's on-disk shape.
type Document struct {
	StorePath              string `yaml:"storePath"`
	StoreDepth             int    `yaml:"storeDepth"`
	StoreWidth             int    `yaml:"storeWidth"`
	StoreAlgorithm         string `yaml:"storeAlgorithm"`
	StoreMetadataNamespace string `yaml:"storeMetadataNamespace"`
}

// Request is the configuration a caller asks to open (or create) a store
// root with.
type Request struct {
	Depth             int
	Width             int
	Algorithm         checksum.Algorithm
	MetadataNamespace string
}

// Init opens (creating if absent) the config document at root. On first
// open it writes a document built from req. On subsequent opens it loads
// the existing document and fails with ErrMismatch if any of depth,
// width, algorithm, or metadata namespace differs from req (I5).
//
// It also idempotently constructs the store's required subdirectories.
func Init(root string, req Request) (*Document, error) {
	if req.Depth < 1 || req.Width < 1 {
		return nil, fmt.Errorf("%w: depth and width must be >= 1", hserrors.ErrInvalidArgument)
	}

	algo, err := checksum.Parse(string(req.Algorithm))
	if err != nil {
		return nil, err
	}

	req.Algorithm = algo

	path := filepath.Join(root, FileName)

	existing, err := Load(root)
	switch {
	case err == nil:
		if mismatch := diff(existing, req); mismatch != "" {
			return nil, fmt.Errorf("%w: %s", ErrMismatch, mismatch)
		}

		return existing, ensureSubdirs(root)
	case err == hserrors.ErrNotFound:
		// fall through to create below.
	default:
		return nil, err
	}

	empty, err := isEmptyOrAbsent(root)
	if err != nil {
		return nil, err
	}

	if !empty {
		return nil, fmt.Errorf("%w: %s", ErrRootNotEmpty, root)
	}

	doc := &Document{
		StorePath:              root,
		StoreDepth:             req.Depth,
		StoreWidth:             req.Width,
		StoreAlgorithm:         string(req.Algorithm),
		StoreMetadataNamespace: req.MetadataNamespace,
	}

	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("%w: creating store root %q: %w", hserrors.ErrIOFailure, root, err)
	}

	b, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: marshaling config document: %w", hserrors.ErrIOFailure, err)
	}

	if err := os.WriteFile(path, b, fileMode); err != nil {
		return nil, fmt.Errorf("%w: writing config document %q: %w", hserrors.ErrIOFailure, path, err)
	}

	return doc, ensureSubdirs(root)
}

// Load reads and parses the config document at root, without validating
// it against a caller's request. Returns hserrors.ErrNotFound if no
// document exists.
func Load(root string) (*Document, error) {
	path := filepath.Join(root, FileName)

	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, hserrors.ErrNotFound
		}

		return nil, fmt.Errorf("%w: reading config document %q: %w", hserrors.ErrIOFailure, path, err)
	}

	var doc Document

	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("%w: parsing config document %q: %w", hserrors.ErrIOFailure, path, err)
	}

	return &doc, nil
}

func diff(existing *Document, req Request) string {
	switch {
	case existing.StoreDepth != req.Depth:
		return fmt.Sprintf("storeDepth %d != %d", existing.StoreDepth, req.Depth)
	case existing.StoreWidth != req.Width:
		return fmt.Sprintf("storeWidth %d != %d", existing.StoreWidth, req.Width)
	case existing.StoreAlgorithm != string(req.Algorithm):
		return fmt.Sprintf("storeAlgorithm %q != %q", existing.StoreAlgorithm, req.Algorithm)
	case existing.StoreMetadataNamespace != req.MetadataNamespace:
		return fmt.Sprintf("storeMetadataNamespace %q != %q", existing.StoreMetadataNamespace, req.MetadataNamespace)
	default:
		return ""
	}
}

func isEmptyOrAbsent(root string) (bool, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}

		return false, fmt.Errorf("%w: reading store root %q: %w", hserrors.ErrIOFailure, root, err)
	}

	return len(entries) == 0, nil
}

func ensureSubdirs(root string) error {
	dirs := []string{
		filepath.Join(root, "objects"),
		filepath.Join(root, "objects", "tmp"),
		filepath.Join(root, "metadata"),
		filepath.Join(root, "metadata", "tmp"),
		filepath.Join(root, "refs", "pids"),
		filepath.Join(root, "refs", "cids"),
		filepath.Join(root, "refs", "tmp"),
	}

	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o750); err != nil {
			return fmt.Errorf("%w: creating %q: %w", hserrors.ErrIOFailure, d, err)
		}
	}

	return nil
}
