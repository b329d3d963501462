// Package catalog loads labware and pipette definitions from a blob store and
// assembles the invariant context of a protocol from its load declarations.
//
// Blob layout:
//
//	labware/<namespace>/<loadName>/<version>.json
//	pipettes/<name>.json
//
// Pipette names missing from the store fall back to the built-in table.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"deckcore/internal/blob"
	"deckcore/pkg/domain"
)

const (
	labwarePrefix  = "labware/"
	pipettePrefix  = "pipettes/"
	jsonSuffix     = ".json"
	jsonMediaType  = "application/json"
	uriPartCount   = 3
	uriPartsFormat = "<namespace>/<loadName>/<version>"
)

// Catalog resolves definitions through a blob store, caching labware
// definitions after the first read.
type Catalog struct {
	store blob.Store
	log   *zap.Logger

	mu      sync.RWMutex
	labware map[string]domain.LabwareDefinition
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithLogger sets the logger used for fallbacks and cache activity.
func WithLogger(l *zap.Logger) Option {
	return func(c *Catalog) {
		if l != nil {
			c.log = l
		}
	}
}

// New constructs a catalog over store.
func New(store blob.Store, opts ...Option) *Catalog {
	c := &Catalog{store: store, log: zap.NewNop(), labware: make(map[string]domain.LabwareDefinition)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LabwareKey maps a definition URI to its blob key.
func LabwareKey(uri string) (string, error) {
	parts := strings.Split(uri, "/")
	if len(parts) != uriPartCount {
		return "", fmt.Errorf("labware uri %q: want %s", uri, uriPartsFormat)
	}
	for _, p := range parts {
		if p == "" || p == "." || p == ".." {
			return "", fmt.Errorf("labware uri %q: want %s", uri, uriPartsFormat)
		}
	}
	return labwarePrefix + uri + jsonSuffix, nil
}

// PipetteKey maps a pipette model name to its blob key.
func PipetteKey(name string) string {
	return pipettePrefix + name + jsonSuffix
}

func (c *Catalog) readJSON(ctx context.Context, key string, v any) error {
	_, rc, err := c.store.Get(ctx, key)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (c *Catalog) writeJSON(ctx context.Context, key string, v any, overwrite bool) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if _, err := c.store.Put(ctx, key, bytes.NewReader(data), blob.PutOptions{ContentType: jsonMediaType, Overwrite: overwrite}); err != nil {
		return err
	}
	return nil
}

// Labware returns the definition for uri.
func (c *Catalog) Labware(ctx context.Context, uri string) (domain.LabwareDefinition, error) {
	c.mu.RLock()
	def, ok := c.labware[uri]
	c.mu.RUnlock()
	if ok {
		return def, nil
	}
	key, err := LabwareKey(uri)
	if err != nil {
		return domain.LabwareDefinition{}, err
	}
	if err := c.readJSON(ctx, key, &def); err != nil {
		return domain.LabwareDefinition{}, fmt.Errorf("labware definition %s: %w", uri, err)
	}
	if def.URI == "" {
		def.URI = uri
	}
	if def.URI != uri {
		return domain.LabwareDefinition{}, fmt.Errorf("labware definition at %s declares uri %s", key, def.URI)
	}
	c.mu.Lock()
	c.labware[uri] = def
	c.mu.Unlock()
	c.log.Debug("labware definition loaded", zap.String("uri", uri), zap.Int("wells", len(def.Wells)))
	return def, nil
}

// PutLabware stores a definition under the key derived from its URI.
func (c *Catalog) PutLabware(ctx context.Context, def domain.LabwareDefinition, overwrite bool) error {
	key, err := LabwareKey(def.URI)
	if err != nil {
		return err
	}
	if err := c.writeJSON(ctx, key, def, overwrite); err != nil {
		return fmt.Errorf("store labware %s: %w", def.URI, err)
	}
	c.mu.Lock()
	delete(c.labware, def.URI)
	c.mu.Unlock()
	return nil
}

// ListLabware returns the URIs of stored labware definitions.
func (c *Catalog) ListLabware(ctx context.Context) ([]string, error) {
	infos, err := c.store.List(ctx, labwarePrefix)
	if err != nil {
		return nil, fmt.Errorf("list labware: %w", err)
	}
	uris := make([]string, 0, len(infos))
	for _, info := range infos {
		if !strings.HasSuffix(info.Key, jsonSuffix) {
			continue
		}
		uris = append(uris, strings.TrimSuffix(strings.TrimPrefix(info.Key, labwarePrefix), jsonSuffix))
	}
	sort.Strings(uris)
	return uris, nil
}

// Pipette returns the spec for a model name, preferring the blob store.
func (c *Catalog) Pipette(ctx context.Context, name string) (domain.PipetteSpec, error) {
	var spec domain.PipetteSpec
	err := c.readJSON(ctx, PipetteKey(name), &spec)
	switch {
	case err == nil:
		if spec.Name == "" {
			spec.Name = name
		}
		return spec, nil
	case errors.Is(err, blob.ErrNotFound):
		if builtin, ok := domain.BuiltinPipetteSpec(name); ok {
			c.log.Debug("pipette spec from builtin table", zap.String("name", name))
			return builtin, nil
		}
		return domain.PipetteSpec{}, fmt.Errorf("pipette spec %s: %w", name, err)
	default:
		return domain.PipetteSpec{}, fmt.Errorf("pipette spec %s: %w", name, err)
	}
}

// PutPipette stores a pipette spec.
func (c *Catalog) PutPipette(ctx context.Context, spec domain.PipetteSpec, overwrite bool) error {
	if spec.Name == "" {
		return fmt.Errorf("pipette spec requires a name")
	}
	if spec.Channels <= 0 {
		return fmt.Errorf("pipette spec %s: channels must be positive", spec.Name)
	}
	if err := c.writeJSON(ctx, PipetteKey(spec.Name), spec, overwrite); err != nil {
		return fmt.Errorf("store pipette %s: %w", spec.Name, err)
	}
	return nil
}
