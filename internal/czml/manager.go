// Package czml manages the CZML overlay layers of a visualization set:
// loading the documents, remembering which layers are shown, and describing
// each layer for the viewer's layer-toggle panel.
package czml

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mahyar-osn/vis-tools/internal/metrics"
	"github.com/mahyar-osn/vis-tools/internal/visset"
)

// ErrUnknownLayer is returned when a layer key is not part of the set.
var ErrUnknownLayer = errors.New("unknown layer")

// LoadError reports the first layer that failed to load.
type LoadError struct {
	Key string
	URL string
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("could not load CZML layer %s: %v", e.URL, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Config holds layer manager settings.
type Config struct {
	LegendDir     string // directory holding <legend_symbol>.png files
	ControlOffset int    // toggle controls already on the panel, used to number tooltips
	Concurrency   int    // max parallel loads; <= 0 means unlimited
}

// Legend describes a layer's legend symbol.
type Legend struct {
	Symbol string `json:"symbol"`
	Color  string `json:"color"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Layer is the panel description of one overlay.
type Layer struct {
	Key          string  `json:"key"`
	FriendlyName string  `json:"friendly_name"`
	Tooltip      string  `json:"tooltip"`
	URL          string  `json:"url"`
	Show         bool    `json:"show"`
	Packets      int     `json:"packets"`
	Legend       *Legend `json:"legend,omitempty"`
}

// Manager owns the loaded CZML documents of one set and their visibility.
// Safe for concurrent use.
type Manager struct {
	mu      sync.RWMutex
	set     *visset.VisSet
	docs    map[string]*Document
	legends map[string]image.Point
	loaded  bool

	fetcher *Fetcher
	config  Config
	logger  *slog.Logger
}

// NewManager creates a Manager for the links of set.
func NewManager(set *visset.VisSet, fetcher *Fetcher, config Config, logger *slog.Logger) *Manager {
	return &Manager{
		set:     set,
		docs:    make(map[string]*Document),
		legends: make(map[string]image.Point),
		fetcher: fetcher,
		config:  config,
		logger:  logger,
	}
}

// Load fetches every CZML layer of the set in parallel, along with legend
// symbols. The first layer failure cancels the rest and is returned as a
// *LoadError; a missing legend symbol only drops that layer's legend.
func (m *Manager) Load(ctx context.Context) error {
	links := m.set.Links.CZML
	keys := sortedKeys(links)

	docs := make([]*Document, len(keys))
	dims := make([]image.Point, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	if m.config.Concurrency > 0 {
		g.SetLimit(m.config.Concurrency)
	}

	for i, key := range keys {
		link := links[key]
		g.Go(func() error {
			data, err := m.fetcher.Fetch(gctx, link.URL)
			if err == nil {
				docs[i], err = ParseDocument(data)
			}
			if err != nil {
				metrics.IncLayerLoads("error")
				return &LoadError{Key: key, URL: link.URL, Err: err}
			}
			metrics.IncLayerLoads("ok")
			return nil
		})

		if link.LegendSymbol != "" {
			g.Go(func() error {
				size, err := legendSize(m.config.LegendDir, link.LegendSymbol)
				if err != nil {
					m.logger.Warn("legend symbol unavailable",
						"component", "czml",
						"layer", key,
						"symbol", link.LegendSymbol,
						"error", err,
					)
					return nil
				}
				dims[i] = size
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			m.logger.Error("could not load czml layer", "component", "czml", "layer", le.Key, "url", le.URL, "error", le.Err)
		}
		return err
	}

	m.mu.Lock()
	for i, key := range keys {
		m.docs[key] = docs[i]
		if dims[i] != (image.Point{}) {
			m.legends[key] = dims[i]
		}
	}
	m.loaded = true
	m.mu.Unlock()

	m.publishVisible()
	m.logger.Info("czml layers loaded", "component", "czml", "count", len(keys))
	return nil
}

// Loaded reports whether Load has completed successfully.
func (m *Manager) Loaded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loaded
}

// Layers describes the loaded layers, sorted by key.
func (m *Manager) Layers() []Layer {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := sortedKeys(m.set.Links.CZML)
	layers := make([]Layer, 0, len(keys))
	for i, key := range keys {
		doc, ok := m.docs[key]
		if !ok {
			continue
		}
		link := m.set.Links.CZML[key]
		l := Layer{
			Key:          key,
			FriendlyName: link.FriendlyName,
			Tooltip:      fmt.Sprintf("Toggle %s (%d)", strings.ToLower(link.FriendlyName), m.config.ControlOffset+i+1),
			URL:          link.URL,
			Show:         link.Show,
			Packets:      len(doc.Packets),
		}
		if size, ok := m.legends[key]; ok && link.HasLegend() {
			l.Legend = &Legend{
				Symbol: link.LegendSymbol,
				Color:  link.LegendColor,
				Width:  size.X,
				Height: size.Y,
			}
		}
		layers = append(layers, l)
	}
	return layers
}

// State returns the visibility of every loaded layer.
func (m *Manager) State() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state := make(map[string]bool, len(m.docs))
	for key := range m.docs {
		state[key] = m.set.Links.CZML[key].Show
	}
	return state
}

// SetState applies a visibility map produced by State. Keys that are not
// loaded layers are ignored. Returns the number of layers updated.
func (m *Manager) SetState(state map[string]bool) int {
	m.mu.Lock()
	var applied int
	for key, show := range state {
		if _, ok := m.docs[key]; !ok {
			continue
		}
		m.set.Links.CZML[key].Show = show
		applied++
	}
	m.mu.Unlock()

	m.publishVisible()
	return applied
}

// SetShow toggles a single layer.
func (m *Manager) SetShow(key string, show bool) error {
	m.mu.Lock()
	if _, ok := m.docs[key]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownLayer, key)
	}
	m.set.Links.CZML[key].Show = show
	m.mu.Unlock()

	m.publishVisible()
	m.logger.Debug("layer visibility changed", "component", "czml", "layer", key, "show", show)
	return nil
}

func (m *Manager) publishVisible() {
	m.mu.RLock()
	var n int
	for key := range m.docs {
		if m.set.Links.CZML[key].Show {
			n++
		}
	}
	m.mu.RUnlock()
	metrics.SetLayersVisible(n)
}

func sortedKeys(links map[string]*visset.CZMLLink) []string {
	keys := make([]string, 0, len(links))
	for k := range links {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
