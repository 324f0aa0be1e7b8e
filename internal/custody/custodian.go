// Package custody tracks which inputs produced which outputs across build
// runs and decides, per candidate step, whether previously computed outputs
// are still valid or must be regenerated.
package custody

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"

	lru "github.com/hashicorp/golang-lru/v2"

	"git.home.luguber.info/inful/sitepress/internal/logfields"
	"git.home.luguber.info/inful/sitepress/internal/util/sets"
	"git.home.luguber.info/inful/sitepress/internal/version"
)

// EntryTypePath is the built-in entry type for filesystem resources.
const EntryTypePath = "path"

// checksumCacheSize bounds the per-run checksum LRU.
const checksumCacheSize = 4096

// versionParameter records the tool version in run parameters so an upgrade
// invalidates every cached decision.
const versionParameter = "sitepress_version"

// metaRecord is the serializable part of an Entry (everything but the key).
type metaRecord struct {
	Type string
	Meta map[string]any
}

// graph maps output keys to their recorded inputs; each input carries the
// full sibling list of outputs produced alongside by the same step run.
type graph map[string]map[string][]string

// Source identifies a step input for recording: either a filesystem path to
// be fingerprinted, or a pre-built Entry used as-is (steps that track
// non-filesystem resources construct their own entries).
type Source struct {
	path  string
	entry *Entry
}

// PathSource wraps a filesystem path as a Source.
func PathSource(path string) Source { return Source{path: path} }

// EntrySource wraps a pre-built Entry as a Source.
func EntrySource(entry Entry) Source { return Source{entry: &entry} }

func (s Source) String() string {
	if s.entry != nil {
		return s.entry.String()
	}
	return s.path
}

// Decision is the outcome of a staleness query. Reason is a short diagnostic
// string for the operator log, not a structured value to branch on.
type Decision struct {
	Stale  bool
	Reason string
}

// Custodian manages custody info and intelligent rebuilds for one run. It is
// not safe for concurrent use; all graph reads and writes for a run happen
// from a single control flow.
type Custodian struct {
	roots    Roots
	checkers checkerRegistry

	parameters      map[string]any
	priorParameters map[string]any
	staleParameters bool

	info map[string]string

	graph      graph
	priorGraph graph

	meta      map[string]metaRecord
	priorMeta map[string]metaRecord

	sums   *lru.Cache[sumCacheKey, string]
	logger *slog.Logger
}

// New creates a Custodian bound to the given roots. Parameters are recorded
// with the persisted state; any difference from the prior run's parameters
// invalidates every cached decision. Until prior state is loaded, parameters
// are considered stale (first runs rebuild everything).
func New(roots Roots, parameters map[string]any) (*Custodian, error) {
	if err := roots.Validate(); err != nil {
		return nil, err
	}
	sums, err := lru.New[sumCacheKey, string](checksumCacheSize)
	if err != nil {
		return nil, fmt.Errorf("checksum cache: %w", err)
	}

	params := map[string]any{versionParameter: version.Version}
	maps.Copy(params, parameters)

	c := &Custodian{
		roots:           roots,
		checkers:        checkerRegistry{},
		parameters:      params,
		staleParameters: true,
		info:            map[string]string{},
		graph:           graph{},
		priorGraph:      graph{},
		meta:            map[string]metaRecord{},
		priorMeta:       map[string]metaRecord{},
		sums:            sums,
		logger:          slog.Default(),
	}
	c.RegisterChecker(EntryTypePath, c.checkPath, true)
	return c, nil
}

// WithLogger sets a custom logger.
func (c *Custodian) WithLogger(logger *slog.Logger) *Custodian {
	c.logger = logger
	return c
}

// Roots returns the root configuration the Custodian was built with.
func (c *Custodian) Roots() Roots { return c.roots }

// StaleParameters reports whether run parameters changed since the prior run.
func (c *Custodian) StaleParameters() bool { return c.staleParameters }

// SetInfo records free-form run context persisted alongside the graph.
func (c *Custodian) SetInfo(key, value string) {
	c.info[key] = value
}

// EntryFromPath creates a path Entry with a checksum plus stat modified time
// and size. The default checker only compares checksums, but stat costs
// little and the extra fields let a user switch to mtime testing by
// registering a replacement checker.
func (c *Custodian) EntryFromPath(path string) (Entry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Entry{}, fmt.Errorf("stat %s: %w", path, err)
	}
	sum, err := c.checksum(path)
	if err != nil {
		return Entry{}, err
	}
	meta := map[string]any{
		FieldSHA1:  sum,
		FieldMTime: info.ModTime().UnixNano(),
		FieldSize:  info.Size(),
	}
	return NewEntry(EntryTypePath, c.roots.Genericize(path), meta), nil
}

// ensureEntry resolves a Source to an Entry, fingerprinting paths and
// passing pre-built entries through.
func (c *Custodian) ensureEntry(s Source) (Entry, error) {
	if s.entry != nil {
		return *s.entry, nil
	}
	return c.EntryFromPath(s.path)
}

// updateMeta stores an Entry in serializable form.
func (c *Custodian) updateMeta(entry Entry) {
	c.meta[entry.Key] = metaRecord{Type: entry.Type, Meta: entry.Meta}
}

// RecordStep marks a step as actually run: every source and output gets a
// metadata entry, and every output key records, per source key, the full
// sibling list of output keys produced by this invocation.
func (c *Custodian) RecordStep(sources []Source, outputs []string, reason string) error {
	c.logStep(sources, outputs, true, reason)

	keys := make([]string, 0, len(outputs))
	for _, out := range outputs {
		entry, err := c.EntryFromPath(out)
		if err != nil {
			return err
		}
		keys = append(keys, entry.Key)
		c.updateMeta(entry)
	}

	for _, src := range sources {
		entry, err := c.ensureEntry(src)
		if err != nil {
			return err
		}
		c.updateMeta(entry)
		for _, outKey := range keys {
			inputs := c.graph[outKey]
			if inputs == nil {
				inputs = map[string][]string{}
				c.graph[outKey] = inputs
			}
			inputs[entry.Key] = keys
		}
	}
	return nil
}

// RecordSkip marks a step as skipped: the outputs recorded for this source in
// the prior run are carried forward into the current graph and metadata, and
// their reconstructed absolute paths are returned so the driver can continue
// the pipeline as if the step had run.
func (c *Custodian) RecordSkip(source string, outputs []string) ([]string, error) {
	if len(outputs) == 0 {
		return nil, fmt.Errorf("record skip for %s: no outputs declared", source)
	}
	srcEntry, err := c.EntryFromPath(source)
	if err != nil {
		return nil, err
	}
	firstKey := c.roots.Genericize(outputs[0])
	inputs, ok := c.priorGraph[firstKey]
	if !ok {
		return nil, fmt.Errorf("record skip: no prior custody record for output %s", firstKey)
	}
	siblings, ok := inputs[srcEntry.Key]
	if !ok {
		return nil, fmt.Errorf("record skip: prior record for %s does not list source %s", firstKey, srcEntry.Key)
	}

	priorOutputs := make([]string, 0, len(siblings))
	for _, key := range siblings {
		abs, err := c.roots.Degenericize(key)
		if err != nil {
			return nil, err
		}
		priorOutputs = append(priorOutputs, abs)
	}

	c.logStep([]Source{PathSource(source)}, priorOutputs, false, "")

	c.updateMeta(srcEntry)
	for _, out := range priorOutputs {
		entry, err := c.EntryFromPath(out)
		if err != nil {
			return nil, err
		}
		c.updateMeta(entry)

		prior, ok := c.priorGraph[entry.Key]
		if !ok {
			return nil, fmt.Errorf("record skip: sibling output %s missing from prior graph", entry.Key)
		}
		current := c.graph[entry.Key]
		if current == nil {
			current = map[string][]string{}
			c.graph[entry.Key] = current
		}
		maps.Copy(current, prior)

		// Inputs copied from the prior graph need metadata too, or the
		// current state would violate the graph/meta invariant.
		for inKey := range prior {
			if _, ok := c.meta[inKey]; ok {
				continue
			}
			rec, ok := c.priorMeta[inKey]
			if !ok {
				return nil, fmt.Errorf("record skip: prior metadata missing for input %s", inKey)
			}
			c.meta[inKey] = rec
		}
	}
	return priorOutputs, nil
}

// RefreshNeeded determines whether reprocessing is required for a candidate
// (source, declared outputs) pair. The returned error is reserved for fatal
// conditions (missing checkers, unreadable files); a definitive fresh/stale
// answer always comes back as a Decision.
func (c *Custodian) RefreshNeeded(source string, outputs []string) (Decision, error) {
	if c.staleParameters {
		return Decision{Stale: true, Reason: "stale parameters"}, nil
	}
	for _, out := range outputs {
		if _, err := os.Stat(out); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return Decision{Stale: true, Reason: fmt.Sprintf("missing output (%s)", out)}, nil
			}
			return Decision{}, fmt.Errorf("stat output %s: %w", out, err)
		}
	}

	upstreams := c.findUpstream(outputs)
	srcKey := c.roots.Genericize(source)
	if !upstreams.Has(srcKey) {
		return Decision{Stale: true, Reason: fmt.Sprintf("missing upstream record (%s)", source)}, nil
	}

	// Every historical source of these outputs is revalidated, not just the
	// queried one: with fan-in, a sibling input may have changed even though
	// this source did not.
	for _, key := range sets.Sorted(upstreams) {
		fresh, err := c.checkPrior(key)
		if err != nil {
			return Decision{}, err
		}
		if !fresh {
			return Decision{Stale: true, Reason: fmt.Sprintf("stale upstream (%s)", key)}, nil
		}
	}

	// Outputs recorded as produced together with these ones are revalidated
	// too: with fan-out, one of several simultaneously produced files may
	// have been deleted or corrupted out-of-band.
	for _, key := range c.downstreamOf(srcKey, outputs) {
		fresh, err := c.checkPrior(key)
		if err != nil {
			return Decision{}, err
		}
		if !fresh {
			return Decision{Stale: true, Reason: fmt.Sprintf("stale downstream (%s)", key)}, nil
		}
	}

	return Decision{Stale: false, Reason: "up to date"}, nil
}

// findUpstream collects all input keys one step upstream of any of the given
// paths, from historical data only.
func (c *Custodian) findUpstream(paths []string) sets.Set[string] {
	ups := sets.New[string]()
	for _, p := range paths {
		for inKey := range c.priorGraph[c.roots.Genericize(p)] {
			ups.Add(inKey)
		}
	}
	return ups
}

// downstreamOf returns the sibling output keys recorded in the prior run for
// this source and output set, in their recorded order.
func (c *Custodian) downstreamOf(srcKey string, outputs []string) []string {
	if len(outputs) == 0 {
		return nil
	}
	return c.priorGraph[c.roots.Genericize(outputs[0])][srcKey]
}

// checkPrior checks whether the resource behind a key still matches its
// historical fingerprint. Unknown keys are simply not fresh; an unknown
// entry type is a fatal configuration error.
func (c *Custodian) checkPrior(key string) (bool, error) {
	rec, ok := c.priorMeta[key]
	if !ok {
		c.logger.Debug("No prior fingerprint", logfields.Key(key))
		return false, nil
	}
	return c.checkers.check(Entry{Type: rec.Type, Key: key, Meta: rec.Meta})
}

// AllPaths returns every output key in the current graph as an absolute
// path, sorted. Used for post-run orphan cleanup.
func (c *Custodian) AllPaths() ([]string, error) {
	keys := sets.New[string]()
	for key := range c.graph {
		keys.Add(key)
	}
	out := make([]string, 0, len(keys))
	for _, key := range sets.Sorted(keys) {
		abs, err := c.roots.Degenericize(key)
		if err != nil {
			return nil, err
		}
		out = append(out, abs)
	}
	return out, nil
}

// logStep logs custody information for a step according to its staleness.
func (c *Custodian) logStep(sources []Source, outputs []string, stale bool, reason string) {
	src := ""
	if len(sources) == 1 {
		src = sources[0].String()
	} else {
		names := make([]string, len(sources))
		for i, s := range sources {
			names[i] = s.String()
		}
		src = fmt.Sprintf("{%d sources: %v}", len(sources), names)
	}
	if stale {
		c.logger.Info("Rebuilding",
			logfields.Reason(reason),
			logfields.Source(src),
			logfields.Outputs(outputs))
	} else {
		c.logger.Info("Skipped",
			logfields.Source(src),
			logfields.Outputs(outputs))
	}
}
